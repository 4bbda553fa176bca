// Package kafkasink publishes authcore audit events to a Kafka topic.
//
// The engine's audit dispatcher already delivers from its own goroutine, so
// the sink uses a synchronous producer and reports each failed send through
// the logger rather than back to the caller.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
)

type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Sink implements authcore.AuditSink.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// SaramaConfig returns the producer settings the sink expects. Successes must
// be returned for a SyncProducer.
func SaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Timeout = 5 * time.Second
	cfg.Metadata.Retry.Max = 3
	cfg.Metadata.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

// New dials the brokers.
func New(cfg Config, logger *zap.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasink: no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafkasink: topic required")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, SaramaConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("kafkasink: create producer: %w", err)
	}
	return NewWithProducer(producer, cfg.Topic, logger), nil
}

// NewWithProducer wraps an existing producer. Close closes it.
func NewWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		producer: producer,
		topic:    topic,
		logger:   logger.Named("kafkasink"),
	}
}

// Emit publishes one event keyed by account, so a consumer sees each
// account's history in order.
func (s *Sink) Emit(_ context.Context, event authcore.AuditEvent) {
	if s == nil || s.producer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal audit event", zap.String("event_type", event.EventType), zap.Error(err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic:     s.topic,
		Value:     sarama.ByteEncoder(payload),
		Timestamp: event.Timestamp,
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
		},
	}
	if event.AccountID != "" {
		msg.Key = sarama.StringEncoder(event.AccountID)
	}

	if _, _, err := s.producer.SendMessage(msg); err != nil {
		s.logger.Warn("publish audit event",
			zap.String("topic", s.topic),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

func (s *Sink) Close() error {
	if s == nil || s.producer == nil {
		return nil
	}
	if err := s.producer.Close(); err != nil {
		return fmt.Errorf("kafkasink: close producer: %w", err)
	}
	return nil
}
