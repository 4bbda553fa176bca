package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/store/memory"
)

func TestLoginFailureIsAudited(t *testing.T) {
	mr := newMiniredis(t)
	sink := NewChannelSink(16)
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(redisClient(t, mr)).
		WithAccountStore(memory.New()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.4"), "curl/8")
	if _, err := engine.Login(ctx, "nobody@x.com", "whatever", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditEventLoginFailure || ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.IP != "198.51.100.4" || ev.Metadata["user_agent"] != "curl/8" || ev.Metadata["reason"] != "unknown_email" {
			t.Fatalf("missing request context in %+v", ev)
		}
		if ev.Error != string(auditErrInvalidCredentials) {
			t.Fatalf("unexpected error code %q", ev.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audit event not delivered")
	}
}

func TestAuditDisabledByDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	if env.engine.audit != nil {
		t.Fatal("expected no dispatcher without a sink")
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatal("expected zero drops")
	}
}

func TestZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), AuditEvent{EventType: "login_success", Success: true, AccountID: "a1"})
	sink.Emit(context.Background(), AuditEvent{
		EventType: "login_failure",
		Error:     "invalid_credentials",
		IP:        "10.0.0.1",
		Metadata:  map[string]string{"reason": "password_mismatch"},
	})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	fields := entries[1].ContextMap()
	if fields["error_code"] != "invalid_credentials" || fields["meta.reason"] != "password_mismatch" || fields["ip"] != "10.0.0.1" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if entries[0].LoggerName != "audit" {
		t.Fatalf("unexpected logger name %q", entries[0].LoggerName)
	}
}

func TestReuseDetectionLogsSecurityEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	core, logs := observer.New(zapcore.WarnLevel)
	env.engine.logger = zap.New(core)

	_, pair := env.login(t, "sec@x.com", permission.RoleUser)
	ctx := context.Background()
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected reuse, got %v", err)
	}

	found := logs.FilterMessage("refresh token reuse detected").All()
	if len(found) != 1 {
		t.Fatalf("expected one security log entry, got %d", len(found))
	}
	if found[0].ContextMap()["security_event"] != true {
		t.Fatalf("entry not tagged as security event: %v", found[0].ContextMap())
	}
}
