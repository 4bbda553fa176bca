package authcore

import (
	"context"

	"go.uber.org/zap"
)

// notify hands msg to the Notifier on a detached context. The calling
// operation has already persisted everything it needs, so delivery failures
// are logged and counted only.
func (e *Engine) notify(msg Message) {
	e.notifyMu.Lock()
	if e.closed {
		e.notifyMu.Unlock()
		e.logger.Warn("notification skipped after close", zap.String("kind", string(msg.Kind)))
		return
	}
	e.notifyWG.Add(1)
	e.notifyMu.Unlock()

	go func() {
		defer e.notifyWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.config.Notifier.Timeout)
		defer cancel()

		if err := e.notifier.Notify(ctx, msg); err != nil {
			e.metricInc(MetricNotifyFailure)
			e.logger.Warn("notification failed",
				zap.String("kind", string(msg.Kind)),
				zap.String("account_id", msg.AccountID),
				zap.String("email", maskEmail(msg.To)),
				zap.Error(err),
			)
		}
	}()
}
