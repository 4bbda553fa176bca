package authcore

import internalmetrics "github.com/MrEthical07/authcore/internal/metrics"

// MetricID names one engine counter.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricRegisterSuccess          = internalmetrics.MetricRegisterSuccess
	MetricRegisterDuplicate        = internalmetrics.MetricRegisterDuplicate
	MetricOTPIssued                = internalmetrics.MetricOTPIssued
	MetricVerificationSuccess      = internalmetrics.MetricVerificationSuccess
	MetricVerificationFailure      = internalmetrics.MetricVerificationFailure
	MetricLoginSuccess             = internalmetrics.MetricLoginSuccess
	MetricLoginFailure             = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited         = internalmetrics.MetricLoginRateLimited
	MetricRefreshSuccess           = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure           = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected     = internalmetrics.MetricRefreshReuseDetected
	MetricRefreshReplayed          = internalmetrics.MetricRefreshReplayed
	MetricRateLimitHit             = internalmetrics.MetricRateLimitHit
	MetricSessionCreated           = internalmetrics.MetricSessionCreated
	MetricSessionRevoked           = internalmetrics.MetricSessionRevoked
	MetricLogout                   = internalmetrics.MetricLogout
	MetricLogoutAll                = internalmetrics.MetricLogoutAll
	MetricPasswordResetRequest     = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess     = internalmetrics.MetricPasswordResetSuccess
	MetricPasswordResetFailure     = internalmetrics.MetricPasswordResetFailure
	MetricPasswordChangeSuccess    = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld = internalmetrics.MetricPasswordChangeInvalidOld
	MetricAccountBlocked           = internalmetrics.MetricAccountBlocked
	MetricAccountUnblocked         = internalmetrics.MetricAccountUnblocked
	MetricAccountDeleted           = internalmetrics.MetricAccountDeleted
	MetricRoleChanged              = internalmetrics.MetricRoleChanged
	MetricAuthorizeSuccess         = internalmetrics.MetricAuthorizeSuccess
	MetricAuthorizeDenied          = internalmetrics.MetricAuthorizeDenied
	MetricNotifyFailure            = internalmetrics.MetricNotifyFailure
	MetricAuthorizeLatency         = internalmetrics.MetricAuthorizeLatency
)

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// MetricsSnapshot returns the current counters. It is empty when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}
