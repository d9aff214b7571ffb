// Package audit defines security events emitted by the admission pipeline.
package audit

//go:generate mockgen -source=models.go -destination=mocks/mocks.go -package=mocks SecurityAuditor,Sink

import (
	"context"
	"time"
)

// Action names a security-relevant admission outcome.
type Action string

const (
	ActionMasterKeyIPRejected      Action = "master_key_ip_rejected"
	ActionMaintenanceKeyIPRejected Action = "maintenance_key_ip_rejected"
	ActionRateLimitExceeded        Action = "rate_limit_exceeded"
	ActionDuplicateRequest         Action = "duplicate_request"
)

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var actionSeverity = map[Action]Severity{
	ActionMasterKeyIPRejected:      SeverityCritical,
	ActionMaintenanceKeyIPRejected: SeverityCritical,
	ActionRateLimitExceeded:        SeverityWarning,
	ActionDuplicateRequest:         SeverityInfo,
}

// DefaultSeverity returns the routing severity for an action. Unknown actions
// are informational.
func (a Action) DefaultSeverity() Severity {
	if s, ok := actionSeverity[a]; ok {
		return s
	}
	return SeverityInfo
}

// SecurityEvent captures a security-relevant decision for SIEM and alerting.
// Events are processed asynchronously with buffering and retry.
type SecurityEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	AppID     string    `json:"app_id"`
	Action    Action    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Path      string    `json:"path,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Severity  Severity  `json:"severity"`
}

// SecurityAuditor accepts events without blocking the request path.
type SecurityAuditor interface {
	Emit(ctx context.Context, event SecurityEvent)
}

// Sink persists or forwards a batch of events.
type Sink interface {
	Write(ctx context.Context, events []SecurityEvent) error
}

// NopAuditor discards every event.
type NopAuditor struct{}

func (NopAuditor) Emit(context.Context, SecurityEvent) {}
