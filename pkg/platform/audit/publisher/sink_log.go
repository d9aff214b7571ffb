package publisher

import (
	"context"
	"log/slog"

	audit "tollgate/pkg/platform/audit"
)

// LogSink writes events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, events []audit.SecurityEvent) error {
	for _, ev := range events {
		s.logger.Log(ctx, levelFor(ev.Severity), "security event",
			"event_id", ev.ID,
			"action", string(ev.Action),
			"app_id", ev.AppID,
			"ip", ev.IP,
			"path", ev.Path,
			"reason", ev.Reason,
			"request_id", ev.RequestID,
			"severity", string(ev.Severity),
			"timestamp", ev.Timestamp,
		)
	}
	return nil
}

func levelFor(s audit.Severity) slog.Level {
	switch s {
	case audit.SeverityCritical:
		return slog.LevelError
	case audit.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
