package notifier

import (
	"context"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"
)

// Log writes alerts to the application log. It is always wired so alerts
// are never lost when no chat channel is configured.
type Log struct {
	logger ports.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(logger ports.Logger) *Log {
	return &Log{logger: logger}
}

// Notify logs the alert at Warn level for warnings and Info otherwise.
func (l *Log) Notify(ctx context.Context, alert domain.Alert) error {
	fields := map[string]interface{}{
		"kind":   alert.Kind,
		"symbol": alert.Symbol,
		"side":   alert.Side,
		"entry":  alert.Entry,
		"stop":   alert.Stop,
	}
	if alert.Error != "" {
		fields["error"] = alert.Error
	}
	if alert.Description != "" {
		fields["description"] = alert.Description
	}
	if alert.Warning {
		l.logger.Warn(ctx, "Alert", fields)
	} else {
		l.logger.Info(ctx, "Alert", fields)
	}
	return nil
}
