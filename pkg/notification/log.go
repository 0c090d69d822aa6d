package notification

import (
	"context"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/logger"
)

// Log writes alerts to the application log
type Log struct {
	log logger.Logger
}

// NewLog creates a notifier backed by the given logger
func NewLog(log logger.Logger) Log {
	return Log{log: log}
}

func (l Log) Notify(_ context.Context, alert core.Alert) {
	entry := l.log.WithFields(map[string]any{
		"profile": alert.Profile,
		"model":   alert.Model,
	})

	switch alert.Severity {
	case core.SeverityError:
		entry.Error(alert.Message)
	case core.SeverityWarning:
		entry.Warn(alert.Message)
	default:
		entry.Info(alert.Message)
	}
}
