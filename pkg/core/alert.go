package core

import "fmt"

// Severity of an alert, matching the notification API "type" field
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is an outbound notice about a decision or a failure
type Alert struct {
	Message  string
	Severity Severity
	Model    string
	Profile  string
}

// NewAlert builds an alert scoped to a monitor configuration
func NewAlert(cfg MonitorConfig, severity Severity, format string, args ...any) Alert {
	return Alert{
		Message:  fmt.Sprintf(format, args...),
		Severity: severity,
		Model:    cfg.ModelName,
		Profile:  cfg.Profile,
	}
}

func (a Alert) String() string {
	return fmt.Sprintf("[%s] %s: %s", a.Severity, a.Model, a.Message)
}
