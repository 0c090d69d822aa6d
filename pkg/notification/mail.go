package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/raykavin/hedgerun/pkg/core"
	log "github.com/sirupsen/logrus"
)

// Mail handles email notifications for the application
type Mail struct {
	auth              smtp.Auth
	smtpServerPort    int
	smtpServerAddress string
	to                string
	from              string
	minSeverity       core.Severity
	send              func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// MailParams contains all parameters needed to initialize a Mail instance
type MailParams struct {
	SMTPServerPort    int
	SMTPServerAddress string
	To                string
	From              string
	Password          string
	// MinSeverity filters out less severe alerts. Empty sends everything.
	MinSeverity core.Severity
}

var severityRank = map[core.Severity]int{
	core.SeverityInfo:    0,
	core.SeverityWarning: 1,
	core.SeverityError:   2,
}

// NewMail creates a new Mail instance with the provided parameters
func NewMail(params MailParams) Mail {
	return Mail{
		from:              params.From,
		to:                params.To,
		smtpServerPort:    params.SMTPServerPort,
		smtpServerAddress: params.SMTPServerAddress,
		minSeverity:       params.MinSeverity,
		send:              smtp.SendMail,
		auth: smtp.PlainAuth(
			"",
			params.From,
			params.Password,
			params.SMTPServerAddress,
		),
	}
}

// Notify emails the alert when it is at least as severe as the configured minimum
func (m Mail) Notify(_ context.Context, alert core.Alert) {
	if severityRank[alert.Severity] < severityRank[m.minSeverity] {
		return
	}

	serverAddress := fmt.Sprintf("%s:%d", m.smtpServerAddress, m.smtpServerPort)

	err := m.send(
		serverAddress,
		m.auth,
		m.from,
		[]string{m.to},
		[]byte(m.message(alert)),
	)

	if err != nil {
		log.WithError(err).Error("notification/mail: failed to send email")
	}
}

func (m Mail) message(alert core.Alert) string {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Model)
	if alert.Profile != "" {
		subject += " (" + alert.Profile + ")"
	}

	return fmt.Sprintf(
		`To: "User" <%s>
From: "HedgeRun" <%s>
Subject: %s

%s`,
		m.to,
		m.from,
		subject,
		alert.Message,
	)
}
