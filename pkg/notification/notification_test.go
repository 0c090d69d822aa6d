package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	alerts []core.Alert
	block  chan struct{}
}

func (c *collector) Notify(_ context.Context, alert core.Alert) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
}

func (c *collector) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]string, 0, len(c.alerts))
	for _, alert := range c.alerts {
		messages = append(messages, alert.Message)
	}
	return messages
}

type panicking struct{}

func (panicking) Notify(context.Context, core.Alert) { panic("broken channel") }

func TestDispatcher_FanOut(t *testing.T) {
	first, second := &collector{}, &collector{}
	dispatcher := NewDispatcher(10, first, panicking{}, second)
	dispatcher.Start()

	dispatcher.Notify(context.Background(), core.Alert{Message: "one"})
	dispatcher.Notify(context.Background(), core.Alert{Message: "two"})
	dispatcher.Stop()

	assert.Equal(t, []string{"one", "two"}, first.messages())
	assert.Equal(t, []string{"one", "two"}, second.messages())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	slow := &collector{block: make(chan struct{})}
	dispatcher := NewDispatcher(1, slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			dispatcher.Notify(context.Background(), core.Alert{Message: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked on a full queue")
	}

	close(slow.block)
	dispatcher.Start()
	dispatcher.Stop()
	assert.Len(t, slow.messages(), 1)
}

func TestWebhook_Notify(t *testing.T) {
	var (
		payload webhookPayload
		auth    string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	webhook := NewWebhook(WebhookParams{URL: server.URL, Token: "jwt", Username: "ana"})
	webhook.Notify(context.Background(), core.Alert{
		Message:  "🏁 Profit target hit (10.00). Trades closed.",
		Severity: core.SeverityInfo,
		Model:    "eurusd",
	})

	assert.Equal(t, "Bearer jwt", auth)
	assert.Equal(t, webhookPayload{
		Title:    "eurusd",
		Message:  "🏁 Profit target hit (10.00). Trades closed.",
		Username: "ana",
		Profile:  unknownProfile,
		Model:    "eurusd",
		Type:     "info",
	}, payload)
}

func TestWebhook_FailureDoesNotPanic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	server.Close()

	webhook := NewWebhook(WebhookParams{URL: server.URL, Timeout: time.Second})
	assert.NotPanics(t, func() {
		webhook.Notify(context.Background(), core.Alert{Message: "lost"})
	})
}

func TestMail_Notify(t *testing.T) {
	var sent []string
	mail := NewMail(MailParams{
		SMTPServerAddress: "smtp.example.com",
		SMTPServerPort:    587,
		From:              "bot@example.com",
		To:                "ops@example.com",
		MinSeverity:       core.SeverityWarning,
	})
	mail.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.example.com:587", addr)
		assert.Equal(t, []string{"ops@example.com"}, to)
		sent = append(sent, string(msg))
		return nil
	}

	mail.Notify(context.Background(), core.Alert{Message: "report", Severity: core.SeverityInfo, Model: "eu"})
	require.Empty(t, sent)

	mail.Notify(context.Background(), core.Alert{Message: "close failed", Severity: core.SeverityError, Model: "eu", Profile: "alpha"})
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Subject: [ERROR] eu (alpha)")
	assert.Contains(t, sent[0], "close failed")

	mail.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.NotPanics(t, func() {
		mail.Notify(context.Background(), core.Alert{Severity: core.SeverityError})
	})
}

func TestFormatAlert(t *testing.T) {
	text := formatAlert(core.Alert{Message: "hedge placed", Severity: core.SeverityWarning, Model: "eu", Profile: "alpha"})
	assert.Equal(t, "⚠️ eu [alpha]\n-----\nhedge placed", text)
}

func TestFormatJournal(t *testing.T) {
	assert.Equal(t, "No broker requests registered.", formatJournal(nil, 10))

	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	entries := []core.JournalEntry{
		{Time: at, Model: "eu", Kind: core.JournalPlace, Instrument: "EUR_USD", Units: 1000, Accepted: true},
		{Time: at, Model: "eu", Kind: core.JournalClose, Instrument: "EUR_USD", Units: -1000, Error: "rejected"},
	}

	assert.Equal(t, "03-01 12:30 eu close EUR_USD -1000 ❌ rejected", formatJournal(entries, 1))
}
