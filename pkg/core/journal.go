package core

import (
	"slices"
	"time"
)

// JournalKind is the broker operation recorded in the journal
type JournalKind string

const (
	JournalPlace  JournalKind = "place"
	JournalCancel JournalKind = "cancel"
	JournalClose  JournalKind = "close"
)

// JournalEntry records one mutation sent to the broker and its outcome
type JournalEntry struct {
	ID         int64       `json:"id"`
	Time       time.Time   `json:"time"`
	Profile    string      `json:"profile"`
	Model      string      `json:"model"`
	AccountID  string      `json:"account_id"`
	Instrument string      `json:"instrument"`
	Kind       JournalKind `json:"kind"`
	Reference  string      `json:"reference"`
	Units      int64       `json:"units"`
	Price      float64     `json:"price"`
	Accepted   bool        `json:"accepted"`
	Error      string      `json:"error,omitempty"`
}

// JournalFilter selects journal entries
type JournalFilter func(entry JournalEntry) bool

// Journal stores the audit trail of broker mutations
type Journal interface {
	Record(entry *JournalEntry) error
	Entries(filters ...JournalFilter) ([]JournalEntry, error)
}

func WithModel(model string) JournalFilter {
	return func(entry JournalEntry) bool {
		return entry.Model == model
	}
}

func WithAccount(accountID string) JournalFilter {
	return func(entry JournalEntry) bool {
		return entry.AccountID == accountID
	}
}

func WithKindIn(kinds ...JournalKind) JournalFilter {
	return func(entry JournalEntry) bool {
		return slices.Contains(kinds, entry.Kind)
	}
}

func WithTimeAfterOrEqual(t time.Time) JournalFilter {
	return func(entry JournalEntry) bool {
		return !entry.Time.Before(t)
	}
}
