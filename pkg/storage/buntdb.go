package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/StudioSol/set"
	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/samber/lo"
	"github.com/tidwall/buntdb"
)

const (
	profilePrefix = "profile:"
	accountPrefix = "account:"
	configPrefix  = "config:"
	journalPrefix = "journal:"

	journalIndex = "journal_time"
)

// Profile groups monitor configurations and the users allowed to run them
type Profile struct {
	Name   string   `json:"name" mapstructure:"name"`
	Users  []string `json:"users" mapstructure:"users"`
	Status string   `json:"status" mapstructure:"status"`
}

// AccountRecord is a brokerage account with its API token. Tokens only serve
// configurations of the same profile.
type AccountRecord struct {
	Profile string `json:"profile" mapstructure:"profile"`
	ID      string `json:"id" mapstructure:"id"`
	Token   string `json:"token" mapstructure:"token"`
	Status  string `json:"status" mapstructure:"status"`
}

var (
	_ core.ConfigProvider = (*Store)(nil)
	_ core.Journal        = (*Store)(nil)
)

// Store keeps profiles, accounts, monitor configurations and the order journal in BuntDB
type Store struct {
	lastID int64
	db     *buntdb.DB
}

// FromMemory creates an in-memory store
func FromMemory() (*Store, error) {
	return NewStore(":memory:")
}

// FromFile creates a file-based store
func FromFile(file string) (*Store, error) {
	return NewStore(file)
}

// NewStore opens a BuntDB database and prepares its indexes
func NewStore(sourceFile string) (*Store, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex(journalIndex, journalPrefix+"*", buntdb.IndexJSON("time"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	store := &Store{db: db}
	if err := store.loadLastID(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) loadLastID() error {
	return s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(journalPrefix+"*", func(key, _ string) bool {
			id, err := strconv.ParseInt(strings.TrimPrefix(key, journalPrefix), 10, 64)
			if err == nil && id > s.lastID {
				s.lastID = id
			}
			return true
		})
	})
}

func (s *Store) nextID() int64 {
	return atomic.AddInt64(&s.lastID, 1)
}

func configKey(profile, model string) string {
	return configPrefix + profile + ":" + model
}

func accountKey(profile, id string) string {
	return accountPrefix + profile + ":" + id
}

func (s *Store) put(key string, value any) error {
	content, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(key, string(content), nil); err != nil {
			return fmt.Errorf("failed to store %s: %w", key, err)
		}
		return nil
	})
}

// SaveProfile creates or replaces a profile
func (s *Store) SaveProfile(profile Profile) error {
	if profile.Name == "" {
		return fmt.Errorf("%w: profile name is required", core.ErrConfigMissing)
	}
	if profile.Status == "" {
		profile.Status = core.StatusActive
	}
	return s.put(profilePrefix+profile.Name, profile)
}

// SaveAccount creates or replaces an account and its token
func (s *Store) SaveAccount(account AccountRecord) error {
	if account.ID == "" {
		return fmt.Errorf("%w: account id is required", core.ErrConfigMissing)
	}
	if account.Profile == "" {
		return fmt.Errorf("%w: profile of account %s is required", core.ErrConfigMissing, account.ID)
	}
	if account.Status == "" {
		account.Status = core.StatusActive
	}
	return s.put(accountKey(account.Profile, account.ID), account)
}

// SaveConfig validates and stores a monitor configuration. Account tokens are
// never stored with the configuration.
func (s *Store) SaveConfig(cfg core.MonitorConfig) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Status == "" {
		cfg.Status = core.StatusActive
	}
	return s.put(configKey(cfg.Profile, cfg.ModelName), cfg)
}

// DeleteConfig removes a monitor configuration
func (s *Store) DeleteConfig(profile, model string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(configKey(profile, model))
		if errors.Is(err, buntdb.ErrNotFound) {
			return fmt.Errorf("%w: config %s/%s", core.ErrNotFound, profile, model)
		}
		return err
	})
}

// Configs returns every stored configuration, active or not, without tokens
func (s *Store) Configs() ([]core.MonitorConfig, error) {
	configs := make([]core.MonitorConfig, 0)

	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(configPrefix+"*", func(key, value string) bool {
			var cfg core.MonitorConfig
			if err := json.Unmarshal([]byte(value), &cfg); err != nil {
				log.Printf("Failed to unmarshal %s: %v", key, err)
				return true
			}
			cfg.ApplyDefaults()
			configs = append(configs, cfg)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over configs: %w", err)
	}

	return configs, nil
}

// ProfilesForUser returns the active profiles the user belongs to
func (s *Store) ProfilesForUser(_ context.Context, username string) ([]string, error) {
	profiles := make([]Profile, 0)

	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(profilePrefix+"*", func(key, value string) bool {
			var profile Profile
			if err := json.Unmarshal([]byte(value), &profile); err != nil {
				log.Printf("Failed to unmarshal %s: %v", key, err)
				return true
			}
			profiles = append(profiles, profile)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over profiles: %w", err)
	}

	return lo.FilterMap(profiles, func(p Profile, _ int) (string, bool) {
		return p.Name, p.Status == core.StatusActive && lo.Contains(p.Users, username)
	}), nil
}

// ListActiveConfigs returns the active configurations of the given profiles with
// account tokens resolved
func (s *Store) ListActiveConfigs(_ context.Context, profiles []string) ([]core.MonitorConfig, error) {
	allowed := set.NewLinkedHashSetString()
	for _, profile := range profiles {
		allowed.Add(profile)
	}

	configs, err := s.Configs()
	if err != nil {
		return nil, err
	}

	configs = lo.Filter(configs, func(cfg core.MonitorConfig, _ int) bool {
		return cfg.Status == core.StatusActive && allowed.InArray(cfg.Profile)
	})

	tokens, err := s.activeTokens()
	if err != nil {
		return nil, err
	}

	for i := range configs {
		enrich(&configs[i], tokens)
	}

	return configs, nil
}

// ActiveConfig reloads one active configuration with account tokens resolved
func (s *Store) ActiveConfig(_ context.Context, profile, model string) (core.MonitorConfig, error) {
	var cfg core.MonitorConfig

	err := s.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(configKey(profile, model))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(value), &cfg)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return cfg, fmt.Errorf("%w: config %s/%s", core.ErrNotFound, profile, model)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to load config %s/%s: %w", profile, model, err)
	}

	if cfg.Status != core.StatusActive {
		return cfg, fmt.Errorf("%w: config %s/%s is not active", core.ErrNotFound, profile, model)
	}

	tokens, err := s.activeTokens()
	if err != nil {
		return cfg, err
	}

	cfg.ApplyDefaults()
	enrich(&cfg, tokens)
	return cfg, nil
}

// activeTokens maps the keys of active accounts to their tokens
func (s *Store) activeTokens() (map[string]string, error) {
	tokens := make(map[string]string)

	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(accountPrefix+"*", func(key, value string) bool {
			var account AccountRecord
			if err := json.Unmarshal([]byte(value), &account); err != nil {
				log.Printf("Failed to unmarshal %s: %v", key, err)
				return true
			}
			if account.Status == core.StatusActive && account.Token != "" {
				tokens[accountKey(account.Profile, account.ID)] = account.Token
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate over accounts: %w", err)
	}

	return tokens, nil
}

func enrich(cfg *core.MonitorConfig, tokens map[string]string) {
	cfg.Primary.Token = tokens[accountKey(cfg.Profile, cfg.Primary.ID)]
	cfg.Secondary.Token = tokens[accountKey(cfg.Profile, cfg.Secondary.ID)]
}

// Record appends an entry to the order journal
func (s *Store) Record(entry *core.JournalEntry) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		entry.ID = s.nextID()
		content, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal journal entry: %w", err)
		}

		_, _, err = tx.Set(journalPrefix+strconv.FormatInt(entry.ID, 10), string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store journal entry: %w", err)
		}

		return nil
	})
}

// Entries returns journal entries in time order that pass every filter
func (s *Store) Entries(filters ...core.JournalFilter) ([]core.JournalEntry, error) {
	entries := make([]core.JournalEntry, 0)

	err := s.db.View(func(tx *buntdb.Tx) error {
		err := tx.Ascend(journalIndex, func(_, value string) bool {
			var entry core.JournalEntry
			if err := json.Unmarshal([]byte(value), &entry); err != nil {
				log.Printf("Failed to unmarshal journal entry: %v", err)
				return true
			}

			for _, filter := range filters {
				if !filter(entry) {
					return true
				}
			}

			entries = append(entries, entry)
			return true
		})

		if err != nil {
			return fmt.Errorf("failed to iterate over journal: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
