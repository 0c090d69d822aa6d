// Package config handles application configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/exchange/oanda"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"github.com/xhit/go-str2duration/v2"
)

// Constants for configuration
const (
	DefaultStoragePath = "./hedgerun.db"
	DefaultEnvFile     = ".env"
)

// AppConfig holds the application configuration
type AppConfig struct {
	core.Settings

	StoragePath string
	PracticeURL string
	LiveURL     string
	Paper       bool

	Log     LogConfig
	Mail    MailConfig
	Webhook WebhookConfig
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level   string
	JSON    bool
	Colored bool
}

// MailConfig holds SMTP notification configuration
type MailConfig struct {
	Enabled     bool
	Server      string
	Port        int
	From        string
	To          string
	Password    string
	MinSeverity string
}

// WebhookConfig holds the notification API configuration
type WebhookConfig struct {
	Enabled bool
	URL     string
	Token   string
	Timeout time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HEDGERUN_USERNAME", "")
	v.SetDefault("HEDGERUN_DB_PATH", DefaultStoragePath)
	v.SetDefault("HEDGERUN_CALL_TIMEOUT", "15s")
	v.SetDefault("HEDGERUN_ENTRY_CONFIG_DELAY", "1s")
	v.SetDefault("HEDGERUN_ENTRY_PASS_INTERVAL", "5m")
	v.SetDefault("HEDGERUN_WORKERS", 8)
	v.SetDefault("HEDGERUN_PAPER", false)
	v.SetDefault("HEDGERUN_LOG_LEVEL", "info")
	v.SetDefault("HEDGERUN_LOG_JSON", false)
	v.SetDefault("HEDGERUN_LOG_COLORED", true)
	v.SetDefault("OANDA_PRACTICE_URL", oanda.PracticeURL)
	v.SetDefault("OANDA_LIVE_URL", oanda.LiveURL)
	v.SetDefault("TELEGRAM_ENABLED", false)
	v.SetDefault("SMTP_ENABLED", false)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_MIN_SEVERITY", string(core.SeverityWarning))
	v.SetDefault("NOTIFICATION_API_ENABLED", false)
	v.SetDefault("NOTIFICATION_API_TIMEOUT", "10s")
}

// Load reads the .env file when present and builds the configuration from the
// environment
func Load() (*AppConfig, error) {
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultEnvFile, err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	durations := make(map[string]time.Duration)
	for _, key := range []string{
		"HEDGERUN_CALL_TIMEOUT",
		"HEDGERUN_ENTRY_CONFIG_DELAY",
		"HEDGERUN_ENTRY_PASS_INTERVAL",
		"NOTIFICATION_API_TIMEOUT",
	} {
		value, err := str2duration.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = value
	}

	users, err := parseUsers(v.GetString("TELEGRAM_USERS"))
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		Settings: core.Settings{
			Username:          v.GetString("HEDGERUN_USERNAME"),
			CallTimeout:       durations["HEDGERUN_CALL_TIMEOUT"],
			EntryConfigDelay:  durations["HEDGERUN_ENTRY_CONFIG_DELAY"],
			EntryPassInterval: durations["HEDGERUN_ENTRY_PASS_INTERVAL"],
			Workers:           v.GetInt("HEDGERUN_WORKERS"),
			Telegram: core.TelegramSettings{
				Enabled: v.GetBool("TELEGRAM_ENABLED"),
				Token:   v.GetString("TELEGRAM_TOKEN"),
				Users:   users,
			},
		},
		StoragePath: v.GetString("HEDGERUN_DB_PATH"),
		PracticeURL: v.GetString("OANDA_PRACTICE_URL"),
		LiveURL:     v.GetString("OANDA_LIVE_URL"),
		Paper:       v.GetBool("HEDGERUN_PAPER"),
		Log: LogConfig{
			Level:   v.GetString("HEDGERUN_LOG_LEVEL"),
			JSON:    v.GetBool("HEDGERUN_LOG_JSON"),
			Colored: v.GetBool("HEDGERUN_LOG_COLORED"),
		},
		Mail: MailConfig{
			Enabled:     v.GetBool("SMTP_ENABLED"),
			Server:      v.GetString("SMTP_SERVER"),
			Port:        v.GetInt("SMTP_PORT"),
			From:        v.GetString("SMTP_FROM"),
			To:          v.GetString("SMTP_TO"),
			Password:    v.GetString("SMTP_PASSWORD"),
			MinSeverity: v.GetString("SMTP_MIN_SEVERITY"),
		},
		Webhook: WebhookConfig{
			Enabled: v.GetBool("NOTIFICATION_API_ENABLED"),
			URL:     v.GetString("NOTIFICATION_API_URL"),
			Token:   v.GetString("NOTIFICATION_API_TOKEN"),
			Timeout: durations["NOTIFICATION_API_TIMEOUT"],
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *AppConfig) validate() error {
	switch {
	case c.Telegram.Enabled && (c.Telegram.Token == "" || len(c.Telegram.Users) == 0):
		return errors.New("telegram requires TELEGRAM_TOKEN and TELEGRAM_USERS")
	case c.Mail.Enabled && (c.Mail.Server == "" || c.Mail.To == ""):
		return errors.New("mail requires SMTP_SERVER and SMTP_TO")
	case c.Webhook.Enabled && c.Webhook.URL == "":
		return errors.New("notification api requires NOTIFICATION_API_URL")
	case c.Workers < 1:
		return fmt.Errorf("invalid worker count %d", c.Workers)
	}
	return nil
}

// BaseURL returns the OANDA endpoint configured for an environment
func (c *AppConfig) BaseURL(environment string) string {
	if strings.EqualFold(environment, oanda.EnvironmentLive) {
		return c.LiveURL
	}
	return c.PracticeURL
}

// parseUsers reads a comma separated list of Telegram chat IDs
func parseUsers(value string) ([]int, error) {
	fields := lo.Compact(lo.Map(strings.Split(value, ","), func(field string, _ int) string {
		return strings.TrimSpace(field)
	}))

	users := make([]int, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram user %q: %w", field, err)
		}
		users = append(users, id)
	}

	return users, nil
}
