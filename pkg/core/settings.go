package core

import "time"

// Settings represents the runtime configuration of the bot
type Settings struct {
	Username          string        // Owner of the monitored profiles
	CallTimeout       time.Duration // Deadline of every broker or data call
	EntryConfigDelay  time.Duration // Pause between two configs in an entry pass
	EntryPassInterval time.Duration // Pause between two entry passes
	Workers           int           // Concurrent hedge evaluations
	Telegram          TelegramSettings
}

// TelegramSettings holds configuration for Telegram integration
type TelegramSettings struct {
	Enabled bool   // Whether Telegram notifications are enabled
	Token   string // Telegram bot token
	Users   []int  // List of chat IDs receiving alerts
}
