package core

import (
	"fmt"
	"strings"
)

// Default values applied to optional monitor configuration fields
const (
	DefaultLossTriggerPips   = -20.0
	DefaultProfitTriggerPips = 10.0
	DefaultHedgeMultiplier   = 2.0
	DefaultEMAShortPeriod    = 9
	DefaultEMALongPeriod     = 21
	DefaultPipDiffThreshold  = 3.0
	DefaultTakeProfitPips    = 10.0
	DefaultTradeUnits        = 1000
	DefaultTrendTimeframe    = TimeframeM15
	DefaultEnvironment       = "practice"

	StatusActive = "A"
)

// MonitorSide selects which account of a pair is watched as the primary leg
type MonitorSide string

const (
	MonitorPrimary   MonitorSide = "primary"
	MonitorSecondary MonitorSide = "secondary"
)

// Account identifies a brokerage account and the token used to reach it
type Account struct {
	ID    string `json:"id" mapstructure:"id"`
	Token string `json:"-" mapstructure:"-"`
}

// HasToken reports whether credentials were resolved for the account
func (a Account) HasToken() bool { return a.Token != "" }

// MonitorConfig holds the per-instrument parameters of one model. It is a read-only
// snapshot: providers build a fresh copy on every tick.
type MonitorConfig struct {
	Profile     string `json:"profile" mapstructure:"profile"`
	ModelName   string `json:"model_name" mapstructure:"model_name"`
	Instrument  string `json:"instrument" mapstructure:"instrument"`
	Environment string `json:"env" mapstructure:"env"`
	Status      string `json:"status" mapstructure:"status"`

	Primary   Account `json:"primary" mapstructure:"primary"`
	Secondary Account `json:"secondary" mapstructure:"secondary"`

	LossTriggerPips   float64  `json:"loss_trigger_pips" mapstructure:"loss_trigger_pips"`
	ProfitTriggerPips float64  `json:"profit_trigger_pips" mapstructure:"profit_trigger_pips"`
	HedgeMultiplier   float64  `json:"hedge_multiplier" mapstructure:"hedge_multiplier"`
	StopLossPips      *float64 `json:"stop_loss_pips,omitempty" mapstructure:"stop_loss_pips"`

	EMAShortPeriod   int     `json:"ema_short_period" mapstructure:"ema_short_period"`
	EMALongPeriod    int     `json:"ema_long_period" mapstructure:"ema_long_period"`
	PipDiffThreshold float64 `json:"pip_diff_threshold" mapstructure:"pip_diff_threshold"`
	TakeProfitPips   float64 `json:"take_profit_pips" mapstructure:"take_profit_pips"`
	TradeUnits       int64   `json:"trade_units" mapstructure:"trade_units"`
	TrendTimeframe   string  `json:"trend_timeframe" mapstructure:"trend_timeframe"`

	CronPrimary   string `json:"cron_schedule_primary,omitempty" mapstructure:"cron_schedule_primary"`
	CronSecondary string `json:"cron_schedule_secondary,omitempty" mapstructure:"cron_schedule_secondary"`
}

// ApplyDefaults fills unset optional fields. Loss trigger and multiplier are only
// defaulted when zero, so an explicit value always wins.
func (c *MonitorConfig) ApplyDefaults() {
	c.Instrument = NormalizeInstrument(c.Instrument)
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.LossTriggerPips == 0 {
		c.LossTriggerPips = DefaultLossTriggerPips
	}
	if c.ProfitTriggerPips == 0 {
		c.ProfitTriggerPips = DefaultProfitTriggerPips
	}
	if c.HedgeMultiplier == 0 {
		c.HedgeMultiplier = DefaultHedgeMultiplier
	}
	if c.EMAShortPeriod == 0 {
		c.EMAShortPeriod = DefaultEMAShortPeriod
	}
	if c.EMALongPeriod == 0 {
		c.EMALongPeriod = DefaultEMALongPeriod
	}
	if c.PipDiffThreshold == 0 {
		c.PipDiffThreshold = DefaultPipDiffThreshold
	}
	if c.TakeProfitPips == 0 {
		c.TakeProfitPips = DefaultTakeProfitPips
	}
	if c.TradeUnits == 0 {
		c.TradeUnits = DefaultTradeUnits
	}
	if c.TrendTimeframe == "" {
		c.TrendTimeframe = DefaultTrendTimeframe
	}
}

// Validate checks the structural fields of the configuration. It does not look at
// credentials: use ValidateAccess before talking to the broker.
func (c MonitorConfig) Validate() error {
	switch {
	case c.Profile == "" || c.ModelName == "":
		return fmt.Errorf("%w: profile and model name are required", ErrConfigMissing)
	case c.Instrument == "":
		return fmt.Errorf("%w: %s has no instrument", ErrConfigMissing, c.Name())
	case c.Primary.ID == "":
		return fmt.Errorf("%w: %s has no primary account", ErrConfigMissing, c.Name())
	case c.LossTriggerPips >= 0:
		return fmt.Errorf("%w: %s loss trigger must be negative", ErrConfigMissing, c.Name())
	case c.HedgeMultiplier <= 0:
		return fmt.Errorf("%w: %s hedge multiplier must be positive", ErrConfigMissing, c.Name())
	case c.EMAShortPeriod < 1 || c.EMALongPeriod < 1:
		return fmt.Errorf("%w: %s EMA periods must be positive", ErrConfigMissing, c.Name())
	case c.StopLossPips != nil && *c.StopLossPips < 0:
		return fmt.Errorf("%w: %s stop loss pips must not be negative", ErrConfigMissing, c.Name())
	}
	return nil
}

// ValidateAccess checks that every account the given side needs has a token
func (c MonitorConfig) ValidateAccess(side MonitorSide) error {
	own, hedge := c.PairFor(side)
	if own.ID == "" || hedge.ID == "" {
		return fmt.Errorf("%w: %s needs both accounts", ErrConfigMissing, c.Name())
	}
	if !own.HasToken() {
		return fmt.Errorf("%w: %s account %s", ErrNoAccessToken, c.Name(), own.ID)
	}
	if !hedge.HasToken() {
		return fmt.Errorf("%w: %s account %s", ErrNoAccessToken, c.Name(), hedge.ID)
	}
	return nil
}

// PairFor returns the watched account and the hedge account for a monitor side.
// The secondary side swaps the roles of the two accounts.
func (c MonitorConfig) PairFor(side MonitorSide) (own, hedge Account) {
	if side == MonitorSecondary {
		return c.Secondary, c.Primary
	}
	return c.Primary, c.Secondary
}

// CronFor returns the cron expression configured for a monitor side
func (c MonitorConfig) CronFor(side MonitorSide) string {
	if side == MonitorSecondary {
		return c.CronSecondary
	}
	return c.CronPrimary
}

// Name identifies the configuration in logs and alerts
func (c MonitorConfig) Name() string {
	return fmt.Sprintf("%s/%s", c.Profile, c.ModelName)
}

// NormalizeInstrument converts EUR-USD style names to the broker's EUR_USD form
func NormalizeInstrument(instrument string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(instrument), "-", "_"))
}
