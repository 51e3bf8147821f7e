// Package config loads the full runtime configuration surface spec §6
// enumerates, grounded on polybot's config.Load: a YAML file read via
// gopkg.in/yaml.v3, with a thin environment-variable override layer on top
// (for the handful of values that make sense to flip in deploy without
// touching the checked-in YAML) and a final defaults pass.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"meanrevert/internal/calendar"
	"meanrevert/internal/ledger"
	"meanrevert/internal/risk"
	"meanrevert/internal/signal"
)

// StatsConfig covers the RollingStats surface.
type StatsConfig struct {
	Lookback int `yaml:"lookback"`
}

// SignalConfig mirrors signal.Config with yaml tags.
type SignalConfig struct {
	ZEntry    float64 `yaml:"z_entry"`
	ZExit     float64 `yaml:"z_exit"`
	MinVolume int64   `yaml:"min_volume"`
}

func (s SignalConfig) toDomain() signal.Config {
	return signal.Config{ZEntry: s.ZEntry, ZExit: s.ZExit, MinVolume: s.MinVolume}
}

// RiskConfig mirrors risk.Config with yaml tags and human-friendly duration
// strings (e.g. "30m") instead of raw nanoseconds.
type RiskConfig struct {
	MaxDailyLoss         float64 `yaml:"max_daily_loss"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	CooldownDuration     string  `yaml:"cooldown_duration"`
	MaxDailyTrades       int     `yaml:"max_daily_trades"`
	MaxPositionDuration  string  `yaml:"max_position_duration"`
}

func (r RiskConfig) toDomain() (risk.Config, error) {
	cooldown, err := parseDuration(r.CooldownDuration)
	if err != nil {
		return risk.Config{}, fmt.Errorf("config: cooldown_duration: %w", err)
	}
	maxDur, err := parseDuration(r.MaxPositionDuration)
	if err != nil {
		return risk.Config{}, fmt.Errorf("config: max_position_duration: %w", err)
	}
	return risk.Config{
		MaxDailyLoss:         r.MaxDailyLoss,
		MaxConsecutiveLosses: r.MaxConsecutiveLosses,
		CooldownDuration:     cooldown,
		MaxDailyTrades:       r.MaxDailyTrades,
		MaxPositionDuration:  maxDur,
	}, nil
}

// ExecutionConfig covers contract economics, broker selection, and the
// Engine-level orchestration knobs not already owned by a sub-config.
type ExecutionConfig struct {
	Symbol                 string  `yaml:"symbol"`
	Size                   int64   `yaml:"size"`
	ContractMultiplier     float64 `yaml:"contract_multiplier"`
	SlippageTicks          float64 `yaml:"slippage_ticks"`
	CommissionPerSide      float64 `yaml:"commission_per_side"`
	StopLossAmount         float64 `yaml:"stop_loss_amount"`
	TakeProfitAmount       float64 `yaml:"take_profit_amount"`
	ShutdownFlattenTimeout string  `yaml:"shutdown_flatten_timeout"`
	BrokerFillTimeout      string  `yaml:"broker_fill_timeout"`
	BrokerKind             string  `yaml:"broker_kind"` // "paper" | "bridge"
	BridgeURL              string  `yaml:"bridge_url"`
	StorePath              string  `yaml:"store_path"`
	AlertWebhookURL        string  `yaml:"alert_webhook_url"`
	MetricsPort            int     `yaml:"metrics_port"`
}

func (e ExecutionConfig) toLedgerDomain() ledger.Config {
	return ledger.Config{
		ContractMultiplier: e.ContractMultiplier,
		SlippageTicks:      e.SlippageTicks,
		CommissionPerSide:  e.CommissionPerSide,
	}
}

// CalendarConfig mirrors calendar.Config with yaml tags and string weekday
// names / duration-of-day strings instead of raw time.Duration offsets.
type CalendarConfig struct {
	WeeklyCloseDay    string   `yaml:"weekly_close_day"`
	WeeklyCloseAt     string   `yaml:"weekly_close_at"`
	WeeklyReopenDay   string   `yaml:"weekly_reopen_day"`
	WeeklyReopenAt    string   `yaml:"weekly_reopen_at"`
	MaintenanceStart  string   `yaml:"maintenance_start"`
	MaintenanceEnd    string   `yaml:"maintenance_end"`
	SessionRolloverAt string   `yaml:"session_rollover_at"`
	Holidays          []string `yaml:"holidays"` // "YYYY-MM-DD"
}

func (c CalendarConfig) toDomain() (calendar.Config, error) {
	closeDay, err := parseWeekday(c.WeeklyCloseDay)
	if err != nil {
		return calendar.Config{}, err
	}
	reopenDay, err := parseWeekday(c.WeeklyReopenDay)
	if err != nil {
		return calendar.Config{}, err
	}
	closeAt, err := parseTimeOfDay(c.WeeklyCloseAt)
	if err != nil {
		return calendar.Config{}, err
	}
	reopenAt, err := parseTimeOfDay(c.WeeklyReopenAt)
	if err != nil {
		return calendar.Config{}, err
	}
	mStart, err := parseTimeOfDay(c.MaintenanceStart)
	if err != nil {
		return calendar.Config{}, err
	}
	mEnd, err := parseTimeOfDay(c.MaintenanceEnd)
	if err != nil {
		return calendar.Config{}, err
	}
	rollover, err := parseTimeOfDay(c.SessionRolloverAt)
	if err != nil {
		return calendar.Config{}, err
	}
	holidays := make([]calendar.Holiday, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		hol, err := parseHoliday(h)
		if err != nil {
			return calendar.Config{}, err
		}
		holidays = append(holidays, hol)
	}
	return calendar.Config{
		WeeklyCloseDay:    closeDay,
		WeeklyCloseAt:     closeAt,
		WeeklyReopenDay:   reopenDay,
		WeeklyReopenAt:    reopenAt,
		MaintenanceStart:  mStart,
		MaintenanceEnd:    mEnd,
		SessionRolloverAt: rollover,
		Holidays:          holidays,
	}, nil
}

// BacktestConfig covers the execution-simulation knobs spec §4.6 names.
type BacktestConfig struct {
	CSVPath  string `yaml:"csv_path"`
	Tiebreak string `yaml:"tiebreak"` // "stop_first" | "take_first"
}

// WalkForwardConfig covers the fold/split knobs spec §4.7 names.
type WalkForwardConfig struct {
	Folds         int     `yaml:"folds"`
	TrainFraction float64 `yaml:"train_fraction"`
}

// LogConfig controls zerolog's level and console/JSON rendering, grounded
// on the teacher's boot-time logger setup.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" | "json"
}

// Config is the top-level document a deploy's config.yaml unmarshals into.
type Config struct {
	Stats       StatsConfig       `yaml:"stats"`
	Signal      SignalConfig      `yaml:"signal"`
	Risk        RiskConfig        `yaml:"risk"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Calendar    CalendarConfig    `yaml:"calendar"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	WalkForward WalkForwardConfig `yaml:"walk_forward"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads path as YAML, applies environment overrides for the handful
// of operational knobs that deploys commonly flip without touching the
// checked-in file, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse YAML: %w", err)
	}
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEANREVERT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MEANREVERT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("MEANREVERT_BRIDGE_URL"); v != "" {
		cfg.Execution.BridgeURL = v
	}
	if v := os.Getenv("MEANREVERT_STORE_PATH"); v != "" {
		cfg.Execution.StorePath = v
	}
	if v := os.Getenv("MEANREVERT_ALERT_WEBHOOK_URL"); v != "" {
		cfg.Execution.AlertWebhookURL = v
	}
	if v := os.Getenv("MEANREVERT_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			cfg.Execution.BrokerKind = "paper"
		}
	}
	if v := os.Getenv("MEANREVERT_METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Execution.MetricsPort = p
		}
	}
}

func setDefaults(cfg *Config) {
	if cfg.Stats.Lookback <= 0 {
		cfg.Stats.Lookback = 20
	}
	if cfg.Execution.ContractMultiplier <= 0 {
		cfg.Execution.ContractMultiplier = 1
	}
	if cfg.Execution.ShutdownFlattenTimeout == "" {
		cfg.Execution.ShutdownFlattenTimeout = "30s"
	}
	if cfg.Execution.BrokerFillTimeout == "" {
		cfg.Execution.BrokerFillTimeout = "30s"
	}
	if cfg.Execution.BrokerKind == "" {
		cfg.Execution.BrokerKind = "paper"
	}
	if cfg.Execution.StorePath == "" {
		cfg.Execution.StorePath = "meanrevert.db"
	}
	if cfg.Execution.MetricsPort <= 0 {
		cfg.Execution.MetricsPort = 9090
	}
	if cfg.Backtest.Tiebreak == "" {
		cfg.Backtest.Tiebreak = "stop_first"
	}
	if cfg.WalkForward.Folds <= 0 {
		cfg.WalkForward.Folds = 5
	}
	if cfg.WalkForward.TrainFraction <= 0 {
		cfg.WalkForward.TrainFraction = 0.7
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

// Validate checks the invariants spec §6 requires across sub-configs,
// delegating to each collaborator's own Validate where one exists.
func (c *Config) Validate() error {
	if c.Execution.Symbol == "" {
		return fmt.Errorf("config: execution.symbol is required")
	}
	if c.Execution.Size <= 0 {
		return fmt.Errorf("config: execution.size must be > 0")
	}
	if c.Stats.Lookback < 2 {
		return fmt.Errorf("config: stats.lookback must be >= 2")
	}
	if err := c.Signal.toDomain().Validate(); err != nil {
		return err
	}
	if _, err := c.Risk.toDomain(); err != nil {
		return err
	}
	if c.Backtest.Tiebreak != "stop_first" && c.Backtest.Tiebreak != "take_first" {
		return fmt.Errorf("config: backtest.tiebreak must be stop_first or take_first")
	}
	if c.WalkForward.TrainFraction <= 0 || c.WalkForward.TrainFraction >= 1 {
		return fmt.Errorf("config: walk_forward.train_fraction must be in (0,1)")
	}
	return nil
}

// SignalDomain returns the domain signal.Config.
func (c *Config) SignalDomain() signal.Config { return c.Signal.toDomain() }

// RiskDomain returns the domain risk.Config.
func (c *Config) RiskDomain() (risk.Config, error) { return c.Risk.toDomain() }

// LedgerDomain returns the domain ledger.Config.
func (c *Config) LedgerDomain() ledger.Config { return c.Execution.toLedgerDomain() }

// CalendarDomain returns the domain calendar.Config.
func (c *Config) CalendarDomain() (calendar.Config, error) { return c.Calendar.toDomain() }

// ShutdownFlattenTimeoutDuration parses Execution.ShutdownFlattenTimeout.
func (c *Config) ShutdownFlattenTimeoutDuration() (time.Duration, error) {
	return parseDuration(c.Execution.ShutdownFlattenTimeout)
}

// BrokerFillTimeoutDuration parses Execution.BrokerFillTimeout.
func (c *Config) BrokerFillTimeoutDuration() (time.Duration, error) {
	return parseDuration(c.Execution.BrokerFillTimeout)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func parseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	case "":
		return time.Sunday, nil
	default:
		return 0, fmt.Errorf("config: unknown weekday %q", s)
	}
}

// parseTimeOfDay parses an "HH:MM" string into a time.Duration offset from
// midnight.
func parseTimeOfDay(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("config: bad time-of-day %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("config: bad time-of-day %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("config: bad time-of-day %q: %w", s, err)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// parseHoliday parses a "YYYY-MM-DD" string into a calendar.Holiday.
func parseHoliday(s string) (calendar.Holiday, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return calendar.Holiday{}, fmt.Errorf("config: bad holiday %q: %w", s, err)
	}
	return calendar.Holiday{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, nil
}
