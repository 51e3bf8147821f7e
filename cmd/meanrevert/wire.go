package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"meanrevert/internal/alert"
	"meanrevert/internal/broker"
	"meanrevert/internal/calendar"
	"meanrevert/internal/config"
	"meanrevert/internal/engine"
	"meanrevert/internal/ledger"
	"meanrevert/internal/risk"
	"meanrevert/internal/signal"
	"meanrevert/internal/stats"
	"meanrevert/internal/store"
)

// newLogger builds a zerolog.Logger from the config's Log section,
// grounded on the teacher's plain log.Printf boot messages but upgraded
// to the pack's structured-logging convention.
func newLogger(cfg *config.Config) zerolog.Logger {
	var w zerolog.ConsoleWriter
	if cfg.Log.Format == "json" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(parseLevel(cfg.Log.Level))
	}
	w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	return zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(cfg.Log.Level))
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// buildEngine wires every collaborator from a loaded Config, grounded on
// the teacher's "wire broker/model/trader" boot step.
func buildEngine(cfg *config.Config, log zerolog.Logger, br broker.Broker) (*engine.Engine, *store.Store, error) {
	rs, err := stats.New(cfg.Stats.Lookback)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: stats: %w", err)
	}
	sigCfg := cfg.SignalDomain()
	sg, err := signal.New(sigCfg, rs)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signal: %w", err)
	}
	riskCfg, err := cfg.RiskDomain()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: risk: %w", err)
	}
	rg := risk.New(riskCfg)
	ledg := ledger.New(cfg.LedgerDomain())

	st, err := store.Open(cfg.Execution.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: store: %w", err)
	}

	var cal *calendar.Calendar
	if cfg.Calendar.WeeklyCloseDay != "" || len(cfg.Calendar.Holidays) > 0 {
		calCfg, err := cfg.CalendarDomain()
		if err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("wire: calendar: %w", err)
		}
		cal = calendar.New(calCfg)
	}

	var notifier alert.Notifier = alert.NoOp{}
	if cfg.Execution.AlertWebhookURL != "" {
		notifier = alert.NewWebhook(cfg.Execution.AlertWebhookURL, log)
	}

	flattenTimeout, err := cfg.ShutdownFlattenTimeoutDuration()
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("wire: shutdown_flatten_timeout: %w", err)
	}
	fillTimeout, err := cfg.BrokerFillTimeoutDuration()
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("wire: broker_fill_timeout: %w", err)
	}

	eng := engine.New(engine.Config{
		Symbol:                 cfg.Execution.Symbol,
		Size:                   cfg.Execution.Size,
		StopLossAmount:         cfg.Execution.StopLossAmount,
		TakeProfitAmount:       cfg.Execution.TakeProfitAmount,
		ShutdownFlattenTimeout: flattenTimeout,
		BrokerFillTimeout:      fillTimeout,
	}, sigCfg, riskCfg, engine.Collaborators{
		Stats: rs, Signal: sg, Risk: rg, Ledger: ledg, Store: st, Broker: br,
		Calendar: cal, Alerts: notifier, Log: log,
	})

	return eng, st, nil
}

// buildBroker wires the configured broker.Broker implementation, grounded
// on the teacher's main.go BROKER env switch.
func buildBroker(cfg *config.Config) broker.Broker {
	if cfg.Execution.BrokerKind == "bridge" {
		return broker.NewBridgeBroker(cfg.Execution.BridgeURL)
	}
	return broker.NewPaperBroker()
}
