package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"meanrevert/internal/backtest"
	"meanrevert/internal/calendar"
	"meanrevert/internal/config"
)

func newBacktestCmd(configPath *string) *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a CSV bar history through the engine and report results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			if csvPath == "" {
				csvPath = cfg.Backtest.CSVPath
			}
			if csvPath == "" {
				return fmt.Errorf("backtest: no --csv given and backtest.csv_path unset in config")
			}

			bars, err := backtest.LoadCSV(csvPath)
			if err != nil {
				return fmt.Errorf("backtest: load csv: %w", err)
			}

			btCfg, err := toBacktestConfig(cfg)
			if err != nil {
				return err
			}

			d := backtest.NewDriver(log)
			result, err := d.Run(cmd.Context(), bars, btCfg)
			if err != nil {
				return err
			}

			printBacktestSummary(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "path to the OHLCV CSV (overrides backtest.csv_path)")
	return cmd
}

func toBacktestConfig(cfg *config.Config) (backtest.Config, error) {
	riskCfg, err := cfg.RiskDomain()
	if err != nil {
		return backtest.Config{}, err
	}
	tiebreak := backtest.StopFirst
	if cfg.Backtest.Tiebreak == "take_first" {
		tiebreak = backtest.TakeFirst
	}
	var calCfg *calendar.Config
	if cfg.Calendar.WeeklyCloseDay != "" || len(cfg.Calendar.Holidays) > 0 {
		c, err := cfg.CalendarDomain()
		if err != nil {
			return backtest.Config{}, err
		}
		calCfg = &c
	}
	flattenTimeout, err := cfg.ShutdownFlattenTimeoutDuration()
	if err != nil {
		return backtest.Config{}, err
	}
	fillTimeout, err := cfg.BrokerFillTimeoutDuration()
	if err != nil {
		return backtest.Config{}, err
	}
	return backtest.Config{
		Symbol:                 cfg.Execution.Symbol,
		Size:                   cfg.Execution.Size,
		Lookback:               cfg.Stats.Lookback,
		Signal:                 cfg.SignalDomain(),
		Risk:                   riskCfg,
		Ledger:                 cfg.LedgerDomain(),
		Calendar:               calCfg,
		StopLossAmount:         cfg.Execution.StopLossAmount,
		TakeProfitAmount:       cfg.Execution.TakeProfitAmount,
		Tiebreak:               tiebreak,
		ShutdownFlattenTimeout: flattenTimeout,
		BrokerFillTimeout:      fillTimeout,
	}, nil
}

// printBacktestSummary renders the trade log and headline metrics as a
// table, grounded on polybot's console.PrintBacktest.
func printBacktestSummary(res *backtest.Result) {
	fmt.Fprintf(os.Stdout, "\n=== BACKTEST RESULT ===\n\n")

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Side", "Entry", "Exit", "PnL", "Reason")
	for i, tr := range res.Trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			tr.Side.String(),
			fmt.Sprintf("%.4f", tr.EntryPrice),
			fmt.Sprintf("%.4f", tr.ExitPrice),
			tr.RealizedPnL.StringFixed(2),
			string(tr.CloseReason),
		)
	}
	table.Render()

	fmt.Fprintf(os.Stdout, "\nTotal trades: %d  Win rate: %.1f%%  Profit factor: %.2f\n",
		res.TotalTrades, res.WinRate*100, res.ProfitFactor)
	fmt.Fprintf(os.Stdout, "Max drawdown: %.2f  Sharpe-like: %.2f  Total P&L: %s\n",
		res.MaxDrawdown, res.SharpeLike, res.TotalPnL.StringFixed(2))
}
