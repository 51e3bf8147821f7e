package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"meanrevert/internal/backtest"
	"meanrevert/internal/config"
	"meanrevert/internal/walkforward"
)

func newWalkForwardCmd(configPath *string) *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "walkforward",
		Short: "Evaluate the parameter set across K ordered folds",
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
				return fmt.Errorf("walkforward: no --csv given and backtest.csv_path unset in config")
			}

			bars, err := backtest.LoadCSV(csvPath)
			if err != nil {
				return fmt.Errorf("walkforward: load csv: %w", err)
			}

			btCfg, err := toBacktestConfig(cfg)
			if err != nil {
				return err
			}

			ev := walkforward.NewEvaluator(log)
			agg, err := ev.Run(cmd.Context(), bars, walkforward.Config{
				Folds:         cfg.WalkForward.Folds,
				TrainFraction: cfg.WalkForward.TrainFraction,
				Backtest:      btCfg,
			})
			if err != nil {
				return err
			}

			printWalkForwardSummary(agg)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "path to the OHLCV CSV (overrides backtest.csv_path)")
	return cmd
}

func printWalkForwardSummary(agg *walkforward.AggregateResult) {
	fmt.Fprintf(os.Stdout, "\n=== WALK-FORWARD RESULT ===\n\n")

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Fold", "Train bars", "Test bars", "Trades", "Win rate", "Profit factor", "Max DD")
	for _, f := range agg.Folds {
		r := f.TestResult
		table.Append(
			fmt.Sprintf("%d", f.FoldIndex+1),
			fmt.Sprintf("%d", f.TrainBars),
			fmt.Sprintf("%d", f.TestBars),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%.1f%%", r.WinRate*100),
			fmt.Sprintf("%.2f", r.ProfitFactor),
			fmt.Sprintf("%.2f", r.MaxDrawdown),
		)
	}
	table.Render()

	fmt.Fprintf(os.Stdout, "\nAggregate: trades=%d win rate=%.1f%% profit factor=%.2f max drawdown=%.2f sharpe-like=%.2f\n",
		agg.TotalTrades, agg.WinRate*100, agg.ProfitFactor, agg.MaxDrawdown, agg.SharpeLike)
}
