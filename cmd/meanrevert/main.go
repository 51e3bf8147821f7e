// Command meanrevert is the CLI entrypoint: live trading, single-run
// backtests, and walk-forward evaluation, grounded on the teacher's
// main.go boot sequence (load config, wire broker, start the metrics
// server, run the selected mode, shut down gracefully) but restructured
// as spf13/cobra subcommands instead of a flag switch.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "meanrevert",
		Short: "Mean-reversion futures trading bot",
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")

	root.AddCommand(newLiveCmd(&configPath))
	root.AddCommand(newBacktestCmd(&configPath))
	root.AddCommand(newWalkForwardCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
