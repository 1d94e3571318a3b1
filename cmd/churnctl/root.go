package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-churn/internal/config"
	"github.com/miradorstack/mirador-churn/internal/utils"
)

// app carries state resolved once in PersistentPreRunE and shared by subcommands.
type app struct {
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "churnctl",
		Short: "Train and operate telecom churn models",
		Long: `churnctl fits the churn pipeline from a labeled customer export, persists it
as a single artifact, and scores or inspects persisted artifacts.

Examples:
  churnctl train --data data/raw/WA_Fn-UseC_-Telco-Customer-Churn.csv
  churnctl inspect --top 10
  churnctl score customers.csv --out scored.csv
  churnctl runs --limit 5`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if a.verbose {
				cfg.Logging.Level = "debug"
			}
			a.cfg = cfg
			a.logger = utils.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.JSON)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $CHURN_CONFIG)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newTrainCmd(a),
		newScoreCmd(a),
		newInspectCmd(a),
		newRunsCmd(a),
	)
	return root
}
