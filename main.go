package main

import (
	"os"

	"github.com/spf13/cobra"

	"open-dio/config"
	"open-dio/utils"
)

var (
	cfg    *config.Config
	model  *config.ModelConfig
	logger *utils.Logger

	rootCmd = &cobra.Command{
		Use:   "dio",
		Short: "Build EEIO impact multipliers and evaluate spending against them",
		Long: `dio compiles per-sector environmental impact multipliers from an
input-output economy and its environmental flows, and converts spending
coded in external industry codes into impact totals.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			logger = utils.NewLogger().WithLevel(utils.ParseLevel(cfg.LogLevel))

			var err error
			model, err = config.LoadModelConfig(cfg.ModelConfigPath)
			return err
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger == nil {
			logger = utils.NewLogger()
		}
		logger.Error("%v", err)
		os.Exit(1)
	}
}
