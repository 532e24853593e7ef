package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kairoslabs/derivatives-engine/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operator control surface; Sentinel/Institutional loops start on operator command",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		engine, err := buildEngine(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine.logger.Info().Msg("engine starting")
		return engine.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
