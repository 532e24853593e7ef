package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kairoslabs/derivatives-engine/config"
)

var sampleConfigCmd = &cobra.Command{
	Use:   "sample-config",
	Short: "Write a fully-populated reference config.json to --config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteSample(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote sample config to %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sampleConfigCmd)
}
