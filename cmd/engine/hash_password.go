package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kairoslabs/derivatives-engine/internal/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Hash an operator login password for config.json's auth.operator_password_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.NewPasswordManager(auth.DefaultBcryptCost).Hash(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}
