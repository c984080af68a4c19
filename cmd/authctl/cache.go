package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func cacheCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the auth cache",
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log cache operations")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "health",
			Short: "Write, read and delete a probe key",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := loadApp(cmd.Context(), verbose)
				if err != nil {
					return err
				}
				defer a.Close()
				if !a.Cache.Enabled() {
					return fmt.Errorf("cache disabled: REDIS_ADDR and REDIS_PASSWORD are both required")
				}
				return printJSON(cmd, a.Cache.HealthCheck(cmd.Context()))
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Count keys per auth namespace",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := loadApp(cmd.Context(), verbose)
				if err != nil {
					return err
				}
				defer a.Close()
				return printJSON(cmd, a.Cache.Stats(cmd.Context()))
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every session, profile, attempt and rate-limit key",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := loadApp(cmd.Context(), verbose)
				if err != nil {
					return err
				}
				defer a.Close()
				deleted := a.Cache.ClearAllAuthCache(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys\n", deleted)
				return nil
			},
		},
	)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
