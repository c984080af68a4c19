package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"anoint-auth/internal/app"
	"anoint-auth/internal/config"
	"anoint-auth/internal/email"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "authctl",
		Short: "Operate the ANOINT Array auth layer from a terminal",
		Long: `authctl drives the session store against the configured identity
provider, and inspects or clears the auth cache.

Configuration is read from the environment (and .env when present).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		replCmd(),
		cacheCmd(),
		verifyCmd(),
		grantAdminCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// loadApp carga configuracion y dependencias. Los emails salen por stdout.
func loadApp(ctx context.Context, verbose bool) (*app.App, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if verbose {
		logger, err = app.NewLogger(cfg)
		if err != nil {
			return nil, err
		}
	}

	opts := app.Options{}
	if cfg.SMTPHost == "" {
		opts.Sender = email.NewConsoleSender(os.Stdout)
	}
	return app.New(ctx, cfg, logger, opts)
}
