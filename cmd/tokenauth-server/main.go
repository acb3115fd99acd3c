// Command tokenauth-server is a reference HTTP server for the tokenauth
// engine: cookie sessions, refresh rotation, password reset and email
// verification over a demo in-memory principal directory.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/tokenauth/internal/config"
	"github.com/MrEthical07/tokenauth/internal/logging"
	"github.com/MrEthical07/tokenauth/token/pgstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	Version = "0.1.0"
	appName = "tokenauth-server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Reference server for tokenauth",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(serveCmd(&configPath), migrateCmd(&configPath), versionCmd())
	return cmd
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, logger, nil
}

func serveCmd(configPath *string) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if !opts.dev {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, opts, logger)
		},
	}

	cmd.Flags().BoolVar(&opts.dev, "dev", false, "Use an in-process Redis and a random signing secret")
	cmd.Flags().StringVar(&opts.adminEmail, "admin-email", "", "Seed an admin principal with this email")
	cmd.Flags().StringVar(&opts.adminPassword, "admin-password", "", "Password for --admin-email")
	return cmd
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres token store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Postgres.DSN == "" {
				return errors.New("postgres.dsn is required")
			}
			ctx := cmd.Context()

			db, err := pgstore.Open(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := pgstore.Migrate(ctx, db); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}
