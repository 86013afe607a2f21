package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-clickstream-warehouse/internal/config"
	"github.com/tbourn/go-clickstream-warehouse/internal/observability"
	"github.com/tbourn/go-clickstream-warehouse/internal/repo"
	"github.com/tbourn/go-clickstream-warehouse/internal/sysutil"
)

// cfg is loaded once by the root command before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:          "warehouse",
	Short:        "Clickstream star-schema warehouse",
	Long:         "Sanitizes raw e-commerce events, builds a star schema, checks its integrity and computes business metrics.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return bootstrap(envFile)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Optional dotenv file loaded before reading the environment")

	rootCmd.AddCommand(etlCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

// bootstrap loads the dotenv file (if present) and the configuration, then
// sets up logging. Variables already in the environment win over the file.
func bootstrap(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	c, err := config.Load()
	if err != nil {
		return err
	}
	cfg = c
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	return nil
}

// setupTracing installs the OTLP exporter when enabled. The returned func
// flushes it and never fails the command.
func setupTracing(ctx context.Context) func() {
	if !cfg.OTEL.Enabled {
		return func() {}
	}
	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		return func() {}
	}
	return func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}
}

// openDB opens and migrates the configured warehouse database.
func openDB() (*gorm.DB, func(), error) {
	var opts []repo.Option
	if cfg.OTEL.Enabled {
		opts = append(opts, repo.WithTracing())
	}
	db, err := repo.Open(cfg.DB.Driver, cfg.DB.DSN, opts...)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB()
		return nil, nil, err
	}
	log.Debug().Str("driver", cfg.DB.Driver).Msg("database ready")
	return db, closeDB, nil
}
