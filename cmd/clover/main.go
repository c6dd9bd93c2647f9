package main

import (
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/dedupe"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "clover",
	Short:         "Event deduplication engine",
	Long:          `Detects duplicate event records, resolves conflicting fields and merges duplicates with a full audit trail.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger shared by every command
func bootstrap() (*config.Config, ectologger.Logger, func(), error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, sync, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, sync, nil
}

func newLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapConfig.Level = level

	zapLogger, err := zapConfig.Build(zap.Fields(zap.String("app", cfg.AppName)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), func() { _ = zapLogger.Sync() }, nil
}

// newService builds the engine, loading the engine configuration file when one is set
func newService(cfg *config.Config, logger ectologger.Logger, opts dedupe.Options) (*dedupe.Service, error) {
	if cfg.DedupConfigPath != "" {
		dedupConfig, err := dedupe.LoadConfigFile(cfg.DedupConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", cfg.DedupConfigPath, err)
		}
		opts.Config = &dedupConfig
	}
	return dedupe.NewService(logger, opts)
}
