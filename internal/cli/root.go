// Package cli implements the acctest command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/erp/tools/acctest/internal/config"
	"github.com/example/erp/tools/acctest/internal/logger"
)

// Persistent flags.
var (
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "acctest",
	Short: "Data-driven acceptance tests for the ERP REST API",
	Long: "Runs the test cases of each spreadsheet tab against the API: an input flow of " +
		"filter-search and update calls, then an output flow whose results are compared with " +
		"the expected values of the row. Writes <tab>_output.csv with AUTOMATED_STATUS and " +
		"ADDITIONAL_COMMENTS columns.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "path to the secrets/config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console, json")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}

// Execute runs the root command until it returns or SIGINT/SIGTERM arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the configuration, applies flag overrides and validates it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the logger for cfg and returns ctx carrying it.
func newLogger(ctx context.Context, cfg config.LogConfig) (context.Context, *zap.Logger, error) {
	lc := logger.DefaultConfig()
	if cfg.Level != "" {
		lc.Level = cfg.Level
	}
	if cfg.Format != "" {
		lc.Format = cfg.Format
	}
	if cfg.Output != "" {
		lc.Output = cfg.Output
	}

	log, err := logger.New(lc)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger.WithContext(ctx, log), log, nil
}

// flagLogConfig is the log configuration for commands that read no config file.
func flagLogConfig() config.LogConfig {
	return config.LogConfig{Level: logLevel, Format: logFormat, Output: "stderr"}
}
