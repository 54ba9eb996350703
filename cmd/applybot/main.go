package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/applybot/internal/config"
	"github.com/kalambet/applybot/internal/persist"
)

var version = "dev"

var (
	noColor  bool
	dataDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "applybot",
	Short:         "Apply to job listings with model-written answers and cover letters",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data folder (default: data.dir from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(answersCmd)
	rootCmd.AddCommand(costsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// loadConfig reads .env files and the layered config, honoring the --data
// and --log-level flags.
func loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(dataDir); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(dataDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)
	return logger
}

func openStore(ctx context.Context, cfg config.Config) (persist.Backend, error) {
	return persist.Open(ctx, persist.Config{
		Backend:       cfg.Storage.Backend,
		DataDir:       cfg.Data.Dir,
		RedisAddr:     cfg.Redis.Addr,
		RedisDB:       cfg.Redis.DB,
		RedisPassword: cfg.Redis.Password,
	})
}

func closeStore(store persist.Backend) {
	if err := store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
