package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/kvpool/pkg/config"
	"github.com/Sternrassler/kvpool/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := serveCmd()

	rootCmd := &cobra.Command{
		Use:   "kv-proxy",
		Short: "kv-proxy - Redis set/get over direct, async-pooled and blocking-pooled connections",
		Long: "An HTTP front end that exercises three ways of talking to Redis: a fresh connection per request (/direct),\n" +
			"an async pool (/mobc) and a blocking pool (/r2d2).",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnv("KV_CONFIG", ""), "Path to YAML config file")

	rootCmd.AddCommand(serve, benchCmd())
	return rootCmd
}

// loadConfig reads the configuration and installs the global logger.
func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}

	logger := logging.Setup(cfg.Log)
	return cfg, logger, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
