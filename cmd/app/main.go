package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"FinScout/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "finscout",
	Short: "Adaptive decision engine for market intelligence sources",
	Long: `finscout picks which intelligence sources to query for the current market
regime, turns their answers into trading signals, learns which sources pay
off, and routes language-model calls to the best-fitting model.

Without a subcommand it runs the service.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")
}

func main() {
	// A missing .env is fine; real environment variables still apply.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
