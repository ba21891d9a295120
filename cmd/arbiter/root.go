package main

import (
	"fmt"
	"os"

	"github.com/aretw0/arbiter/internal/cli"
	"github.com/aretw0/arbiter/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Arbiter is a regulatory compliance analyst",
	Long: `Arbiter answers compliance questions (GDPR, CCPA, FDA) through a guarded,
self-correcting analysis pipeline with per-thread checkpoints.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or TOML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		for _, candidate := range []string{"arbiter.yaml", "arbiter.yml", "arbiter.toml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

// loadApp wires the agent from the config flag. Callers must Close the app.
func loadApp(cmd *cobra.Command) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return buildApp(cfg)
}

func buildApp(cfg *config.Config) (*cli.App, error) {
	logger, err := cli.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return cli.Build(cfg, logger)
}
