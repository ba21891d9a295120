package main

import (
	"fmt"

	"github.com/aretw0/arbiter/internal/pipeline"
	"github.com/aretw0/arbiter/internal/validator"
	"github.com/aretw0/arbiter/pkg/corpus"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and the regulation corpora",
	Long:  `Loads the configuration, wires the agent and checks every configured corpus for broken article references.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		profiles := pipeline.DefaultProfiles()
		for name, path := range cfg.Corpus {
			regime, err := domain.ParseRegime(name)
			if err != nil {
				return err
			}
			c, err := corpus.Load(path)
			if err != nil {
				return err
			}
			if err := validator.ValidateCorpus(c, profiles[regime]); err != nil {
				return fmt.Errorf("corpus %s: %w", regime, err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
