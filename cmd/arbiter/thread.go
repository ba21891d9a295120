package main

import (
	"github.com/aretw0/arbiter/internal/cli"
	"github.com/spf13/cobra"
)

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Manage persisted conversation threads",
	Long:  `List, inspect and remove threads in the configured checkpoint store.`,
}

var threadLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.ListThreads(cmd.Context(), app, cmd.OutOrStdout())
	},
}

var threadShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Print the checkpoint of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.ShowThread(cmd.Context(), app, cmd.OutOrStdout(), args[0])
	},
}

var threadRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.RemoveThreads(cmd.Context(), app, cmd.OutOrStdout(), args...)
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadLsCmd, threadShowCmd, threadRmCmd)
}
