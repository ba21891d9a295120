package main

import (
	"os"
	"strings"

	"github.com/aretw0/arbiter/internal/cli"
	"github.com/aretw0/arbiter/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a compliance question, or start a conversation",
	Long: `With a question, runs a single analysis turn and prints the result.
Without one, starts an interactive conversation on the thread.
After a clarification, answer with option numbers (for example "1, 3").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		domain, _ := cmd.Flags().GetString("domain")
		thread, _ := cmd.Flags().GetString("thread")
		selections, _ := cmd.Flags().GetStringSlice("select")
		headless, _ := cmd.Flags().GetBool("headless")
		jsonMode, _ := cmd.Flags().GetBool("json")
		fresh, _ := cmd.Flags().GetBool("fresh")

		interactive := tui.IsInteractive()
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return cli.Ask(sigCtx, app, cli.AskOptions{
			Query:      strings.TrimSpace(strings.Join(args, " ")),
			Domain:     domain,
			ThreadID:   thread,
			Selections: selections,
			Headless:   headless || jsonMode || !interactive,
			JSON:       jsonMode,
			Rich:       interactive && !headless && !jsonMode,
			Fresh:      fresh,
			Input:      os.Stdin,
			Output:     os.Stdout,
		})
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringP("domain", "d", "GDPR", "Regulatory regime: GDPR, CCPA or FDA")
	askCmd.Flags().StringP("thread", "t", "", "Thread to continue (default: a new thread)")
	askCmd.Flags().StringSlice("select", nil, "Answers to the thread's pending clarification")
	askCmd.Flags().Bool("headless", false, "Plain output without banner, prompts or progress")
	askCmd.Flags().Bool("json", false, "Read NDJSON requests from stdin and write NDJSON responses")
	askCmd.Flags().Bool("fresh", false, "Discard the thread's history before the first turn")

	// A bare invocation starts a conversation.
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.RunE = askCmd.RunE
	rootCmd.Flags().AddFlagSet(askCmd.Flags())
}
