package main

import (
	"fmt"

	"github.com/aretw0/arbiter/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the stage graph visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of the analysis pipeline. With --thread, the thread's last stage is highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var overlay *graph.GraphOverlay
		if thread, _ := cmd.Flags().GetString("thread"); thread != "" {
			state, err := app.Agent.History(cmd.Context(), thread)
			if err != nil {
				return fmt.Errorf("error loading thread '%s': %w", thread, err)
			}
			overlay = &graph.GraphOverlay{CurrentStage: state.LastStage}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(app.Agent.Graph(), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("thread", "t", "", "Highlight the last stage of this thread")
}
