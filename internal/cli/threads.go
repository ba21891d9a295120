package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ListThreads prints every stored thread identifier.
func ListThreads(ctx context.Context, app *App, w io.Writer) error {
	threads, err := app.Agent.Threads(ctx)
	if err != nil {
		return fmt.Errorf("error listing threads: %w", err)
	}
	if len(threads) == 0 {
		fmt.Fprintln(w, "No threads found.")
		return nil
	}
	fmt.Fprintln(w, "Threads:")
	for _, id := range threads {
		fmt.Fprintln(w, "- "+id)
	}
	return nil
}

// ShowThread prints a thread checkpoint as indented JSON.
func ShowThread(ctx context.Context, app *App, w io.Writer, threadID string) error {
	state, err := app.Agent.History(ctx, threadID)
	if err != nil {
		return fmt.Errorf("error loading thread '%s': %w", threadID, err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling state: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// RemoveThreads deletes each thread and reports every failure.
func RemoveThreads(ctx context.Context, app *App, w io.Writer, threadIDs ...string) error {
	failed := 0
	for _, id := range threadIDs {
		if err := app.Agent.Reset(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			failed++
			continue
		}
		fmt.Fprintf(w, "Removed thread '%s'\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d threads could not be removed", failed, len(threadIDs))
	}
	return nil
}
