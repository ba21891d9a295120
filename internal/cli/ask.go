package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/arbiter"
	"github.com/aretw0/arbiter/internal/presentation/tui"
	"github.com/aretw0/arbiter/internal/sanitize"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// AskOptions configures the ask command.
type AskOptions struct {
	// Query runs a single turn. Empty starts an interactive conversation.
	Query      string
	Domain     string
	ThreadID   string
	Selections []string
	// Headless suppresses the banner, prompts and progress lines.
	Headless bool
	// JSON reads newline-delimited requests and writes newline-delimited responses.
	JSON bool
	// Rich renders answers as styled markdown.
	Rich bool
	// Fresh discards the thread's checkpoint before the first turn.
	Fresh bool

	Input  io.Reader
	Output io.Writer
}

// Ask runs one turn or a conversation against app.
func Ask(ctx context.Context, app *App, opts AskOptions) error {
	if opts.Output == nil {
		return errors.New("output writer must be set")
	}
	if opts.Fresh && opts.ThreadID != "" {
		if err := app.Agent.Reset(ctx, opts.ThreadID); err != nil && !errors.Is(err, domain.ErrThreadNotFound) {
			return err
		}
	}

	switch {
	case opts.JSON:
		return handleExecutionError(ctx, opts.Output, askJSON(ctx, app.Agent, opts))
	case opts.Query != "" || len(opts.Selections) > 0:
		return askOnce(ctx, app.Agent, opts)
	}

	if !opts.Headless {
		tui.PrintBanner(opts.Output, arbiter.Version)
	}
	r := arbiter.NewRunner()
	r.Input = opts.Input
	r.Output = opts.Output
	r.Headless = opts.Headless
	r.ThreadID = opts.ThreadID
	r.Domain = opts.Domain
	if opts.Rich {
		r.Renderer = tui.NewRenderer()
	}
	if !opts.Headless {
		r.Progress = tui.Progress(opts.Output)
	}

	err := r.Run(ctx, app.Agent)
	if !opts.Headless && r.ThreadID != "" {
		printSystemMessage(opts.Output, "Thread '%s' saved.", r.ThreadID)
	}
	return handleExecutionError(ctx, opts.Output, err)
}

func askOnce(ctx context.Context, agent *arbiter.Agent, opts AskOptions) error {
	query, err := sanitize.Input(opts.Query)
	if err != nil {
		return err
	}
	req := arbiter.Request{ThreadID: opts.ThreadID, Query: query, Domain: opts.Domain, Selections: opts.Selections}

	var progress func(string)
	if !opts.Headless {
		progress = tui.Progress(opts.Output)
	}
	resp, err := agent.Run(ctx, req, progressSinks(progress)...)
	if err != nil {
		return err
	}

	out := arbiter.Markdown(resp.Result)
	if opts.Rich {
		if rendered, err := tui.NewRenderer()(out); err == nil {
			out = rendered
		}
	}
	fmt.Fprintln(opts.Output, strings.TrimSpace(out))
	if !opts.Headless {
		printSystemMessage(opts.Output, "Thread '%s' (turn %d).", resp.ThreadID, resp.Turn)
	}
	return nil
}

// askJSON serves one request per input line. Invalid lines produce an error object
// and do not stop the loop.
func askJSON(ctx context.Context, agent *arbiter.Agent, opts AskOptions) error {
	if opts.Input == nil {
		return errors.New("input reader must be set")
	}
	enc := json.NewEncoder(opts.Output)
	scanner := bufio.NewScanner(opts.Input)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var req arbiter.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			_ = enc.Encode(map[string]string{"error": "invalid request: " + err.Error()})
			continue
		}
		if req.ThreadID == "" {
			req.ThreadID = opts.ThreadID
		}
		if req.Domain == "" {
			req.Domain = opts.Domain
		}
		query, err := sanitize.Input(req.Query)
		if err != nil {
			_ = enc.Encode(map[string]string{"error": err.Error()})
			continue
		}
		req.Query = query

		resp, err := agent.Run(ctx, req)
		if err != nil {
			if isInterrupted(err) {
				return err
			}
			_ = enc.Encode(map[string]string{"error": err.Error()})
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func progressSinks(progress func(string)) []ports.EventSink {
	if progress == nil {
		return nil
	}
	return []ports.EventSink{ports.EventSinkFunc(func(ctx context.Context, ev domain.StageEvent) error {
		if ev.Type == domain.EventStage {
			progress(ev.Label)
		}
		return nil
	})}
}
