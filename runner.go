package arbiter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// Runner drives an interactive conversation over the provided IO.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
	// Progress, when set, is called with the label of every completed stage.
	Progress func(label string)

	ThreadID string
	Domain   string
}

// ContentRenderer transforms markdown before it is printed.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner. Input and Output must be set before Run.
func NewRunner() *Runner {
	return &Runner{}
}

// Run reads one query per line until EOF or "exit". After a clarification,
// a line of option numbers ("1, 3") answers it instead of starting a new query.
func (r *Runner) Run(ctx context.Context, agent *Agent) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lines := bufio.NewReader(r.Input)

	if !r.Headless {
		fmt.Fprintln(r.Output, "--- Arbiter compliance analyst (type 'exit' to quit) ---")
	}

	var pending []domain.ClarificationOption
	var asked Request
	for {
		if !r.Headless {
			fmt.Fprint(r.Output, "> ")
		}
		text, err := lines.ReadString('\n')
		input := strings.TrimSpace(text)
		if err != nil && input == "" {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			if !r.Headless {
				fmt.Fprintln(r.Output, "Bye!")
			}
			return nil
		}

		req := Request{ThreadID: r.ThreadID, Query: input, Domain: r.Domain}
		if picked, ok := pickOptions(input, pending); ok {
			// The checkpoint may hold a redacted query, so the clarified one is resent.
			req.Query = asked.Query
			req.Domain = asked.Domain
			req.Selections = picked
		} else {
			asked = req
		}

		var sinks []ports.EventSink
		if r.Progress != nil {
			sinks = append(sinks, ports.EventSinkFunc(func(ctx context.Context, ev domain.StageEvent) error {
				if ev.Type == domain.EventStage {
					r.Progress(ev.Label)
				}
				return nil
			}))
		}

		resp, err := agent.Run(ctx, req, sinks...)
		if err != nil {
			return fmt.Errorf("turn failed: %w", err)
		}
		r.ThreadID = resp.ThreadID
		pending = resp.Result.Options

		out := Markdown(resp.Result)
		if r.Renderer != nil {
			if rendered, err := r.Renderer(out); err == nil {
				out = rendered
			}
		}
		fmt.Fprintln(r.Output, strings.TrimSpace(out))
	}
}

// pickOptions maps a list of option numbers to their texts.
func pickOptions(input string, options []domain.ClarificationOption) ([]string, bool) {
	if len(options) == 0 {
		return nil, false
	}
	fields := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ' ' })
	picked := make([]string, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > len(options) {
			return nil, false
		}
		picked = append(picked, options[n-1].Text)
	}
	return picked, len(picked) > 0
}

// Markdown renders a final result for display.
func Markdown(res *domain.FinalResult) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	switch res.Kind {
	case domain.KindChat:
		b.WriteString(res.Message)
	case domain.KindClarification:
		b.WriteString("## Clarification needed\n\n")
		if res.Summary != "" {
			b.WriteString(res.Summary + "\n\n")
		}
		for i, o := range res.Options {
			fmt.Fprintf(&b, "%d. %s\n", i+1, o.Text)
		}
	case domain.KindAnswer, domain.KindReviewRequired:
		if res.Kind == domain.KindReviewRequired {
			fmt.Fprintf(&b, "> **Held for human review:** %s\n\n", res.Message)
		}
		writeAnalysis(&b, res.Analysis)
		if res.Decision != nil {
			fmt.Fprintf(&b, "\n_Decision: %s (%s)_\n", res.Decision.Action, res.Decision.Reason)
		}
	case domain.KindBlocked:
		fmt.Fprintf(&b, "## Blocked (%s)\n\n%s\n", res.Code, res.Message)
	default:
		fmt.Fprintf(&b, "## Error (%s)\n\n%s\n", res.Code, res.Message)
	}
	return b.String()
}

func writeAnalysis(b *strings.Builder, a *domain.Analysis) {
	if a == nil {
		return
	}
	fmt.Fprintf(b, "## Summary\n\n%s\n\n", a.Summary)
	if a.LegalBasis != "" {
		fmt.Fprintf(b, "**Legal basis:** %s\n\n", a.LegalBasis)
	}
	if a.ScopeLimitation != "" {
		fmt.Fprintf(b, "**Scope:** %s\n\n", a.ScopeLimitation)
	}
	fmt.Fprintf(b, "**Risk:** %s (confidence %.2f)\n", a.RiskTier, a.Confidence)
	if a.RiskAnalysis != "" {
		fmt.Fprintf(b, "\n%s\n", a.RiskAnalysis)
	}
	if len(a.ReasoningMap) > 0 {
		b.WriteString("\n| Fact | Meaning | Subsection |\n|---|---|---|\n")
		for _, e := range a.ReasoningMap {
			fmt.Fprintf(b, "| %s | %s | %s |\n", e.Fact, e.LegalMeaning, e.Subsection)
		}
	}
}
