// Package process exposes allow-listed local commands as tools.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/registry"
)

// EnvPrefix prefixes every argument passed to a process.
const EnvPrefix = "ARBITER_ARG_"

// Runner executes local processes on behalf of the model.
// It follows a Strict Registry pattern for security (Allow-Listing).
type Runner struct {
	registry map[string]RegisteredProcess
	baseDir  string
	timeout  time.Duration
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string // Fixed args; model arguments never reach argv.
	Env     map[string]string
	Spec    domain.Tool
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(tools map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, tool := range tools {
			r.registry[name] = RegisteredProcess{
				Command: tool.Command,
				Args:    tool.Args,
				Env:     tool.Environment,
				Spec: domain.Tool{
					Name:        name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithTimeout bounds every execution. Zero disables the bound.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]RegisteredProcess),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted script/command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = RegisteredProcess{
		Command: command,
		Args:    args,
		Spec:    domain.Tool{Name: name},
	}
}

// Names lists the allow-listed tools.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterAll exposes every allow-listed process through reg.
func (r *Runner) RegisterAll(reg *registry.Registry) {
	for _, name := range r.Names() {
		name := name
		reg.Register(r.registry[name].Spec, func(ctx context.Context, args map[string]any) (string, error) {
			return r.Execute(ctx, name, args)
		})
	}
}

// Execute runs the named process and returns its trimmed stdout.
func (r *Runner) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	proc, ok := r.registry[name]
	if !ok {
		return "", fmt.Errorf("process tool not registered: %s", name)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// Model arguments travel as environment variables, never as flags.
	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = append(cmd.Environ(), environment(proc.Env, args)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("execution aborted: %w", ctxErr)
		}
		return "", fmt.Errorf("execution failed: %v. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}

func environment(fixed map[string]string, args map[string]any) []string {
	env := make([]string, 0, len(fixed)+len(args))
	for k, v := range fixed {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
			val = ""
		default:
			if raw, err := json.Marshal(v); err == nil {
				val = string(raw)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+val)
	}
	sort.Strings(env)
	return env
}
