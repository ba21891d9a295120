package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/arbiter/pkg/domain"
)

// End is the pseudo-stage that terminates a walk.
const End = "__end__"

// StageFunc is a unit of work: it reads the state and returns only the fields it changed.
// Returning an error aborts the turn without persisting the stage's output.
type StageFunc func(ctx context.Context, s *domain.State) (domain.Partial, error)

// Router selects the next stage (or End) from the merged state. It must be pure.
type Router func(s *domain.State) string

type stage struct {
	name  string
	label string
	fn    StageFunc
}

type edge struct {
	to      string // static target, empty when router is set
	router  Router
	targets []string
}

// StageInfo describes a registered stage.
type StageInfo struct {
	Name  string
	Label string
}

// EdgeInfo describes one possible transition, used for rendering the graph.
type EdgeInfo struct {
	From        string
	To          string
	Conditional bool
}

// Builder assembles a graph. Errors are collected and reported by Compile.
type Builder struct {
	stages map[string]*stage
	order  []string
	edges  map[string]edge
	entry  string
	errs   []error
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		stages: make(map[string]*stage),
		edges:  make(map[string]edge),
	}
}

// AddStage registers a named stage with its progress label.
func (b *Builder) AddStage(name, label string, fn StageFunc) *Builder {
	switch {
	case name == "" || name == End:
		b.errs = append(b.errs, fmt.Errorf("invalid stage name %q", name))
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("stage %q has no function", name))
	case b.stages[name] != nil:
		b.errs = append(b.errs, fmt.Errorf("stage %q registered twice", name))
	default:
		b.stages[name] = &stage{name: name, label: label, fn: fn}
		b.order = append(b.order, name)
	}
	return b
}

// AddEdge declares an unconditional transition.
func (b *Builder) AddEdge(from, to string) *Builder {
	return b.setEdge(from, edge{to: to})
}

// AddConditionalEdge declares that router decides the successor of from.
// The router may only return one of targets.
func (b *Builder) AddConditionalEdge(from string, router Router, targets ...string) *Builder {
	if router == nil || len(targets) == 0 {
		b.errs = append(b.errs, fmt.Errorf("conditional edge from %q needs a router and targets", from))
		return b
	}
	return b.setEdge(from, edge{router: router, targets: targets})
}

func (b *Builder) setEdge(from string, e edge) *Builder {
	if _, dup := b.edges[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("stage %q already has an outgoing edge", from))
		return b
	}
	b.edges[from] = e
	return b
}

// SetEntry sets the first stage of every walk.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = name
	return b
}

// Compile validates the wiring and returns an immutable graph.
func (b *Builder) Compile() (*Graph, error) {
	errs := append([]error(nil), b.errs...)
	known := func(name string) bool { return name == End || b.stages[name] != nil }

	if b.entry == "" {
		errs = append(errs, errors.New("no entry stage"))
	} else if b.stages[b.entry] == nil {
		errs = append(errs, fmt.Errorf("%w: entry %q", domain.ErrUnknownStage, b.entry))
	}
	for from, e := range b.edges {
		if b.stages[from] == nil {
			errs = append(errs, fmt.Errorf("%w: edge source %q", domain.ErrUnknownStage, from))
		}
		for _, to := range e.all() {
			if !known(to) {
				errs = append(errs, fmt.Errorf("%w: %q -> %q", domain.ErrUnknownStage, from, to))
			}
		}
	}
	for _, name := range b.order {
		if _, ok := b.edges[name]; !ok {
			errs = append(errs, fmt.Errorf("stage %q has no outgoing edge", name))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid graph: %w", errors.Join(errs...))
	}

	g := &Graph{
		stages: make(map[string]*stage, len(b.stages)),
		order:  append([]string(nil), b.order...),
		edges:  make(map[string]edge, len(b.edges)),
		entry:  b.entry,
	}
	for k, v := range b.stages {
		g.stages[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	return g, nil
}

func (e edge) all() []string {
	if e.router == nil {
		return []string{e.to}
	}
	return e.targets
}

// Graph is a compiled, immutable stage graph.
type Graph struct {
	stages map[string]*stage
	order  []string
	edges  map[string]edge
	entry  string
}

// Entry returns the name of the first stage.
func (g *Graph) Entry() string { return g.entry }

// Label returns the progress label of a stage.
func (g *Graph) Label(name string) string {
	if s := g.stages[name]; s != nil {
		return s.label
	}
	return ""
}

// Stages lists the registered stages in registration order.
func (g *Graph) Stages() []StageInfo {
	out := make([]StageInfo, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, StageInfo{Name: name, Label: g.stages[name].label})
	}
	return out
}

// Edges lists every possible transition, sorted by source then target.
func (g *Graph) Edges() []EdgeInfo {
	var out []EdgeInfo
	for from, e := range g.edges {
		for _, to := range e.all() {
			out = append(out, EdgeInfo{From: from, To: to, Conditional: e.router != nil})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// next resolves the successor of from. A router answer outside its declared targets is an error.
func (g *Graph) next(from string, s *domain.State) (string, error) {
	e, ok := g.edges[from]
	if !ok {
		return "", fmt.Errorf("%w: no edge from %q", domain.ErrUnknownStage, from)
	}
	if e.router == nil {
		return e.to, nil
	}
	to := e.router(s)
	for _, t := range e.targets {
		if t == to {
			return to, nil
		}
	}
	return "", fmt.Errorf("%w: %q -> %q (allowed %v)", domain.ErrInvalidRoute, from, to, e.targets)
}
