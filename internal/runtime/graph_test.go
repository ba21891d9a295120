package runtime_test

import (
	"testing"

	"github.com/aretw0/arbiter/internal/runtime"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Validation(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *runtime.Builder)
	}{
		{"no entry", func(b *runtime.Builder) {
			b.AddStage("a", "", noop).AddEdge("a", runtime.End)
		}},
		{"unknown target", func(b *runtime.Builder) {
			b.AddStage("a", "", noop).SetEntry("a").AddEdge("a", "ghost")
		}},
		{"dangling stage", func(b *runtime.Builder) {
			b.AddStage("a", "", noop).AddStage("b", "", noop).SetEntry("a").AddEdge("a", "b")
		}},
		{"duplicate stage", func(b *runtime.Builder) {
			b.AddStage("a", "", noop).AddStage("a", "", noop).SetEntry("a").AddEdge("a", runtime.End)
		}},
		{"duplicate edge", func(b *runtime.Builder) {
			b.AddStage("a", "", noop).SetEntry("a").AddEdge("a", runtime.End).AddEdge("a", runtime.End)
		}},
		{"reserved name", func(b *runtime.Builder) {
			b.AddStage(runtime.End, "", noop)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := runtime.NewBuilder()
			tt.build(b)
			_, err := b.Compile()
			assert.Error(t, err)
		})
	}
}

func TestCompile_UnknownStageIsTyped(t *testing.T) {
	_, err := runtime.NewBuilder().AddStage("a", "", noop).SetEntry("a").AddEdge("a", "ghost").Compile()
	assert.ErrorIs(t, err, domain.ErrUnknownStage)
}

func TestGraph_Introspection(t *testing.T) {
	g, err := runtime.NewBuilder().
		AddStage("a", "Alpha", noop).
		AddStage("b", "Beta", noop).
		SetEntry("a").
		AddConditionalEdge("a", func(*domain.State) string { return "b" }, "b", runtime.End).
		AddEdge("b", runtime.End).
		Compile()
	require.NoError(t, err)

	assert.Equal(t, "a", g.Entry())
	assert.Equal(t, "Beta", g.Label("b"))
	assert.Equal(t, []runtime.StageInfo{{Name: "a", Label: "Alpha"}, {Name: "b", Label: "Beta"}}, g.Stages())
	assert.Equal(t, []runtime.EdgeInfo{
		{From: "a", To: "__end__", Conditional: true},
		{From: "a", To: "b", Conditional: true},
		{From: "b", To: "__end__"},
	}, g.Edges())
}
