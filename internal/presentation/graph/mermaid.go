package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbiter/internal/runtime"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedStages []string
	CurrentStage  string
}

// Source is the read-only view of a compiled stage graph.
type Source interface {
	Entry() string
	Stages() []runtime.StageInfo
	Edges() []runtime.EdgeInfo
}

const endID = "END"

// GenerateMermaid produces a Mermaid flowchart of the stage graph.
// It applies semantic styling:
// - Entry and end: ((Circle))
// - Tool dispatch: [[Subroutine]]
// - Clarification (asks the user): [/Parallelogram/]
// - Default: [Rectangle]
// Routed edges are dotted. Overlay styles (Visited/Current) are applied if provided.
func GenerateMermaid(g Source, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	entry := g.Entry()
	for _, st := range g.Stages() {
		safeID := sanitizeMermaidID(st.Name)

		opener, closer := "[", "]"
		switch {
		case st.Name == entry:
			opener, closer = "((", "))"
		case strings.Contains(st.Name, "tool"):
			opener, closer = "[[", "]]"
		case st.Name == "clarify":
			opener, closer = "[/", "/]"
		}

		label := st.Name
		if st.Label != "" {
			label = fmt.Sprintf("%s <br/> %s", st.Name, strings.ReplaceAll(st.Label, "\"", "'"))
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))
	}
	sb.WriteString(fmt.Sprintf("    %s((\"end\"))\n", endID))

	for _, e := range g.Edges() {
		arrow := "-->"
		if e.Conditional {
			arrow = "-.->"
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(e.From), arrow, sanitizeMermaidID(e.To)))
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedStages {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentStage != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentStage)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	if id == runtime.End {
		return endID
	}
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
