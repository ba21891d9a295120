package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3\n")
	assert.Contains(t, buf.String(), "compliance analyst 1.2.3")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	progress := Progress(&buf)
	progress("Searching internal regulations...")
	progress("Validating LLM citations...")

	assert.Contains(t, buf.String(), "Searching internal regulations...")
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestNewRenderer(t *testing.T) {
	render := NewRenderer()
	out, err := render("## Summary\n\nErasure applies.")
	require.NoError(t, err)
	assert.Contains(t, out, "Erasure applies.")
}
