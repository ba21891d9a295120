package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the Arbiter banner and version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"     _        _     _ _", "#818cf8"},
		{"    / \\   _ _| |__ (_) |_ ___ _ __", "#a78bfa"},
		{"   / _ \\ | '_| '_ \\| | __/ _ \\ '__|", "#c084fc"},
		{"  / ___ \\| | | |_) | | ||  __/ |", "#e879f9"},
		{" /_/   \\_\\_| |_.__/|_|\\__\\___|_|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  compliance analyst "+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}

// Progress returns a callback that prints stage labels as dim status lines.
func Progress(w io.Writer) func(label string) {
	p := termenv.ColorProfile()
	return func(label string) {
		fmt.Fprintln(w, termenv.String("  · "+label).Foreground(p.Color("#a78bfa")).Faint())
	}
}
