package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the chat banner with the bot being talked to.
func PrintBanner(w io.Writer, botID, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	lines := []struct {
		text  string
		color string
	}{
		{"   __ _               _           _   ", "#38bdf8"},
		{"  / _| | _____      _| |__   __ _| |_ ", "#22d3ee"},
		{" | |_| |/ _ \\ \\ /\\ / / '_ \\ / _` | __|", "#2dd4bf"},
		{" |  _| | (_) \\ V  V / | | | (_| | |_ ", "#34d399"},
		{" |_| |_|\\___/ \\_/\\_/|_| |_|\\__,_|\\__|", "#4ade80"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	meta := out.String(fmt.Sprintf(" bot %s · v%s · type 'exit' to quit", botID, version)).Faint()
	fmt.Fprintln(w, meta)
	fmt.Fprintln(w)
}
