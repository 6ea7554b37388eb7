package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the narrate banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  _ __   __ _ _ __ _ __ __ _| |_ ___ ", "#818cf8"},
		{" | '_ \\ / _` | '__| '__/ _` | __/ _ \\", "#a78bfa"},
		{" | | | | (_| | |  | | | (_| | ||  __/", "#c084fc"},
		{" |_| |_|\\__,_|_|  |_|  \\__,_|\\__\\___|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	v := termenv.String("  v" + strings.TrimSpace(version)).Faint()
	fmt.Fprintln(w, v)
	fmt.Fprintln(w)
}
