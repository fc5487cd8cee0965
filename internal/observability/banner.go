package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

const banner = `
  ____  __  __ ____ __    __
 / __ \/ / / /  _// /   / /
/ /_/ / /_/ // / / /__ / /__
\___\_\____/___//____//____/

     >> DRAFT. CRITIQUE. APPROVE. <<
`

// TermWidth reports the terminal width of f, or 80 when f is not a terminal.
func TermWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// PrintBanner writes the centered logo. Color is used only when color is true.
func PrintBanner(w io.Writer, width int, color bool) {
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		if color {
			fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan, l, colorReset)
			continue
		}
		fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", padding), l)
	}
}

// Rule writes a horizontal separator with an optional title.
func Rule(w io.Writer, width int, title string, color bool) {
	if width < 10 {
		width = 10
	}
	line := strings.Repeat("─", width)
	if title != "" {
		label := "─ " + title + " "
		if len(label) < width {
			line = label + strings.Repeat("─", width-len([]rune(label)))
		}
	}
	if color {
		fmt.Fprintf(w, "%s%s%s\n", colorNeonMag, line, colorReset)
		return
	}
	fmt.Fprintln(w, line)
}
