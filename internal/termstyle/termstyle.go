// Package termstyle renders the CLI's colored one-line error output.
// It uses lipgloss for styling, and suppresses color when stderr is
// not a terminal or NO_COLOR is set, following lipgloss's own
// convention.
package termstyle

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/MaxGfeller/claude-tracker/internal/clierr"
)

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
)

// colorForKind returns the style for a given error kind. Input errors
// are user-fixable mistakes (yellow); everything else is an operational
// failure (red).
func colorForKind(kind clierr.Kind) lipgloss.Style {
	if kind == clierr.Input {
		return warnStyle
	}
	return errorStyle
}

// enabled reports whether color output should be used for w.
func enabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// PrintError writes "error: <message>" to w, colored by err's kind when
// w supports it, followed by an optional hint line. Unrecognized error
// kinds (plain errors not wrapped in a *clierr.TrackerError) print
// without color.
func PrintError(w io.Writer, err error) {
	kind, ok := clierr.KindOf(err)
	message := fmt.Sprintf("error: %v", err)

	if !ok || !enabled(w) {
		fmt.Fprintln(w, message)
	} else {
		fmt.Fprintln(w, colorForKind(kind).Render(message))
	}

	var trackerErr *clierr.TrackerError
	if errors.As(err, &trackerErr) && trackerErr.Hint != "" {
		hint := "hint: " + trackerErr.Hint
		if enabled(w) {
			hint = hintStyle.Render(hint)
		}
		fmt.Fprintln(w, hint)
	}
}
