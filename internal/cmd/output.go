package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/teamwork/internal/protocol"
)

var (
	primaryColor = lipgloss.Color("#A78BFA")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#F87171")
	mutedColor   = lipgloss.Color("#9CA3AF")
	activeColor  = lipgloss.Color("#60A5FA")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)

// wantJSON reports whether --json was given.
func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether w is an interactive terminal. Styling is only
// applied when it is.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w, or fallback when unknown.
func terminalWidth(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}

// painter applies lipgloss styles only on a terminal.
type painter struct {
	styled bool
}

func newPainter(w io.Writer) painter {
	return painter{styled: isTerminal(w)}
}

func (p painter) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p painter) title(s string) string   { return p.render(titleStyle, s) }
func (p painter) heading(s string) string { return p.render(headingStyle, s) }
func (p painter) muted(s string) string   { return p.render(mutedStyle, s) }

// statusColors groups every lifecycle status by how it is going. Task,
// message and approval statuses share some names, so this is keyed by string.
var statusColors = map[string]lipgloss.Color{
	string(protocol.WorkSucceeded):    successColor,
	string(protocol.TaskCompleted):    successColor,
	string(protocol.ApprovalApproved): successColor,
	string(protocol.MessageProcessed): successColor,
	string(protocol.WorkFailed):       errorColor,
	string(protocol.ApprovalRejected): errorColor,
	string(protocol.WorkRunning):      activeColor,
	string(protocol.TaskInProgress):   activeColor,
	string(protocol.WorkerActive):     activeColor,
	string(protocol.WorkerStarting):   activeColor,
	string(protocol.WorkQueued):       warningColor,
	string(protocol.TaskPending):      warningColor,
}

// status colors a lifecycle status. s may carry padding.
func (p painter) status(s string) string {
	color, ok := statusColors[strings.TrimSpace(s)]
	if !ok {
		color = mutedColor
	}
	return p.render(lipgloss.NewStyle().Foreground(color), s)
}

// ellipsis marks a row or title cut to fit.
const ellipsis = "…"

// fitLine cuts a row to width terminal columns. Rows carry lipgloss-styled
// status cells, so width is measured without escape sequences and the cut
// keeps them intact.
func fitLine(s string, width int) string {
	if width < 1 {
		return ellipsis
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, ellipsis)
}

// formatCounts renders a status histogram in a stable order, skipping zeros.
func formatCounts[K ~string](counts map[K]int) string {
	keys := make([]string, 0, len(counts))
	for k, n := range counts {
		if n > 0 {
			keys = append(keys, string(k))
		}
	}
	if len(keys) == 0 {
		return "none"
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[K(k)]))
	}
	return strings.Join(parts, " ")
}
