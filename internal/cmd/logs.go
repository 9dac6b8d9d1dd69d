package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamwork/internal/config"
	"github.com/Iron-Ham/teamwork/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View and filter teamwork.log",
	Long: `View the structured log written to logging.dir, including rotated backups.

Examples:
  # Last 50 entries
  teamwork logs

  # Warnings and errors for one teammate over the last hour
  teamwork logs --team alpha --teammate dev --level warn --since 1h

  # Follow the log while 'teamwork serve' runs
  teamwork logs -f --component worker`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     time.Duration
	logsTeam      string
	logsTeammate  string
	logsComponent string
	logsGrep      string
)

const logsPollInterval = 250 * time.Millisecond

func init() {
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep printing new entries")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "minimum level (debug, info, warn, error)")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "only entries newer than this (e.g. 30m, 2h)")
	logsCmd.Flags().StringVar(&logsTeam, "team", "", "only entries for this team")
	logsCmd.Flags().StringVar(&logsTeammate, "teammate", "", "only entries for this teammate")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "only entries from this component")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "only entries whose message contains this text")

	rootCmd.AddCommand(logsCmd)
}

func logsFilter() logging.Filter {
	f := logging.Filter{
		MinLevel:  logsLevel,
		Team:      logsTeam,
		Teammate:  logsTeammate,
		Component: logsComponent,
		Contains:  logsGrep,
	}
	if logsSince > 0 {
		f.Since = time.Now().Add(-logsSince)
	}
	return f
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Logging.Dir == "" {
		return fmt.Errorf("logging.dir is not set, so logs go to stderr\nSet it with 'teamwork config set logging.dir <path>'")
	}

	entries, err := logging.ReadLogs(cfg.Logging.Dir)
	if err != nil && !logsFollow {
		return err
	}
	filter := logsFilter()
	entries = logging.FilterEntries(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) && !logsFollow {
		if entries == nil {
			entries = []logging.Entry{}
		}
		return printJSON(out, entries)
	}
	p := newPainter(out)
	for _, e := range entries {
		printLogEntry(cmd, p, e)
	}
	if !logsFollow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return followLog(ctx, filepath.Join(cfg.Logging.Dir, logging.LogFileName), func(e logging.Entry) {
		if filter.Match(e) {
			printLogEntry(cmd, p, e)
		}
	})
}

func printLogEntry(cmd *cobra.Command, p painter, e logging.Entry) {
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		_ = printJSON(out, e)
		return
	}
	line := logging.FormatEntry(e)
	if color, ok := levelColors[e.Level]; ok {
		line = p.render(lipgloss.NewStyle().Foreground(color), line)
	}
	fmt.Fprintln(out, line)
}

var levelColors = map[string]lipgloss.Color{
	logging.LevelDebug: mutedColor,
	logging.LevelWarn:  warningColor,
	logging.LevelError: errorColor,
}

// followLog polls path for appended lines until ctx ends. It starts at the
// current end of file and starts over when the file shrinks after rotation.
func followLog(ctx context.Context, path string, emit func(logging.Entry)) error {
	var offset int64
	if info, err := os.Stat(path); err == nil {
		offset = info.Size()
	}

	ticker := time.NewTicker(logsPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		next, err := readFrom(path, offset, emit)
		if err != nil {
			return err
		}
		offset = next
	}
}

// readFrom emits the complete lines of path after offset and returns the
// offset just past the last one.
func readFrom(path string, offset int64, emit func(logging.Entry)) (int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return offset, err
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return offset, err
	}

	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return offset, nil
	}
	entries, err := logging.ParseEntries(bytes.NewReader(data[:end+1]))
	if err != nil {
		return offset, err
	}
	for _, e := range entries {
		emit(e)
	}
	return offset + int64(end+1), nil
}
