package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamwork/internal/config"
	"github.com/Iron-Ham/teamwork/internal/team"
	"github.com/Iron-Ham/teamwork/internal/util"
)

// StateFileName is the snapshot 'teamwork serve' keeps current.
const StateFileName = "state.json"

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Export, import and inspect runtime snapshots",
}

var stateExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a snapshot of every team",
	Args:  cobra.NoArgs,
	RunE:  runStateExport,
}

var stateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Recover teams after a crash",
	Long: `Recover every team on disk or named in the snapshot: running work items are
requeued and board tasks nobody is working on are released.

Run it only while no 'teamwork serve' is active; serve imports its own state
file when it starts.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateImport,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the snapshot last written by 'teamwork serve'",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var (
	stateOutput string
	stateFile   string
)

func init() {
	stateExportCmd.Flags().StringVarP(&stateOutput, "output", "o", "", "write to this file instead of stdout")
	stateShowCmd.Flags().StringVar(&stateFile, "state-file", "", "snapshot path (default <config dir>/state.json)")

	stateCmd.AddCommand(stateExportCmd, stateImportCmd, stateShowCmd)
	rootCmd.AddCommand(stateCmd)
}

func defaultStateFile() string {
	return filepath.Join(config.ConfigDir(), StateFileName)
}

// readSnapshot loads a snapshot file. A missing file is an empty snapshot.
func readSnapshot(path string) (*team.Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return team.ParseSnapshot(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return team.ParseSnapshot(data)
}

func runStateExport(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		snap, err := s.manager.ExportState()
		if err != nil {
			return err
		}
		if stateOutput == "" {
			return printJSON(cmd.OutOrStdout(), snap)
		}
		if err := util.WriteJSONAtomic(stateOutput, snap); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d teams to %s\n", len(snap.Teams), stateOutput)
		return nil
	})
}

func runStateImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	snap, err := team.ParseSnapshot(data)
	if err != nil {
		return err
	}
	return withSession(func(s *session) error {
		report, err := s.manager.ImportState(cmd.Context(), snap)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), report)
		}
		out := cmd.OutOrStdout()
		for _, name := range report.Teams {
			fmt.Fprintf(out, "%s: requeued %d work items, released %d tasks\n",
				name, report.Requeued[name], len(report.Released[name]))
		}
		for _, name := range report.Missing {
			fmt.Fprintf(out, "%s: missing on disk, skipped\n", name)
		}
		return nil
	})
}

func runStateShow(cmd *cobra.Command, args []string) error {
	path := stateFile
	if path == "" {
		path = defaultStateFile()
	}
	snap, err := readSnapshot(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, snap)
	}
	if snap.ExportedAt.IsZero() {
		fmt.Fprintln(out, "No snapshot; is 'teamwork serve' running?")
		return nil
	}
	p := newPainter(out)
	fmt.Fprintf(out, "%s %s\n", p.muted("written"), snap.ExportedAt.Local().Format("2006-01-02 15:04:05"))
	for _, ts := range snap.Teams {
		fmt.Fprintln(out, p.title(ts.Team))
		fmt.Fprintf(out, "  active: %v  idle: %v\n", ts.ActiveWorkers, ts.IdleWorkers)
		fmt.Fprintf(out, "  work: %s  tasks: %s\n", formatCounts(ts.Work), formatCounts(ts.Tasks))
		fmt.Fprintf(out, "  pending approvals: %d\n", len(ts.PendingApprovals))
	}
	return nil
}
