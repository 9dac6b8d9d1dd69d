package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/team"
)

// titleWidth bounds titles derived from an instruction.
const titleWidth = 48

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Fan out, collect, retry and cancel work items",
}

var workFanoutCmd = &cobra.Command{
	Use:   "fanout <team>",
	Short: "Assign work items to teammates",
	Long: `Assign one work item per --assign flag or per entry of a YAML file.

  teamwork work fanout docs --assign writer="draft the intro" --assign reviewer="review chapter 2"

A file holds a list of {owner, title, instruction, payload} entries.
With --wait the work runs in this process and the command returns when every
item is done; otherwise a running 'teamwork serve' picks it up.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkFanout,
}

var workCollectCmd = &cobra.Command{
	Use:   "collect <team> [work-id...]",
	Short: "Show work items and their results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWorkCollect,
}

var workRetryCmd = &cobra.Command{
	Use:   "retry <team> <work-id>",
	Short: "Requeue a failed or canceled work item",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkRetry,
}

var workCancelCmd = &cobra.Command{
	Use:   "cancel <team> <work-id>",
	Short: "Cancel a queued work item",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkCancel,
}

var (
	workAssign  []string
	workFile    string
	workWait    bool
	workTimeout time.Duration
)

func init() {
	workFanoutCmd.Flags().StringArrayVarP(&workAssign, "assign", "a", nil, "owner=instruction (repeatable)")
	workFanoutCmd.Flags().StringVarP(&workFile, "file", "f", "", "YAML list of work items")
	workFanoutCmd.Flags().BoolVarP(&workWait, "wait", "w", false, "run the work here and wait for it")
	workFanoutCmd.Flags().DurationVar(&workTimeout, "timeout", 10*time.Minute, "how long --wait waits")

	workCmd.AddCommand(workFanoutCmd, workCollectCmd, workRetryCmd, workCancelCmd)
	rootCmd.AddCommand(workCmd)
}

// parseAssignments turns owner=instruction flags into work inputs. The title
// is the start of the instruction.
func parseAssignments(specs []string) ([]team.WorkInput, error) {
	out := make([]team.WorkInput, 0, len(specs))
	for _, spec := range specs {
		owner, instruction, ok := strings.Cut(spec, "=")
		if !ok || strings.TrimSpace(owner) == "" {
			return nil, fmt.Errorf("--assign %q: want owner=instruction", spec)
		}
		instruction = strings.TrimSpace(instruction)
		out = append(out, team.WorkInput{
			Owner:       strings.TrimSpace(owner),
			Title:       shortTitle(instruction),
			Instruction: instruction,
		})
	}
	return out, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// shortTitle is the first line of an instruction, cut to titleWidth runes.
func shortTitle(instruction string) string {
	line := []rune(strings.TrimSpace(firstLine(instruction)))
	if len(line) <= titleWidth {
		return string(line)
	}
	return strings.TrimSpace(string(line[:titleWidth-1])) + ellipsis
}

func readWorkFile(path string) ([]team.WorkInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read work file: %w", err)
	}
	var inputs []team.WorkInput
	if err := yaml.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("invalid work file: %w", err)
	}
	return inputs, nil
}

func runWorkFanout(cmd *cobra.Command, args []string) error {
	inputs, err := parseAssignments(workAssign)
	if err != nil {
		return err
	}
	if workFile != "" {
		fromFile, err := readWorkFile(workFile)
		if err != nil {
			return err
		}
		inputs = append(inputs, fromFile...)
	}
	if len(inputs) == 0 {
		return fmt.Errorf("nothing to assign: use --assign or --file")
	}

	s, err := openSession(sessionOptions{workers: workWait})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	items, err := s.manager.FanoutWork(cmd.Context(), args[0], inputs)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.WorkID)
	}
	if !workWait {
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), items)
		}
		for _, it := range items {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s %s\n", it.WorkID, it.Owner, it.Title)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), workTimeout)
	defer cancel()
	report, err := waitForWork(ctx, s.manager, args[0], ids, s.cfg.Worker.PollInterval())
	if err != nil {
		return err
	}
	return printWorkReport(cmd, report)
}

// waitForWork polls CollectWork until every item is terminal.
func waitForWork(ctx context.Context, m *team.Manager, teamName string, ids []string, every time.Duration) (team.WorkReport, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		report, err := m.CollectWork(teamName, ids)
		if err != nil {
			return team.WorkReport{}, err
		}
		if report.Done() {
			return report, nil
		}
		select {
		case <-ctx.Done():
			return report, fmt.Errorf("gave up waiting for work: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func runWorkCollect(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		report, err := s.manager.CollectWork(args[0], args[1:])
		if err != nil {
			return err
		}
		return printWorkReport(cmd, report)
	})
}

func printWorkReport(cmd *cobra.Command, report team.WorkReport) error {
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, report)
	}
	p := newPainter(out)
	width := terminalWidth(out, 100)
	for _, it := range report.Items {
		fmt.Fprintf(out, "%s  %-12s %s %s\n", it.WorkID, it.Owner, p.status(fmt.Sprintf("%-10s", it.Status)), it.Title)
		if detail := workDetail(it); detail != "" {
			fmt.Fprintf(out, "    %s\n", p.muted(fitLine(detail, width-4)))
		}
	}
	fmt.Fprintln(out, p.heading("total:"), formatCounts(report.Counts))
	return nil
}

func workDetail(it protocol.WorkItem) string {
	switch it.Status {
	case protocol.WorkSucceeded:
		return firstLine(it.Result)
	case protocol.WorkFailed, protocol.WorkCanceled:
		return firstLine(it.Error)
	}
	return ""
}

func runWorkRetry(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		it, err := s.manager.RetryFailedWork(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printWorkItem(cmd, it, "Requeued")
	})
}

func runWorkCancel(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		it, err := s.manager.CancelWork(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printWorkItem(cmd, it, "Canceled")
	})
}

func printWorkItem(cmd *cobra.Command, it *protocol.WorkItem, verb string) error {
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, it)
	}
	fmt.Fprintf(out, "%s %s (attempt %d)\n", verb, it.WorkID, it.Attempt)
	return nil
}
