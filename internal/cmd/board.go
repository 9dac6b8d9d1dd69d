package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/taskboard"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Manage a team's shared task board",
}

var boardAddCmd = &cobra.Command{
	Use:   "add <team> <subject>",
	Short: "Post a task to the board",
	Long: `Post a task. Teammates claim unowned pending tasks whose blockers are all
completed; --owner reserves the task for one teammate.`,
	Args: cobra.ExactArgs(2),
	RunE: runBoardAdd,
}

var boardListCmd = &cobra.Command{
	Use:   "list <team>",
	Short: "List board tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoardList,
}

var boardUpdateCmd = &cobra.Command{
	Use:   "update <team> <task-id>",
	Short: "Change a task's fields, status or dependencies",
	Args:  cobra.ExactArgs(2),
	RunE:  runBoardUpdate,
}

var boardReleaseCmd = &cobra.Command{
	Use:   "release <team> <task-id>",
	Short: "Return an in-progress task to the board",
	Args:  cobra.ExactArgs(2),
	RunE:  runBoardRelease,
}

var (
	boardDescription string
	boardOwner       string
	boardBlockedBy   []string
	boardBlocks      []string

	boardStatus    string
	boardClaimable bool

	boardSubject string
)

func init() {
	boardAddCmd.Flags().StringVarP(&boardDescription, "description", "d", "", "task description (the work instruction)")
	boardAddCmd.Flags().StringVarP(&boardOwner, "owner", "o", "", "teammate the task is reserved for")
	boardAddCmd.Flags().StringSliceVar(&boardBlockedBy, "blocked-by", nil, "ids of tasks that must complete first")
	boardAddCmd.Flags().StringSliceVar(&boardBlocks, "blocks", nil, "ids of tasks this one blocks")

	boardListCmd.Flags().StringVar(&boardStatus, "status", "", "only tasks with this status")
	boardListCmd.Flags().StringVarP(&boardOwner, "owner", "o", "", "only tasks owned by this teammate")
	boardListCmd.Flags().BoolVar(&boardClaimable, "claimable", false, "only tasks a teammate could claim now")

	boardUpdateCmd.Flags().StringVar(&boardSubject, "subject", "", "new subject")
	boardUpdateCmd.Flags().StringVarP(&boardDescription, "description", "d", "", "new description")
	boardUpdateCmd.Flags().StringVarP(&boardOwner, "owner", "o", "", "new owner (\"-\" clears it)")
	boardUpdateCmd.Flags().StringVar(&boardStatus, "status", "", "new status")
	boardUpdateCmd.Flags().StringSliceVar(&boardBlockedBy, "blocked-by", nil, "add blockers")
	boardUpdateCmd.Flags().StringSliceVar(&boardBlocks, "blocks", nil, "add blocked tasks")

	boardCmd.AddCommand(boardAddCmd, boardListCmd, boardUpdateCmd, boardReleaseCmd)
	rootCmd.AddCommand(boardCmd)
}

func runBoardAdd(cmd *cobra.Command, args []string) error {
	in := taskboard.TaskInput{
		Subject:     args[1],
		Description: boardDescription,
		Owner:       boardOwner,
		BlockedBy:   boardBlockedBy,
		Blocks:      boardBlocks,
	}
	return withSession(func(s *session) error {
		t, err := s.manager.CreateTask(cmd.Context(), args[0], in)
		if err != nil {
			return err
		}
		return printTask(cmd, t, "Posted")
	})
}

func runBoardList(cmd *cobra.Command, args []string) error {
	filter := taskboard.TaskFilter{
		Status:        protocol.TaskStatus(boardStatus),
		Owner:         boardOwner,
		ClaimableOnly: boardClaimable,
	}
	return withSession(func(s *session) error {
		tasks, err := s.manager.ListTasks(args[0], filter)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if wantJSON(cmd) {
			return printJSON(out, tasks)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No tasks")
			return nil
		}
		p := newPainter(out)
		width := terminalWidth(out, 100)
		for _, t := range tasks {
			owner := t.Owner
			if owner == "" {
				owner = "-"
			}
			line := fmt.Sprintf("%-4s %s %-12s %s", t.ID, p.status(fmt.Sprintf("%-11s", t.Status)), owner, t.Subject)
			if len(t.BlockedBy) > 0 {
				line += p.muted("  blocked by " + strings.Join(t.BlockedBy, ","))
			}
			fmt.Fprintln(out, fitLine(line, width))
		}
		return nil
	})
}

func runBoardUpdate(cmd *cobra.Command, args []string) error {
	var upd taskboard.TaskUpdate
	flags := cmd.Flags()
	if flags.Changed("subject") {
		upd.Subject = &boardSubject
	}
	if flags.Changed("description") {
		upd.Description = &boardDescription
	}
	if flags.Changed("owner") {
		owner := boardOwner
		if owner == "-" {
			owner = ""
		}
		upd.Owner = &owner
	}
	if flags.Changed("status") {
		status := protocol.TaskStatus(boardStatus)
		upd.Status = &status
	}
	upd.AddBlockedBy = boardBlockedBy
	upd.AddBlocks = boardBlocks

	return withSession(func(s *session) error {
		t, err := s.manager.UpdateTask(cmd.Context(), args[0], args[1], upd)
		if err != nil {
			return err
		}
		return printTask(cmd, t, "Updated")
	})
}

func runBoardRelease(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		t, err := s.manager.ReleaseTask(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printTask(cmd, t, "Released")
	})
}

func printTask(cmd *cobra.Command, t *protocol.Task, verb string) error {
	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), t)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s task %s: %s [%s]\n", verb, t.ID, t.Subject, t.Status)
	return nil
}
