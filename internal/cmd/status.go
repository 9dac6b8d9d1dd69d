package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamwork/internal/team"
)

var statusCmd = &cobra.Command{
	Use:   "status <team>",
	Short: "Show a team's members, message, work, task and approval counts",
	Long: `Show what a team is doing. Worker states are those of this process; the
live workers of a running 'teamwork serve' appear in its state file
(see 'teamwork state show').`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		st, err := s.manager.GetStatus(args[0])
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), st)
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	})
}

func printStatus(out io.Writer, st team.TeamStatus) {
	p := newPainter(out)
	width := terminalWidth(out, 100)

	fmt.Fprintln(out, p.title("TEAM "+st.Team))
	fmt.Fprintln(out)

	fmt.Fprintln(out, p.heading("MEMBERS"))
	for _, m := range st.Members {
		worker := "-"
		if m.Worker != "" {
			worker = string(m.Worker)
		}
		line := fmt.Sprintf("  %-16s %-7s %s", m.Name, m.Role, p.status(fmt.Sprintf("%-9s", worker)))
		if m.RequirePlanApproval {
			line += p.muted(" plan-approval")
		}
		if m.LastActive != nil {
			line += p.muted(" active " + m.LastActive.Local().Format("15:04:05"))
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s %s\n", p.heading("messages: "), formatCounts(st.Messages))
	fmt.Fprintf(out, "%s %s\n", p.heading("work:     "), formatCounts(st.Work))
	fmt.Fprintf(out, "%s %s\n", p.heading("tasks:    "), formatCounts(st.Tasks))
	fmt.Fprintf(out, "%s %s\n", p.heading("approvals:"), formatCounts(st.Approvals))

	if len(st.RecentMessages) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, p.heading("RECENT MESSAGES"))
		for _, msg := range st.RecentMessages {
			text := msg.Summary
			if text == "" {
				text = msg.Text
			}
			line := fmt.Sprintf("  %s %s -> %s [%s] %s",
				p.muted(msg.CreatedAt.Local().Format("15:04:05")), msg.From, msg.To, msg.Type, firstLine(text))
			fmt.Fprintln(out, fitLine(line, width))
		}
	}
}
