package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/team"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Review plan approval requests",
	Long: `Plan approval requests are held by the running 'teamwork serve'. These
commands read them from its state file and answer through the teammate's
inbox, so they work from any shell.`,
}

var approvalsListCmd = &cobra.Command{
	Use:   "list [team]",
	Short: "List pending plan approval requests",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApprovalsList,
}

var approvalsRespondCmd = &cobra.Command{
	Use:   "respond <team> <request-id>",
	Short: "Approve or reject a plan",
	Args:  cobra.ExactArgs(2),
	RunE:  runApprovalsRespond,
}

var (
	approvalsStateFile string
	approvalsTeammate  string
	approvalsApprove   bool
	approvalsReject    bool
	approvalsFeedback  string
)

func init() {
	approvalsCmd.PersistentFlags().StringVar(&approvalsStateFile, "state-file", "", "snapshot path (default <config dir>/state.json)")

	approvalsRespondCmd.Flags().BoolVar(&approvalsApprove, "approve", false, "approve the plan")
	approvalsRespondCmd.Flags().BoolVar(&approvalsReject, "reject", false, "reject the plan")
	approvalsRespondCmd.Flags().StringVar(&approvalsFeedback, "feedback", "", "feedback for the teammate")
	approvalsRespondCmd.Flags().StringVar(&approvalsTeammate, "teammate", "", "requesting teammate (default: looked up in the state file)")
	approvalsRespondCmd.MarkFlagsMutuallyExclusive("approve", "reject")
	approvalsRespondCmd.MarkFlagsOneRequired("approve", "reject")

	approvalsCmd.AddCommand(approvalsListCmd, approvalsRespondCmd)
	rootCmd.AddCommand(approvalsCmd)
}

func approvalsSnapshot() (*team.Snapshot, error) {
	path := approvalsStateFile
	if path == "" {
		path = defaultStateFile()
	}
	return readSnapshot(path)
}

// pendingApprovals returns the pending requests of teamName, or of every team
// when it is empty.
func pendingApprovals(snap *team.Snapshot, teamName string) []protocol.ApprovalRequest {
	var out []protocol.ApprovalRequest
	for _, ts := range snap.Teams {
		if teamName == "" || ts.Team == teamName {
			out = append(out, ts.PendingApprovals...)
		}
	}
	return out
}

func runApprovalsList(cmd *cobra.Command, args []string) error {
	snap, err := approvalsSnapshot()
	if err != nil {
		return err
	}
	teamName := ""
	if len(args) == 1 {
		teamName = args[0]
	}
	pending := pendingApprovals(snap, teamName)

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		if pending == nil {
			pending = []protocol.ApprovalRequest{}
		}
		return printJSON(out, pending)
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending approvals")
		return nil
	}
	p := newPainter(out)
	for _, req := range pending {
		fmt.Fprintf(out, "%s  %s/%s  task %s: %s\n",
			p.heading(req.RequestID), req.TeamName, req.Teammate, req.TaskID, req.Subject)
	}
	return nil
}

func runApprovalsRespond(cmd *cobra.Command, args []string) error {
	teamName, requestID := args[0], args[1]

	teammate := approvalsTeammate
	if teammate == "" {
		snap, err := approvalsSnapshot()
		if err != nil {
			return err
		}
		for _, req := range pendingApprovals(snap, teamName) {
			if req.RequestID == requestID {
				teammate = req.Teammate
			}
		}
		if teammate == "" {
			return fmt.Errorf("request %s is not pending in the state file; pass --teammate", requestID)
		}
	}

	summary := "plan rejected"
	if approvalsApprove {
		summary = "plan approved"
	}
	return withSession(func(s *session) error {
		t, err := s.manager.GetTeam(teamName)
		if err != nil {
			return err
		}
		res, err := s.manager.SendMessage(cmd.Context(), teamName, team.SendInput{
			From:      t.Lead(),
			To:        teammate,
			Type:      protocol.MessagePlanApprovalResponse,
			Text:      approvalsFeedback,
			Summary:   summary,
			RequestID: requestID,
			Approved:  protocol.BoolPtr(approvalsApprove),
			Feedback:  approvalsFeedback,
		})
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s for %s to %s\n", summary, requestID, teammate)
		return nil
	})
}
