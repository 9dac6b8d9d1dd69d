package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/team"
)

var sendCmd = &cobra.Command{
	Use:   "send <team> <to> <text...>",
	Short: "Send a message to a teammate",
	Long: `Send a message into a teammate's inbox. The sender defaults to the lead.

Use --type broadcast (and any <to>, conventionally "all") to reach every other
member, or --type shutdown_request to ask a teammate to stop.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

var (
	sendFrom      string
	sendType      string
	sendSummary   string
	sendRequestID string
	sendApprove   bool
	sendReject    bool
	sendFeedback  string
)

func init() {
	sendCmd.Flags().StringVar(&sendFrom, "from", "", "sender (default: the team lead)")
	sendCmd.Flags().StringVarP(&sendType, "type", "t", string(protocol.MessageDirect),
		"message, broadcast, shutdown_request, shutdown_response or plan_approval_response")
	sendCmd.Flags().StringVarP(&sendSummary, "summary", "s", "", "short summary; becomes the work item title")
	sendCmd.Flags().StringVar(&sendRequestID, "request-id", "", "request being answered")
	sendCmd.Flags().BoolVar(&sendApprove, "approve", false, "approve (plan_approval_response)")
	sendCmd.Flags().BoolVar(&sendReject, "reject", false, "reject (plan_approval_response)")
	sendCmd.Flags().StringVar(&sendFeedback, "feedback", "", "feedback for a plan approval response")
	sendCmd.MarkFlagsMutuallyExclusive("approve", "reject")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	in := team.SendInput{
		From:      sendFrom,
		To:        args[1],
		Text:      strings.Join(args[2:], " "),
		Type:      protocol.MessageType(sendType),
		Summary:   sendSummary,
		RequestID: sendRequestID,
		Feedback:  sendFeedback,
	}
	if sendApprove || sendReject {
		in.Approved = protocol.BoolPtr(sendApprove)
	}

	return withSession(func(s *session) error {
		if in.From == "" {
			t, err := s.manager.GetTeam(args[0])
			if err != nil {
				return err
			}
			in.From = t.Lead()
		}
		res, err := s.manager.SendMessage(cmd.Context(), args[0], in)
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s %s to %s\n", res.Type, res.MessageID, strings.Join(res.Recipients, ", "))
		return nil
	})
}
