package team

import (
	"context"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/router"
)

// SendInput is a message as submitted by a caller. To is ignored for
// broadcasts.
type SendInput struct {
	From      string               `json:"from" yaml:"from"`
	To        string               `json:"to,omitempty" yaml:"to,omitempty"`
	Text      string               `json:"text" yaml:"text"`
	Type      protocol.MessageType `json:"type" yaml:"type"`
	Summary   string               `json:"summary,omitempty" yaml:"summary,omitempty"`
	RequestID string               `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Approved  *bool                `json:"approved,omitempty" yaml:"approved,omitempty"`
	Feedback  string               `json:"feedback,omitempty" yaml:"feedback,omitempty"`
}

func (m *Manager) sendRequest(t *protocol.Team, in SendInput) router.SendRequest {
	typ := in.Type
	if typ == "" {
		typ = protocol.MessageDirect
	}
	return router.SendRequest{
		Team:      t.TeamName,
		Members:   t.MemberNames(),
		From:      in.From,
		To:        in.To,
		Text:      in.Text,
		Type:      typ,
		Summary:   in.Summary,
		RequestID: in.RequestID,
		Approved:  in.Approved,
		Feedback:  in.Feedback,
	}
}

// SendMessage routes a message within team and makes sure every worker
// recipient is running to receive it. An empty type means a direct message.
func (m *Manager) SendMessage(ctx context.Context, team string, in SendInput) (router.SendResult, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return router.SendResult{}, err
	}
	res, err := m.router.Send(ctx, m.sendRequest(t, in))
	if err != nil {
		return res, err
	}

	for _, to := range res.Recipients {
		member, ok := t.Member(to)
		if !ok || member.IsLead() {
			continue
		}
		if res.Type == protocol.MessageShutdownRequest {
			// A stopped worker is not restarted only to be stopped again.
			m.sup.Wake(t.TeamName, to)
			continue
		}
		m.ensureWorker(t.TeamName, to)
	}
	return res, nil
}

// MarkMessageProcessed acknowledges a message on behalf of by, both in the
// router and in by's durable inbox. Messages sent by another process are
// only known to the inbox.
func (m *Manager) MarkMessageProcessed(ctx context.Context, team, messageID, by string) (protocol.Message, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return protocol.Message{}, err
	}

	msg, err := m.router.MarkProcessed(t.TeamName, messageID, by)
	switch {
	case err == nil:
		if _, err := m.store.MarkInboxProcessed(ctx, t.TeamName, msg.To, messageID, by); err != nil {
			return msg, err
		}
		return msg, nil
	case errors.CodeOf(err) != errors.CodeNotFound:
		return protocol.Message{}, err
	}

	if !t.HasMember(by) {
		return protocol.Message{}, errors.NewNotFoundError("message", messageID)
	}
	if _, err := m.store.MarkInboxProcessed(ctx, t.TeamName, by, messageID, by); err != nil {
		return protocol.Message{}, err
	}
	inbox, err := m.store.ReadInbox(t.TeamName, by)
	if err != nil {
		return protocol.Message{}, err
	}
	for _, im := range inbox {
		if im.MessageID == messageID {
			return im, nil
		}
	}
	return protocol.Message{}, errors.NewNotFoundError("message", messageID)
}

// ListPlanApprovals lists a team's approval requests in creation order. An
// empty status lists them all.
func (m *Manager) ListPlanApprovals(team string, status protocol.ApprovalStatus) ([]protocol.ApprovalRequest, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return nil, err
	}
	if status != "" && !status.IsValid() {
		return nil, errors.NewValidationErrorf("invalid approval status %q", status).
			WithField("status").WithValue(string(status))
	}
	return m.gate.List(t.TeamName, status), nil
}

// RespondPlanApproval decides a pending request and notifies the teammate
// with a plan_approval_response from the lead. Deciding a request twice
// fails with CONFLICT.
func (m *Manager) RespondPlanApproval(ctx context.Context, team, requestID string, approved bool, feedback string) (protocol.ApprovalRequest, error) {
	t, err := m.loadTeam(team)
	if err != nil {
		return protocol.ApprovalRequest{}, err
	}
	req, err := m.gate.Get(requestID)
	if err != nil {
		return protocol.ApprovalRequest{}, err
	}
	if req.TeamName != t.TeamName {
		return protocol.ApprovalRequest{}, errors.NewNotFoundError("approval request", requestID)
	}
	if !m.gate.ApplyResponse(t.TeamName, req.Teammate, requestID, approved, feedback) {
		return protocol.ApprovalRequest{}, errors.NewConflictError("approval request", requestID,
			"already "+string(req.Status))
	}

	if lead := t.Lead(); lead != "" && lead != req.Teammate {
		summary := "plan rejected"
		if approved {
			summary = "plan approved"
		}
		if _, err := m.SendMessage(ctx, t.TeamName, SendInput{
			From:      lead,
			To:        req.Teammate,
			Type:      protocol.MessagePlanApprovalResponse,
			Text:      feedback,
			Summary:   summary,
			RequestID: requestID,
			Approved:  protocol.BoolPtr(approved),
			Feedback:  feedback,
		}); err != nil {
			m.logger.WithTeam(t.TeamName).Warn("approval notification failed",
				"request_id", requestID, "error", err.Error())
		}
	}
	m.ensureWorker(t.TeamName, req.Teammate)
	return m.gate.Get(requestID)
}
