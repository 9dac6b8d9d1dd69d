package team

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
	"github.com/Iron-Ham/teamwork/internal/taskboard"
	"github.com/Iron-Ham/teamwork/internal/worker"
)

func (m *Manager) pollFunc(team, name string) worker.PollFunc {
	return func(ctx context.Context) (bool, error) {
		return m.poll(ctx, team, name)
	}
}

// poll is one worker tick for (team, name). It stops at the first step that
// did something: inbox, then queued work, then the board.
func (m *Manager) poll(ctx context.Context, team, name string) (bool, error) {
	if m.isDeleting(team) {
		return false, nil
	}
	t, err := m.store.LoadTeam(team)
	if err != nil {
		if errors.CodeOf(err) == errors.CodeNotFound {
			m.sup.Stop(team, name)
			return false, nil
		}
		return false, err
	}
	member, ok := t.Member(name)
	if !ok || member.IsLead() {
		m.sup.Stop(team, name)
		return false, nil
	}

	if did, err := m.drainInbox(ctx, t, member); did || err != nil {
		return did, err
	}
	if did, err := m.runNextWorkItem(ctx, member, team); did || err != nil {
		return did, err
	}
	return m.autoClaim(ctx, team, member)
}

// drainInbox handles and acknowledges every unprocessed inbox message.
func (m *Manager) drainInbox(ctx context.Context, t *protocol.Team, member protocol.Member) (bool, error) {
	msgs, err := m.store.UnprocessedInbox(t.TeamName, member.Name)
	if err != nil {
		return false, err
	}

	did := false
	for _, msg := range msgs {
		shutdown := false
		if m.markSeen(t.TeamName, msg.MessageID) {
			var err error
			shutdown, err = m.handleMessage(ctx, t, member, msg)
			if err != nil {
				// Left unacknowledged so the next tick tries again.
				m.unmarkSeen(t.TeamName, msg.MessageID)
				return did, err
			}
			did = true
		}
		if err := m.ack(ctx, t.TeamName, member.Name, msg.MessageID); err != nil {
			return did, err
		}
		if shutdown {
			m.sup.Stop(t.TeamName, member.Name)
			return true, nil
		}
	}
	return did, nil
}

// handleMessage acts on one inbox message and reports whether the worker
// was asked to shut down. An error means the message was not acted on.
func (m *Manager) handleMessage(ctx context.Context, t *protocol.Team, member protocol.Member, msg protocol.Message) (bool, error) {
	logger := m.logger.WithTeam(t.TeamName).WithTeammate(member.Name).With("message_id", msg.MessageID)

	switch msg.Type {
	case protocol.MessageDirect, protocol.MessageBroadcast:
		title := msg.Summary
		if title == "" {
			title = fmt.Sprintf("message from %s", msg.From)
		}
		instruction := msg.Text
		if instruction == "" {
			instruction = msg.Summary
		}
		if _, err := m.queueWork(ctx, t.TeamName, protocol.WorkItem{
			TeamName:    t.TeamName,
			Owner:       member.Name,
			Title:       title,
			Instruction: instruction,
			Payload: map[string]any{
				protocol.PayloadSourceMessageID: msg.MessageID,
				protocol.PayloadMessageType:     string(msg.Type),
				"from":                          msg.From,
			},
		}); err != nil {
			logger.Warn("queue work from message failed", "error", err.Error())
			return false, err
		}

	case protocol.MessageShutdownRequest:
		if t.HasMember(msg.From) && msg.From != member.Name {
			if _, err := m.router.Send(ctx, m.sendRequest(t, SendInput{
				From:      member.Name,
				To:        msg.From,
				Type:      protocol.MessageShutdownResponse,
				Text:      "shutting down",
				RequestID: msg.RequestID,
			})); err != nil {
				logger.Warn("shutdown response failed", "error", err.Error())
			}
		}
		logger.Info("shutdown requested", "from", msg.From)
		return true, nil

	case protocol.MessagePlanApprovalResponse:
		approved := msg.Approved != nil && *msg.Approved
		if !m.gate.ApplyResponse(t.TeamName, member.Name, msg.RequestID, approved, msg.Feedback) {
			logger.Debug("approval response not applied", "request_id", msg.RequestID)
		}

	default:
		logger.Debug("message needs no action", "type", string(msg.Type))
	}
	return false, nil
}

// ack marks a message processed in the durable inbox and, when this process
// routed it, in the router.
func (m *Manager) ack(ctx context.Context, team, name, messageID string) error {
	if _, err := m.store.MarkInboxProcessed(ctx, team, name, messageID, name); err != nil {
		return err
	}
	if _, err := m.router.MarkProcessed(team, messageID, name); err != nil && errors.CodeOf(err) != errors.CodeNotFound {
		return err
	}
	return nil
}

// runNextWorkItem claims and executes the owner's oldest queued item.
func (m *Manager) runNextWorkItem(ctx context.Context, member protocol.Member, team string) (bool, error) {
	item, err := m.store.ClaimNextWorkItem(ctx, team, member.Name)
	if err != nil || item == nil {
		return false, err
	}
	m.executeWorkItem(ctx, member, item)
	return true, nil
}

// autoClaim resumes decided approvals first, then self-assigns the next
// claimable board task. A teammate with an undecided request claims nothing.
func (m *Manager) autoClaim(ctx context.Context, team string, member protocol.Member) (bool, error) {
	logger := m.logger.WithTeam(team).WithTeammate(member.Name)

	if req, ok := m.gate.ClaimNextApproved(team, member.Name); ok {
		task, err := m.board.GetTask(team, req.TaskID)
		if err != nil {
			logger.Warn("approved task unavailable", "task_id", req.TaskID, "error", err.Error())
			return true, nil
		}
		_, err = m.queueWork(ctx, team, taskWorkItem(team, member.Name, task, req.RequestID))
		return true, err
	}

	if req, ok := m.gate.ClaimNextRejected(team, member.Name); ok {
		status := protocol.TaskCanceled
		if _, err := m.board.UpdateTask(ctx, team, req.TaskID, taskboard.TaskUpdate{Status: &status}); err != nil {
			logger.Warn("cancel rejected task failed", "task_id", req.TaskID, "error", err.Error())
			return true, nil
		}
		m.emit(team, protocol.EventTaskUpdated, map[string]any{
			"task_id":  req.TaskID,
			"status":   string(status),
			"feedback": req.Feedback,
		})
		logger.Info("plan rejected, task canceled", "task_id", req.TaskID)
		return true, nil
	}

	if _, waiting := m.gate.Pending(team, member.Name); waiting {
		return false, nil
	}

	task, err := m.board.ClaimNextTask(ctx, team, member.Name)
	if err != nil || task == nil {
		return false, err
	}
	m.emit(team, protocol.EventTaskClaimed, map[string]any{
		"task_id": task.ID,
		"owner":   member.Name,
		"subject": task.Subject,
	})

	if member.ToolPolicy.RequiresPlanApproval() {
		req := m.gate.CreateRequest(team, member.Name, task.ID, task.Subject)
		logger.Info("plan approval requested", "task_id", task.ID, "request_id", req.RequestID)
		return true, nil
	}
	_, err = m.queueWork(ctx, team, taskWorkItem(team, member.Name, task, ""))
	return true, err
}

// taskWorkItem turns a claimed board task into a work item for owner.
func taskWorkItem(team, owner string, task *protocol.Task, approvalID string) protocol.WorkItem {
	instruction := task.Description
	if instruction == "" {
		instruction = task.Subject
	}
	payload := map[string]any{protocol.PayloadBoardTaskID: task.ID}
	if approvalID != "" {
		payload[protocol.PayloadApprovalID] = approvalID
	}
	return protocol.WorkItem{
		TeamName:    team,
		Owner:       owner,
		Title:       task.Subject,
		Instruction: instruction,
		Payload:     payload,
	}
}
