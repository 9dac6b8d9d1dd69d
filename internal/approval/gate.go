package approval

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/event"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// Gate holds plan approval requests keyed by request ID.
type Gate struct {
	mu       sync.Mutex
	requests map[string]*protocol.ApprovalRequest
	order    []string // request IDs in creation order

	emitter event.Emitter
	logger  *logging.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithEmitter sets where plan_approval_request events are sent.
func WithEmitter(e event.Emitter) Option {
	return func(g *Gate) {
		g.emitter = e
	}
}

// WithLogger sets the gate's logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// NewGate creates an empty Gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		requests: make(map[string]*protocol.ApprovalRequest),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.emitter == nil {
		g.emitter = event.Discard
	}
	g.logger = logging.OrNop(g.logger).WithComponent("approval")
	return g
}

// CreateRequest opens a pending request for teammate to work on taskID.
func (g *Gate) CreateRequest(team, teammate, taskID, subject string) protocol.ApprovalRequest {
	now := time.Now().UTC()
	req := &protocol.ApprovalRequest{
		RequestID: "plan-" + uuid.NewString(),
		TeamName:  team,
		Teammate:  teammate,
		TaskID:    taskID,
		Subject:   subject,
		Status:    protocol.ApprovalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	g.mu.Lock()
	g.requests[req.RequestID] = req
	g.order = append(g.order, req.RequestID)
	out := *req
	g.mu.Unlock()

	// Emit outside the mutex; bus handlers may call back into the gate.
	g.emitter.Emit(team, protocol.EventPlanApprovalRequest, map[string]any{
		"request_id": out.RequestID,
		"teammate":   teammate,
		"task_id":    taskID,
		"subject":    subject,
	})
	g.logger.Info("plan approval requested",
		"team", team, "teammate", teammate, "task_id", taskID, "request_id", out.RequestID)
	return out
}

// ApplyResponse decides a pending request. It returns false, without error,
// when the request is unknown, belongs to a different (team, teammate) pair,
// or was already decided.
func (g *Gate) ApplyResponse(team, teammate, requestID string, approved bool, feedback string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requests[requestID]
	if !ok || req.TeamName != team || req.Teammate != teammate {
		return false
	}
	if req.Status != protocol.ApprovalPending {
		return false
	}

	req.Approved = approved
	req.Feedback = feedback
	req.Status = protocol.ApprovalRejected
	if approved {
		req.Status = protocol.ApprovalApproved
	}
	req.UpdatedAt = time.Now().UTC()
	g.logger.Info("plan approval decided",
		"team", team, "teammate", teammate, "request_id", requestID, "approved", approved)
	return true
}

// ClaimNextApproved marks the oldest approved, undispatched request for the
// pair as dispatched and returns it. Each request is handed out once.
func (g *Gate) ClaimNextApproved(team, teammate string) (protocol.ApprovalRequest, bool) {
	return g.claimNext(team, teammate, protocol.ApprovalApproved)
}

// ClaimNextRejected is ClaimNextApproved for rejected requests.
func (g *Gate) ClaimNextRejected(team, teammate string) (protocol.ApprovalRequest, bool) {
	return g.claimNext(team, teammate, protocol.ApprovalRejected)
}

func (g *Gate) claimNext(team, teammate string, status protocol.ApprovalStatus) (protocol.ApprovalRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.order {
		req := g.requests[id]
		if req.TeamName != team || req.Teammate != teammate {
			continue
		}
		if req.Status != status || req.Dispatched {
			continue
		}
		req.Dispatched = true
		req.UpdatedAt = time.Now().UTC()
		return *req, true
	}
	return protocol.ApprovalRequest{}, false
}

// Pending returns the pair's oldest undecided request, if any.
func (g *Gate) Pending(team, teammate string) (protocol.ApprovalRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.order {
		req := g.requests[id]
		if req.TeamName == team && req.Teammate == teammate && req.Status == protocol.ApprovalPending {
			return *req, true
		}
	}
	return protocol.ApprovalRequest{}, false
}

// Get returns a copy of the request.
func (g *Gate) Get(requestID string) (protocol.ApprovalRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.requests[requestID]
	if !ok {
		return protocol.ApprovalRequest{}, errors.NewNotFoundError("approval request", requestID)
	}
	return *req, nil
}

// List returns the team's requests in creation order. An empty status
// matches every request.
func (g *Gate) List(team string, status protocol.ApprovalStatus) []protocol.ApprovalRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := []protocol.ApprovalRequest{}
	for _, id := range g.order {
		req := g.requests[id]
		if req.TeamName != team {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, *req)
	}
	return out
}

// Counts returns the number of the team's requests in each status.
func (g *Gate) Counts(team string) map[protocol.ApprovalStatus]int {
	counts := map[protocol.ApprovalStatus]int{
		protocol.ApprovalPending:  0,
		protocol.ApprovalApproved: 0,
		protocol.ApprovalRejected: 0,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, req := range g.requests {
		if req.TeamName == team {
			counts[req.Status]++
		}
	}
	return counts
}

// Forget drops every request belonging to team.
func (g *Gate) Forget(team string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.order[:0]
	for _, id := range g.order {
		if g.requests[id].TeamName == team {
			delete(g.requests, id)
			continue
		}
		kept = append(kept, id)
	}
	g.order = kept
}
