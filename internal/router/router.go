package router

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/event"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/metrics"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// InboxWriter durably appends a delivered message to a member's inbox.
type InboxWriter interface {
	AppendInbox(ctx context.Context, team, member string, msg protocol.Message) error
}

// SendRequest describes one send. To is ignored for broadcasts.
type SendRequest struct {
	Team      string
	Members   []string
	From      string
	To        string
	Text      string
	Type      protocol.MessageType
	Summary   string
	RequestID string
	Approved  *bool
	Feedback  string
}

// SendResult reports what a send delivered.
type SendResult struct {
	MessageID  string               `json:"message_id"`
	MessageIDs []string             `json:"message_ids"`
	Type       protocol.MessageType `json:"type"`
	RequestID  string               `json:"request_id,omitempty"`
	Summary    string               `json:"summary,omitempty"`
	Recipients []string             `json:"recipients"`
	// RecipientCount is set for broadcasts.
	RecipientCount int `json:"recipient_count,omitempty"`
}

// teamLog is the in-memory message state of one team.
type teamLog struct {
	mu       sync.Mutex
	messages map[string]*protocol.Message
	order    []string
}

// Router routes messages within teams.
type Router struct {
	inbox   InboxWriter
	emitter event.Emitter
	logger  *logging.Logger
	metrics *metrics.Collector

	mu    sync.Mutex
	teams map[string]*teamLog
}

// Option configures a Router.
type Option func(*Router)

// WithEmitter sets where message events are sent.
func WithEmitter(e event.Emitter) Option {
	return func(r *Router) {
		r.emitter = e
	}
}

// WithLogger sets the router's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithMetrics sets the collector that counts sent messages.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New creates a Router that appends deliveries through inbox.
func New(inbox InboxWriter, opts ...Option) *Router {
	r := &Router{
		inbox: inbox,
		teams: make(map[string]*teamLog),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.emitter == nil {
		r.emitter = event.Discard
	}
	r.logger = logging.OrNop(r.logger).WithComponent("router")
	return r
}

func (r *Router) team(name string) *teamLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	tl, ok := r.teams[name]
	if !ok {
		tl = &teamLog{messages: make(map[string]*protocol.Message)}
		r.teams[name] = tl
	}
	return tl
}

func (r *Router) lookup(name string) (*teamLog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tl, ok := r.teams[name]
	return tl, ok
}

// Send validates req and delivers one message per recipient.
// A broadcast that fails part way leaves the messages already delivered in place.
func (r *Router) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	recipients, err := r.validate(&req)
	if err != nil {
		return SendResult{}, err
	}

	result := SendResult{
		Type:       req.Type,
		RequestID:  req.RequestID,
		Summary:    req.Summary,
		Recipients: recipients,
	}
	if req.Type == protocol.MessageBroadcast {
		result.RecipientCount = len(recipients)
	}

	tl := r.team(req.Team)
	for _, to := range recipients {
		id, err := r.deliver(ctx, tl, req, to)
		if err != nil {
			return result, err
		}
		result.MessageIDs = append(result.MessageIDs, id)
	}
	result.MessageID = result.MessageIDs[0]
	return result, nil
}

func (r *Router) validate(req *SendRequest) ([]string, error) {
	if !req.Type.IsValid() {
		return nil, errors.NewValidationErrorf("invalid message type %q", req.Type).
			WithField("type").WithValue(string(req.Type))
	}
	if !slices.Contains(req.Members, req.From) {
		return nil, errors.NewNotFoundError("teammate", req.From)
	}
	if req.Type.RequiresSummary() {
		if err := protocol.RequireText("summary", req.Summary); err != nil {
			return nil, err
		}
	}
	if req.Type.RequiresRequestID() {
		if err := protocol.RequireText("request_id", req.RequestID); err != nil {
			return nil, err
		}
	}
	if req.Type == protocol.MessagePlanApprovalResponse && req.Approved == nil {
		return nil, errors.NewValidationError("plan_approval_response requires approved").
			WithField("approved")
	}
	if req.Type == protocol.MessageShutdownRequest && req.RequestID == "" {
		req.RequestID = "shutdown-" + uuid.NewString()
	}

	if req.Type == protocol.MessageBroadcast {
		var recipients []string
		for _, m := range req.Members {
			if m != req.From {
				recipients = append(recipients, m)
			}
		}
		if len(recipients) == 0 {
			return nil, errors.NewValidationErrorf("team %s has no members besides %s", req.Team, req.From).
				WithField("to")
		}
		return recipients, nil
	}

	if err := protocol.RequireText("to", req.To); err != nil {
		return nil, err
	}
	if !slices.Contains(req.Members, req.To) {
		return nil, errors.NewNotFoundError("teammate", req.To)
	}
	if req.To == req.From {
		return nil, errors.NewValidationError("cannot send a message to yourself").
			WithField("to").WithValue(req.To)
	}
	return []string{req.To}, nil
}

func (r *Router) deliver(ctx context.Context, tl *teamLog, req SendRequest, to string) (string, error) {
	msg := &protocol.Message{
		MessageID: "m-" + uuid.NewString(),
		TeamName:  req.Team,
		From:      req.From,
		To:        to,
		Text:      req.Text,
		Type:      req.Type,
		Summary:   req.Summary,
		RequestID: req.RequestID,
		Approved:  req.Approved,
		Feedback:  req.Feedback,
		Status:    protocol.MessagePending,
		CreatedAt: time.Now().UTC(),
	}

	tl.mu.Lock()
	tl.messages[msg.MessageID] = msg
	tl.order = append(tl.order, msg.MessageID)
	durable := *msg
	tl.mu.Unlock()

	durable.Status = protocol.MessageDelivered
	if err := r.inbox.AppendInbox(ctx, req.Team, to, durable); err != nil {
		r.logger.Warn("inbox append failed",
			"team", req.Team, "to", to, "message_id", msg.MessageID, "error", err)
		return "", errors.Wrapf(err, "deliver message to %s", to)
	}

	tl.mu.Lock()
	if msg.Status.CanTransition(protocol.MessageDelivered) {
		msg.Status = protocol.MessageDelivered
	}
	tl.mu.Unlock()

	r.metrics.RecordMessage(req.Team, string(req.Type))
	r.emitter.Emit(req.Team, protocol.SendEventType(req.Type), map[string]any{
		"message_id": msg.MessageID,
		"from":       msg.From,
		"to":         to,
		"type":       string(msg.Type),
		"summary":    msg.Summary,
		"request_id": msg.RequestID,
	})
	r.logger.Debug("message delivered",
		"team", req.Team, "from", req.From, "to", to, "type", string(req.Type), "message_id", msg.MessageID)
	return msg.MessageID, nil
}

// MarkProcessed records that by acted on messageID.
// Acknowledging an already processed message is a no-op.
func (r *Router) MarkProcessed(team, messageID, by string) (protocol.Message, error) {
	tl, ok := r.lookup(team)
	if !ok {
		return protocol.Message{}, errors.NewNotFoundError("message", messageID)
	}

	tl.mu.Lock()
	msg, ok := tl.messages[messageID]
	if !ok {
		tl.mu.Unlock()
		return protocol.Message{}, errors.NewNotFoundError("message", messageID)
	}
	changed := msg.Status.CanTransition(protocol.MessageProcessed)
	if changed {
		now := time.Now().UTC()
		msg.Status = protocol.MessageProcessed
		msg.ProcessedBy = by
		msg.ProcessedAt = &now
	}
	out := *msg
	tl.mu.Unlock()

	if changed {
		r.emitter.Emit(team, protocol.EventMessageAck, map[string]any{
			"message_id":   messageID,
			"processed_by": by,
		})
	}
	return out, nil
}

// Get returns a copy of a message this router sent.
func (r *Router) Get(team, messageID string) (protocol.Message, error) {
	tl, ok := r.lookup(team)
	if !ok {
		return protocol.Message{}, errors.NewNotFoundError("message", messageID)
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	msg, ok := tl.messages[messageID]
	if !ok {
		return protocol.Message{}, errors.NewNotFoundError("message", messageID)
	}
	return *msg, nil
}

// Counts returns the number of the team's messages in each status.
func (r *Router) Counts(team string) map[protocol.MessageStatus]int {
	counts := map[protocol.MessageStatus]int{
		protocol.MessagePending:   0,
		protocol.MessageDelivered: 0,
		protocol.MessageProcessed: 0,
	}
	tl, ok := r.lookup(team)
	if !ok {
		return counts
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for _, msg := range tl.messages {
		counts[msg.Status]++
	}
	return counts
}

// Recent returns up to n of the team's most recent messages, oldest first.
func (r *Router) Recent(team string, n int) []protocol.Message {
	tl, ok := r.lookup(team)
	if !ok || n <= 0 {
		return []protocol.Message{}
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	ids := tl.order
	if len(ids) > n {
		ids = ids[len(ids)-n:]
	}
	out := make([]protocol.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *tl.messages[id])
	}
	return out
}

// Forget drops everything the router holds for team.
func (r *Router) Forget(team string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.teams, team)
}
