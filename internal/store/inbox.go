package store

import (
	"context"
	"time"

	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// AppendInbox appends one delivered message to member's inbox log.
func (s *Store) AppendInbox(ctx context.Context, team, member string, msg protocol.Message) error {
	return s.locker.WithLock(ctx, s.inboxLock(team, member), func() error {
		return appendLine(s.InboxPath(team, member), msg)
	})
}

// ReadInbox returns every message in member's inbox log, oldest first.
// Reads take no lock: appends are single writes and rewrites are atomic renames.
func (s *Store) ReadInbox(team, member string) ([]protocol.Message, error) {
	return readJSONL[protocol.Message](s.InboxPath(team, member))
}

// MarkInboxProcessed records that member acted on messageID.
// It reports false when the message is not in the inbox or was already
// processed; status never moves backwards.
func (s *Store) MarkInboxProcessed(ctx context.Context, team, member, messageID, by string) (bool, error) {
	var changed bool
	err := s.locker.WithLock(ctx, s.inboxLock(team, member), func() error {
		msgs, err := readJSONL[protocol.Message](s.InboxPath(team, member))
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for i := range msgs {
			if msgs[i].MessageID != messageID {
				continue
			}
			if !msgs[i].Status.CanTransition(protocol.MessageProcessed) {
				return nil
			}
			msgs[i].Status = protocol.MessageProcessed
			msgs[i].ProcessedBy = by
			msgs[i].ProcessedAt = &now
			changed = true
			return writeJSONL(s.InboxPath(team, member), msgs)
		}
		return nil
	})
	return changed, err
}

// UnprocessedInbox returns delivered messages member has not yet acted on.
func (s *Store) UnprocessedInbox(team, member string) ([]protocol.Message, error) {
	msgs, err := s.ReadInbox(team, member)
	if err != nil {
		return nil, err
	}
	out := msgs[:0]
	for _, m := range msgs {
		if m.Status != protocol.MessageProcessed {
			out = append(out, m)
		}
	}
	return out, nil
}
