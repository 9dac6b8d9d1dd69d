package store

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// WorkUpdate describes a status change applied by UpdateWorkItemStatus.
type WorkUpdate struct {
	Status protocol.WorkStatus
	Result *string
	Error  *string
	// IfStatus, when non-empty, makes the update conditional: the item must
	// currently be in one of these states or the update fails with CONFLICT.
	IfStatus []protocol.WorkStatus
}

// NewWorkID mints a work item id.
func NewWorkID() string {
	return "w-" + uuid.NewString()
}

// CreateWorkItem appends a new queued item to its owner's log and returns it.
func (s *Store) CreateWorkItem(ctx context.Context, item protocol.WorkItem) (*protocol.WorkItem, error) {
	if item.WorkID == "" {
		item.WorkID = NewWorkID()
	}
	now := time.Now().UTC()
	item.Status = protocol.WorkQueued
	item.Attempt = 0
	item.CreatedAt = now
	item.UpdatedAt = now
	item.StartedAt = nil
	item.FinishedAt = nil

	err := s.locker.WithLock(ctx, s.workItemsLock(item.TeamName, item.Owner), func() error {
		return appendLine(s.WorkItemsPath(item.TeamName, item.Owner), item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// owners lists every owner with a work-item log, sorted.
func (s *Store) owners(team string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.TeamDir(team), WorkItemsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var owners []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logExt) {
			continue
		}
		owners = append(owners, strings.TrimSuffix(e.Name(), logExt))
	}
	slices.Sort(owners)
	return owners, nil
}

// ListWorkItems returns a team's work items, optionally for one owner.
// Items are ordered by creation time.
func (s *Store) ListWorkItems(team, owner string) ([]protocol.WorkItem, error) {
	if owner != "" {
		return readJSONL[protocol.WorkItem](s.WorkItemsPath(team, owner))
	}
	owners, err := s.owners(team)
	if err != nil {
		return nil, err
	}
	var all []protocol.WorkItem
	for _, o := range owners {
		items, err := readJSONL[protocol.WorkItem](s.WorkItemsPath(team, o))
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	slices.SortStableFunc(all, func(a, b protocol.WorkItem) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return all, nil
}

// GetWorkItem finds a work item by id across every owner log.
func (s *Store) GetWorkItem(team, workID string) (*protocol.WorkItem, error) {
	owner, err := s.findOwner(team, workID)
	if err != nil {
		return nil, err
	}
	items, err := readJSONL[protocol.WorkItem](s.WorkItemsPath(team, owner))
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].WorkID == workID {
			return &items[i], nil
		}
	}
	return nil, errors.NewNotFoundError("work item", workID)
}

// findOwner scans owner logs for the one containing workID.
func (s *Store) findOwner(team, workID string) (string, error) {
	owners, err := s.owners(team)
	if err != nil {
		return "", err
	}
	for _, o := range owners {
		items, err := readJSONL[protocol.WorkItem](s.WorkItemsPath(team, o))
		if err != nil {
			return "", err
		}
		for _, it := range items {
			if it.WorkID == workID {
				return o, nil
			}
		}
	}
	return "", errors.NewNotFoundError("work item", workID)
}

// mutateOwnerLog rewrites one owner's log under its lock.
// fn returns true when it changed something that must be written back.
func (s *Store) mutateOwnerLog(ctx context.Context, team, owner string, fn func([]protocol.WorkItem) (bool, error)) error {
	return s.locker.WithLock(ctx, s.workItemsLock(team, owner), func() error {
		path := s.WorkItemsPath(team, owner)
		items, err := readJSONL[protocol.WorkItem](path)
		if err != nil {
			return err
		}
		changed, err := fn(items)
		if err != nil || !changed {
			return err
		}
		return writeJSONL(path, items)
	})
}

// ClaimNextWorkItem moves owner's oldest queued item to running, bumps its
// attempt count and returns it. It returns nil when nothing is queued.
func (s *Store) ClaimNextWorkItem(ctx context.Context, team, owner string) (*protocol.WorkItem, error) {
	var claimed *protocol.WorkItem
	err := s.mutateOwnerLog(ctx, team, owner, func(items []protocol.WorkItem) (bool, error) {
		for i := range items {
			if items[i].Status != protocol.WorkQueued {
				continue
			}
			now := time.Now().UTC()
			items[i].Status = protocol.WorkRunning
			items[i].Attempt++
			items[i].StartedAt = &now
			items[i].FinishedAt = nil
			items[i].UpdatedAt = now
			item := items[i]
			claimed = &item
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// UpdateWorkItemStatus applies upd to the item with workID, wherever its
// owner log is. Unknown ids are NOT_FOUND.
func (s *Store) UpdateWorkItemStatus(ctx context.Context, team, workID string, upd WorkUpdate) (*protocol.WorkItem, error) {
	if !upd.Status.IsValid() {
		return nil, errors.NewValidationErrorf("unknown work status %q", upd.Status).
			WithField("status").WithValue(string(upd.Status))
	}
	owner, err := s.findOwner(team, workID)
	if err != nil {
		return nil, err
	}

	var updated *protocol.WorkItem
	err = s.mutateOwnerLog(ctx, team, owner, func(items []protocol.WorkItem) (bool, error) {
		for i := range items {
			if items[i].WorkID != workID {
				continue
			}
			if len(upd.IfStatus) > 0 && !slices.Contains(upd.IfStatus, items[i].Status) {
				return false, errors.NewConflictError("work item", workID,
					"is "+items[i].Status.String())
			}
			applyWorkUpdate(&items[i], upd, time.Now().UTC())
			item := items[i]
			updated = &item
			return true, nil
		}
		// Removed between the scan and the lock.
		return false, errors.NewNotFoundError("work item", workID)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyWorkUpdate(item *protocol.WorkItem, upd WorkUpdate, now time.Time) {
	item.Status = upd.Status
	item.UpdatedAt = now
	switch {
	case upd.Status == protocol.WorkQueued:
		item.StartedAt = nil
		item.FinishedAt = nil
		item.Result = ""
		item.Error = ""
	case upd.Status == protocol.WorkRunning:
		if item.StartedAt == nil {
			item.StartedAt = &now
		}
	case upd.Status.IsTerminal():
		item.FinishedAt = &now
	}
	if upd.Result != nil {
		item.Result = *upd.Result
	}
	if upd.Error != nil {
		item.Error = *upd.Error
	}
}

// RequeueRunning resets every running item of the team to queued and
// reports how many were changed. Used for crash recovery.
func (s *Store) RequeueRunning(ctx context.Context, team string) (int, error) {
	return s.RequeueRunningExcept(ctx, team, nil)
}

// RequeueRunningExcept is RequeueRunning that leaves alone the logs of
// owners for which busy reports true, such as owners with a live worker in
// this process.
func (s *Store) RequeueRunningExcept(ctx context.Context, team string, busy func(owner string) bool) (int, error) {
	owners, err := s.owners(team)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, owner := range owners {
		if busy != nil && busy(owner) {
			continue
		}
		err := s.mutateOwnerLog(ctx, team, owner, func(items []protocol.WorkItem) (bool, error) {
			n := 0
			now := time.Now().UTC()
			for i := range items {
				if items[i].Status == protocol.WorkRunning {
					applyWorkUpdate(&items[i], WorkUpdate{Status: protocol.WorkQueued}, now)
					n++
				}
			}
			total += n
			return n > 0, nil
		})
		if err != nil {
			return total, err
		}
	}
	if total > 0 {
		s.logger.WithTeam(team).Warn("requeued running work items", "count", total)
	}
	return total, nil
}
