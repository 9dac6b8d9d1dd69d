package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/teamwork/internal/logging"
)

// ChangeKind classifies a filesystem change seen by the Watcher.
type ChangeKind string

const (
	ChangeTeamConfig ChangeKind = "team_config"
	ChangeInbox      ChangeKind = "inbox"
	ChangeWorkItems  ChangeKind = "work_items"
	ChangeBoard      ChangeKind = "board"
)

// Change is a debounced notification that durable state moved.
// Member is set for inbox and work-item changes.
type Change struct {
	Kind   ChangeKind
	Team   string
	Member string
}

// debounceInterval coalesces bursts such as a temp write followed by rename.
const debounceInterval = 50 * time.Millisecond

// Watcher reports writes to team state made by any process on the host.
// fsnotify is not recursive, so directories are added as they appear.
type Watcher struct {
	fs        *fsnotify.Watcher
	teamsRoot string
	tasksRoot string
	logger    *logging.Logger

	changes chan Change

	mu      sync.Mutex
	watched map[string]bool
}

// NewWatcher watches teamsRoot and, if non-empty, the board tasksRoot.
// Both roots are created if missing so teams added later are seen.
func NewWatcher(teamsRoot, tasksRoot string, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fs:        fw,
		teamsRoot: filepath.Clean(teamsRoot),
		tasksRoot: tasksRoot,
		logger:    logging.OrNop(logger).WithComponent("watcher"),
		changes:   make(chan Change, 64),
		watched:   make(map[string]bool),
	}
	if tasksRoot != "" {
		w.tasksRoot = filepath.Clean(tasksRoot)
	}

	for _, root := range []string{w.teamsRoot, w.tasksRoot} {
		if root == "" {
			continue
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			_ = fw.Close()
			return nil, err
		}
		w.addTree(root)
	}
	return w, nil
}

// Changes delivers debounced changes until Run returns.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// addTree watches dir and its non-lock subdirectories.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors, continue walking
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), lockExt) {
			return filepath.SkipDir
		}
		w.add(path)
		return nil
	})
}

func (w *Watcher) add(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[dir] {
		return
	}
	if err := w.fs.Add(dir); err != nil {
		w.logger.Debug("watch add failed", "dir", dir, "error", err.Error())
		return
	}
	w.watched[dir] = true
}

// Run processes filesystem events until ctx is done, then closes Changes.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.changes)
	defer func() { _ = w.fs.Close() }()

	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer
	pending := make(map[Change]struct{})

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addTree(event.Name)
				}
			}
			if c, ok := w.classify(event.Name); ok {
				pending[c] = struct{}{}
				debounce.Reset(debounceInterval)
			}

		case <-debounce.C:
			for c := range pending {
				select {
				case w.changes <- c:
				case <-ctx.Done():
					return
				}
			}
			pending = make(map[Change]struct{})

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err.Error())
		}
	}
}

// classify maps a changed path to the state it belongs to.
func (w *Watcher) classify(path string) (Change, bool) {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".tmp") {
		return Change{}, false
	}

	if w.tasksRoot != "" {
		if rel, err := filepath.Rel(w.tasksRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
			parts := strings.Split(rel, string(filepath.Separator))
			if len(parts) == 2 && strings.HasSuffix(parts[1], ".json") {
				return Change{Kind: ChangeBoard, Team: parts[0]}, true
			}
			return Change{}, false
		}
	}

	rel, err := filepath.Rel(w.teamsRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Change{}, false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	switch {
	case len(parts) == 2 && parts[1] == ConfigFileName:
		return Change{Kind: ChangeTeamConfig, Team: parts[0]}, true
	case len(parts) == 3 && parts[1] == InboxDir && strings.HasSuffix(parts[2], logExt):
		return Change{Kind: ChangeInbox, Team: parts[0], Member: strings.TrimSuffix(parts[2], logExt)}, true
	case len(parts) == 3 && parts[1] == WorkItemsDir && strings.HasSuffix(parts[2], logExt):
		return Change{Kind: ChangeWorkItems, Team: parts[0], Member: strings.TrimSuffix(parts[2], logExt)}, true
	}
	return Change{}, false
}
