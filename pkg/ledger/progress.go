package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const snapshotVersion = 1

// Snapshot is the on-disk form of the progress ledger.
type Snapshot struct {
	Version int                    `json:"version"`
	Tasks   map[TaskType]Partition `json:"tasks"`
}

// Partition holds the identifiers of one task type, sorted.
type Partition struct {
	Completed []string `json:"completed"`
	Failed    []string `json:"failed"`
}

// Option customizes a ledger.
type Option func(*options)

type options struct {
	flushEvery int
	now        func() time.Time
}

// WithFlushEvery persists the snapshot after every n mutations. Values below 1
// mean every mutation.
func WithFlushEvery(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.flushEvery = n
	}
}

func applyOptions(opts []Option) options {
	o := options{flushEvery: 1, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ProgressLedger records Completed/Failed status per identifier and task type.
// It is safe for concurrent use.
type ProgressLedger struct {
	mu      sync.RWMutex
	fs      afero.Fs
	path    string
	logger  *logrus.Logger
	opts    options
	entries map[TaskType]map[string]Status
	dirty   int
}

// NewProgressLedger creates an empty ledger backed by path. Call LoadAll to
// restore a previous snapshot.
func NewProgressLedger(fs afero.Fs, path string, logger *logrus.Logger, opts ...Option) *ProgressLedger {
	if logger == nil {
		logger = logrus.New()
	}
	return &ProgressLedger{
		fs:      fs,
		path:    path,
		logger:  logger,
		opts:    applyOptions(opts),
		entries: make(map[TaskType]map[string]Status),
	}
}

// Path returns the snapshot file location.
func (l *ProgressLedger) Path() string {
	return l.path
}

// LoadAll replaces the in-memory state with the snapshot on disk. A missing
// file yields an empty ledger; so does an unreadable one, with a warning.
func (l *ProgressLedger) LoadAll() (Snapshot, error) {
	var snap Snapshot
	found, err := readJSON(l.fs, l.path, &snap)
	if err != nil {
		if !found {
			return Snapshot{}, err
		}
		l.logger.WithFields(logrus.Fields{
			"path":  l.path,
			"error": err,
		}).Warn("Checkpoint file is corrupt, starting from an empty ledger")
		snap = Snapshot{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.install(snap)
	l.dirty = 0

	l.logger.WithFields(logrus.Fields{
		"path":  l.path,
		"found": found,
	}).Debug("Loaded progress ledger")

	return l.snapshotLocked(), nil
}

// Save replaces the ledger state with snap and persists it.
func (l *ProgressLedger) Save(snap Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.install(snap)
	return l.writeLocked()
}

// Snapshot returns a copy of the current state.
func (l *ProgressLedger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// IsDone reports whether the identifier is Completed. Never-seen identifiers
// are not done.
func (l *ProgressLedger) IsDone(id string, tt TaskType) bool {
	st, ok := l.Status(id, tt)
	return ok && st == StatusCompleted
}

// Status returns the recorded status, if any.
func (l *ProgressLedger) Status(id string, tt TaskType) (Status, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.entries[tt][id]
	return st, ok
}

// MarkDone records a completion. Marking an already Completed key is a no-op.
func (l *ProgressLedger) MarkDone(id string, tt TaskType) error {
	return l.set(id, tt, StatusCompleted)
}

// MarkFailed records a terminal failure for an identifier that was just
// attempted. It supersedes any earlier status for the key.
func (l *ProgressLedger) MarkFailed(id string, tt TaskType) error {
	return l.set(id, tt, StatusFailed)
}

// Forget drops the entry for a key.
func (l *ProgressLedger) Forget(id string, tt TaskType) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[tt][id]; !ok {
		return nil
	}
	delete(l.entries[tt], id)
	return l.touchLocked()
}

// Failed lists the Failed identifiers of a task type in sorted order.
func (l *ProgressLedger) Failed(tt TaskType) []string {
	return l.withStatus(tt, StatusFailed)
}

// Completed lists the Completed identifiers of a task type in sorted order.
func (l *ProgressLedger) Completed(tt TaskType) []string {
	return l.withStatus(tt, StatusCompleted)
}

// Counts returns the number of Completed and Failed entries for tt.
func (l *ProgressLedger) Counts(tt TaskType) Counts {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var c Counts
	for _, st := range l.entries[tt] {
		switch st {
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Flush persists pending mutations.
func (l *ProgressLedger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dirty == 0 {
		return nil
	}
	return l.writeLocked()
}

// Reset clears every entry of the given task types (all when none are given)
// and persists the result. Clearing everything removes the file.
func (l *ProgressLedger) Reset(types ...TaskType) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(types) == 0 {
		l.entries = make(map[TaskType]map[string]Status)
		l.dirty = 0
		return removeIfExists(l.fs, l.path)
	}
	for _, tt := range types {
		delete(l.entries, tt)
	}
	return l.writeLocked()
}

func (l *ProgressLedger) set(id string, tt TaskType, st Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	part, ok := l.entries[tt]
	if !ok {
		part = make(map[string]Status)
		l.entries[tt] = part
	}
	if cur, ok := part[id]; ok && cur == st {
		return nil
	}
	part[id] = st
	return l.touchLocked()
}

func (l *ProgressLedger) touchLocked() error {
	l.dirty++
	if l.dirty >= l.opts.flushEvery {
		return l.writeLocked()
	}
	return nil
}

func (l *ProgressLedger) withStatus(tt TaskType, want Status) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var ids []string
	for id, st := range l.entries[tt] {
		if st == want {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (l *ProgressLedger) install(snap Snapshot) {
	l.entries = make(map[TaskType]map[string]Status)
	for tt, part := range snap.Tasks {
		m := make(map[string]Status, len(part.Completed)+len(part.Failed))
		for _, id := range part.Failed {
			m[id] = StatusFailed
		}
		// Completed wins if a hand-edited file lists a key twice
		for _, id := range part.Completed {
			m[id] = StatusCompleted
		}
		l.entries[tt] = m
	}
}

func (l *ProgressLedger) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version: snapshotVersion,
		Tasks:   make(map[TaskType]Partition, len(l.entries)),
	}
	for tt, m := range l.entries {
		part := Partition{Completed: []string{}, Failed: []string{}}
		for id, st := range m {
			if st == StatusCompleted {
				part.Completed = append(part.Completed, id)
			} else {
				part.Failed = append(part.Failed, id)
			}
		}
		sort.Strings(part.Completed)
		sort.Strings(part.Failed)
		snap.Tasks[tt] = part
	}
	return snap
}

func (l *ProgressLedger) writeLocked() error {
	if err := writeJSONAtomic(l.fs, l.path, l.snapshotLocked()); err != nil {
		return err
	}
	l.dirty = 0
	return nil
}
