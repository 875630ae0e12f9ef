package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// WithClock overrides the timestamp source of the failure ledger.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// FailureLedger keeps one FailureEntry per unresolved (identifier, task type).
// It is the only input of the retry pass.
type FailureLedger struct {
	mu      sync.RWMutex
	fs      afero.Fs
	path    string
	logger  *logrus.Logger
	opts    options
	entries map[Key]FailureEntry
	seq     uint64
	dirty   int
}

// NewFailureLedger creates an empty failure ledger backed by path.
func NewFailureLedger(fs afero.Fs, path string, logger *logrus.Logger, opts ...Option) *FailureLedger {
	if logger == nil {
		logger = logrus.New()
	}
	return &FailureLedger{
		fs:      fs,
		path:    path,
		logger:  logger,
		opts:    applyOptions(opts),
		entries: make(map[Key]FailureEntry),
	}
}

// Path returns the failure log location.
func (l *FailureLedger) Path() string {
	return l.path
}

// Load restores the entries from disk. A missing or corrupt file yields an
// empty ledger.
func (l *FailureLedger) Load() error {
	var list []FailureEntry
	found, err := readJSON(l.fs, l.path, &list)
	if err != nil {
		if !found {
			return err
		}
		l.logger.WithFields(logrus.Fields{
			"path":  l.path,
			"error": err,
		}).Warn("Failure log is corrupt, starting from an empty failure ledger")
		list = nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[Key]FailureEntry, len(list))
	l.seq = 0
	for _, e := range list {
		l.entries[e.Key()] = e
		if e.Seq > l.seq {
			l.seq = e.Seq
		}
	}
	l.dirty = 0

	l.logger.WithFields(logrus.Fields{
		"path":     l.path,
		"failures": len(l.entries),
	}).Debug("Loaded failure ledger")
	return nil
}

// Record stores the latest failure for a key. An existing entry keeps its
// position, takes the new reason and message, and its attempt count grows by one.
func (l *FailureLedger) Record(id string, tt TaskType, reason ReasonCode, message string) (FailureEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := Key{Identifier: id, TaskType: tt}
	entry, exists := l.entries[key]
	if !exists {
		l.seq++
		entry = FailureEntry{
			Identifier: id,
			TaskType:   tt,
			Seq:        l.seq,
		}
	}
	entry.ReasonCode = reason
	entry.Message = message
	entry.Timestamp = l.opts.now().UTC()
	entry.AttemptCount++
	l.entries[key] = entry

	l.logger.WithFields(logrus.Fields{
		"identifier":    id,
		"task_type":     tt,
		"reason_code":   reason,
		"attempt_count": entry.AttemptCount,
	}).Debug("Recorded failure")

	return entry, l.touchLocked()
}

// Clear removes the entry for a key. Clearing a missing entry is not an error.
func (l *FailureLedger) Clear(id string, tt TaskType) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := Key{Identifier: id, TaskType: tt}
	if _, ok := l.entries[key]; !ok {
		return nil
	}
	delete(l.entries, key)
	return l.touchLocked()
}

// Get returns the entry for a key.
func (l *FailureLedger) Get(id string, tt TaskType) (FailureEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[Key{Identifier: id, TaskType: tt}]
	return e, ok
}

// ListByType returns the entries of one task type in first-failure order.
func (l *FailureLedger) ListByType(tt TaskType) []FailureEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []FailureEntry
	for _, e := range l.entries {
		if e.TaskType == tt {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// All returns every entry in first-failure order.
func (l *FailureLedger) All() []FailureEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allLocked()
}

// Len returns the number of unresolved failures.
func (l *FailureLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Flush persists pending mutations.
func (l *FailureLedger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dirty == 0 {
		return nil
	}
	return l.writeLocked()
}

// Reset drops the entries of the given task types (all when none are given).
// Clearing everything removes the file.
func (l *FailureLedger) Reset(types ...TaskType) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(types) == 0 {
		l.entries = make(map[Key]FailureEntry)
		l.seq = 0
		l.dirty = 0
		return removeIfExists(l.fs, l.path)
	}
	drop := make(map[TaskType]bool, len(types))
	for _, tt := range types {
		drop[tt] = true
	}
	for k := range l.entries {
		if drop[k.TaskType] {
			delete(l.entries, k)
		}
	}
	return l.writeLocked()
}

func (l *FailureLedger) allLocked() []FailureEntry {
	out := make([]FailureEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func (l *FailureLedger) touchLocked() error {
	l.dirty++
	if l.dirty >= l.opts.flushEvery {
		return l.writeLocked()
	}
	return nil
}

func (l *FailureLedger) writeLocked() error {
	if err := writeJSONAtomic(l.fs, l.path, l.allLocked()); err != nil {
		return err
	}
	l.dirty = 0
	return nil
}

func sortEntries(entries []FailureEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Seq != entries[j].Seq {
			return entries[i].Seq < entries[j].Seq
		}
		return entries[i].Key().String() < entries[j].Key().String()
	})
}
