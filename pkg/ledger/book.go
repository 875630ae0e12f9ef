package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Book pairs the progress and failure ledgers so that both halves of an
// outcome are applied together. Workers never touch the ledgers directly.
type Book struct {
	mu       sync.Mutex
	Progress *ProgressLedger
	Failures *FailureLedger
	logger   *logrus.Logger
}

// NewBook wraps the two ledgers.
func NewBook(progress *ProgressLedger, failures *FailureLedger, logger *logrus.Logger) *Book {
	if logger == nil {
		logger = logrus.New()
	}
	return &Book{
		Progress: progress,
		Failures: failures,
		logger:   logger,
	}
}

// Load restores both ledgers from disk and reconciles them.
func (b *Book) Load() error {
	if _, err := b.Progress.LoadAll(); err != nil {
		return fmt.Errorf("failed to load progress ledger: %w", err)
	}
	if err := b.Failures.Load(); err != nil {
		return fmt.Errorf("failed to load failure ledger: %w", err)
	}
	_, err := b.Reconcile()
	return err
}

// RecordSuccess marks the key Completed and drops its failure entry.
func (b *Book) RecordSuccess(id string, tt TaskType) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.Progress.MarkDone(id, tt); err != nil {
		return fmt.Errorf("failed to mark %s/%s done: %w", tt, id, err)
	}
	if err := b.Failures.Clear(id, tt); err != nil {
		return fmt.Errorf("failed to clear failure for %s/%s: %w", tt, id, err)
	}
	return nil
}

// RecordFailure stores the failure reason and marks the key Failed.
func (b *Book) RecordFailure(id string, tt TaskType, reason ReasonCode, message string) (FailureEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, err := b.Failures.Record(id, tt, reason, message)
	if err != nil {
		return entry, fmt.Errorf("failed to record failure for %s/%s: %w", tt, id, err)
	}
	if err := b.Progress.MarkFailed(id, tt); err != nil {
		return entry, fmt.Errorf("failed to mark %s/%s failed: %w", tt, id, err)
	}
	return entry, nil
}

// Reconcile repairs the pair after a crash between the two halves of an
// update, so that a key is Failed exactly when it has a failure entry. It
// returns the number of keys it touched.
func (b *Book) Reconcile() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	repaired := 0
	var errs []error

	for _, e := range b.Failures.All() {
		st, ok := b.Progress.Status(e.Identifier, e.TaskType)
		switch {
		case ok && st == StatusCompleted:
			errs = append(errs, b.Failures.Clear(e.Identifier, e.TaskType))
		case !ok:
			errs = append(errs, b.Progress.MarkFailed(e.Identifier, e.TaskType))
		default:
			continue
		}
		repaired++
	}

	for _, tt := range TaskTypes {
		for _, id := range b.Progress.Failed(tt) {
			if _, ok := b.Failures.Get(id, tt); ok {
				continue
			}
			_, err := b.Failures.Record(id, tt, ReasonUnknown, "failure reason lost before it was recorded")
			errs = append(errs, err)
			repaired++
		}
	}

	if repaired > 0 {
		b.logger.WithField("repaired", repaired).Warn("Reconciled progress and failure ledgers")
	}
	if err := errors.Join(errs...); err != nil {
		return repaired, fmt.Errorf("failed to reconcile ledgers: %w", err)
	}
	return repaired, nil
}

// Flush persists both ledgers.
func (b *Book) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.Progress.Flush(), b.Failures.Flush())
}

// Reset clears both ledgers for the given task types, or entirely when none
// are given.
func (b *Book) Reset(types ...TaskType) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.Progress.Reset(types...), b.Failures.Reset(types...))
}

// Counts reports progress counts and unresolved failures per task type.
func (b *Book) Counts() map[TaskType]Counts {
	out := make(map[TaskType]Counts, len(TaskTypes))
	for _, tt := range TaskTypes {
		out[tt] = b.Progress.Counts(tt)
	}
	return out
}
