// Package harvest drives resumable harvest runs: it enumerates candidate
// identifiers, skips the ones the progress ledger already holds as completed,
// fetches and persists the rest on a worker pool, and records every outcome in
// the ledgers.
package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
)

// ErrEnumeration is returned by Run when the candidate set cannot be
// obtained at all. Nothing is dispatched and no ledger entry is written.
var ErrEnumeration = errors.New("harvest: enumeration failed")

// State is the lifecycle stage of an orchestrator run.
type State int32

const (
	StateIdle State = iota
	StateEnumerating
	StateDispatching
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEnumerating:
		return "enumerating"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Enumeration is the ordered candidate set produced by a job.
type Enumeration struct {
	Identifiers []string
	// Truncated is set when a listing page was skipped or the walk stopped early
	Truncated bool
}

// Job binds a task type to its enumeration and per-identifier work.
type Job interface {
	TaskType() ledger.TaskType
	// Enumerate returns every candidate identifier in a stable order
	Enumerate(ctx context.Context) (Enumeration, error)
	// Harvest fetches and persists one identifier. Fetch failures come back as
	// *fetcher.FetchError, persistence failures as *StorageError.
	Harvest(ctx context.Context, id string) error
}

// RunOptions tune a single run.
type RunOptions struct {
	// ItemLimit keeps only the first N enumerated identifiers, 0 means all
	ItemLimit int
	// Force re-attempts identifiers already marked completed
	Force bool
}

// RunSummary reports the outcome of one run for one task type.
type RunSummary struct {
	RunID      string          `json:"run_id"`
	TaskType   ledger.TaskType `json:"task_type"`
	Retry      bool            `json:"retry"`
	Candidates int             `json:"candidates"`
	Skipped    int             `json:"skipped"`
	Attempted  int             `json:"attempted"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	// LedgerErrors counts outcomes whose ledger write failed
	LedgerErrors         int       `json:"ledger_errors"`
	Interrupted          bool      `json:"interrupted"`
	EnumerationTruncated bool      `json:"enumeration_truncated"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
}

// Duration is the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// StorageError wraps a persistence failure that followed a successful fetch.
type StorageError struct {
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage error for " + e.ID + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
