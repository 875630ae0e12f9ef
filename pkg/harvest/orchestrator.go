package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
	"github.com/lisanmuaddib/steam-harvest/pkg/metrics"
)

// Default orchestrator settings
const (
	DefaultWorkers        = fetcher.DefaultMaxConcurrency
	DefaultStatusInterval = 30 * time.Second
)

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the size of the worker pool. The fetcher's slot count is
// still the effective cap on concurrent requests.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithStatusInterval sets how often progress is logged during dispatch.
func WithStatusInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.statusInterval = d
		}
	}
}

// WithMetrics reports identifier outcomes to m.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator runs jobs against the ledger book. Runs are serialized; one
// Orchestrator is meant to be shared by all jobs of a process.
type Orchestrator struct {
	book           *ledger.Book
	logger         *logrus.Logger
	metrics        *metrics.Collector
	workers        int
	statusInterval time.Duration

	runMu   sync.Mutex
	state   atomic.Int32
	mu      sync.RWMutex
	current *RunSummary
}

// NewOrchestrator creates an Orchestrator over a loaded ledger book.
func NewOrchestrator(book *ledger.Book, logger *logrus.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	o := &Orchestrator{
		book:           book,
		logger:         logger,
		workers:        DefaultWorkers,
		statusInterval: DefaultStatusInterval,
	}
	for _, opt := range opts {
		opt(o)
	}

	logger.WithFields(logrus.Fields{
		"workers":         o.workers,
		"status_interval": o.statusInterval.String(),
	}).Debug("Created orchestrator")

	return o
}

// State returns the stage of the current or last run.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Status returns a copy of the live counters of the current run.
func (o *Orchestrator) Status() (RunSummary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return RunSummary{}, false
	}
	return *o.current, true
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// Run enumerates the job's candidates and dispatches them. The only error
// that aborts a run is a failure to enumerate, reported as ErrEnumeration;
// an enumeration cut short by ctx yields an interrupted summary instead.
func (o *Orchestrator) Run(ctx context.Context, job Job, opts RunOptions) (*RunSummary, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	tt := job.TaskType()
	log := o.logger.WithField("task_type", tt)

	o.setState(StateEnumerating)
	started := time.Now()
	log.Info("Enumerating candidates")

	enumeration, err := job.Enumerate(ctx)
	if err != nil {
		o.setState(StateDone)
		if errors.Is(err, fetcher.ErrAborted) || ctx.Err() != nil {
			log.WithError(err).Warn("Interrupted before enumeration finished")
			summary := newSummary(tt, 0, started)
			summary.Interrupted = true
			summary.FinishedAt = time.Now()
			return summary, nil
		}
		log.WithError(err).Error("Enumeration failed")
		return nil, fmt.Errorf("%w: %w", ErrEnumeration, err)
	}

	ids := uniqueIdentifiers(enumeration.Identifiers)
	if opts.ItemLimit > 0 && len(ids) > opts.ItemLimit {
		ids = ids[:opts.ItemLimit]
	}

	log.WithFields(logrus.Fields{
		"candidates": len(ids),
		"truncated":  enumeration.Truncated,
	}).Info("Enumeration complete")

	summary, err := o.dispatch(ctx, job, ids, opts, started)
	if summary != nil {
		summary.EnumerationTruncated = enumeration.Truncated
	}
	return summary, err
}

// Dispatch runs the job over an explicit candidate set, skipping the
// identifiers the progress ledger holds as completed.
func (o *Orchestrator) Dispatch(ctx context.Context, job Job, ids []string, opts RunOptions) (*RunSummary, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.dispatch(ctx, job, uniqueIdentifiers(ids), opts, time.Now())
}

type outcome struct {
	id  string
	err error
}

func (o *Orchestrator) dispatch(ctx context.Context, job Job, ids []string, opts RunOptions, started time.Time) (*RunSummary, error) {
	tt := job.TaskType()
	summary := newSummary(tt, len(ids), started)
	log := o.logger.WithFields(logrus.Fields{
		"task_type": tt,
		"run_id":    summary.RunID,
	})

	if repaired, err := o.book.Reconcile(); err != nil {
		log.WithError(err).Warn("Ledger reconciliation incomplete")
	} else if repaired > 0 {
		log.WithField("repaired", repaired).Info("Reconciled ledgers")
	}

	pending := filterPending(o.book.Progress, tt, ids, opts.Force)
	summary.Skipped = len(ids) - len(pending)

	o.mu.Lock()
	o.current = summary
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.current = nil
		o.mu.Unlock()
	}()

	o.setState(StateDispatching)
	log.WithFields(logrus.Fields{
		"candidates": summary.Candidates,
		"skipped":    summary.Skipped,
		"pending":    len(pending),
	}).Info("Dispatching")

	taskCh := make(chan string)
	resultCh := make(chan outcome, o.workers)
	stopReporter := make(chan struct{})
	done := make(chan struct{})

	go o.reportStatus(stopReporter)

	// single writer for ledger updates and counters
	go func() {
		defer close(done)
		for res := range resultCh {
			o.apply(log, tt, summary, res)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < o.workers && i < len(pending); i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			o.worker(ctx, workerID, job, taskCh, resultCh)
		}(i)
	}

	interrupted := false
feed:
	for _, id := range pending {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		select {
		case taskCh <- id:
		case <-ctx.Done():
			interrupted = true
			break feed
		}
	}
	close(taskCh)

	o.setState(StateDraining)
	if interrupted {
		log.Warn("Interrupted, draining in-flight work")
	}

	wg.Wait()
	close(resultCh)
	<-done
	close(stopReporter)

	o.mu.Lock()
	summary.Interrupted = summary.Interrupted || interrupted
	summary.FinishedAt = time.Now()
	o.mu.Unlock()

	flushErr := o.book.Flush()
	o.setState(StateDone)

	log.WithFields(logrus.Fields{
		"attempted":   summary.Attempted,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
		"interrupted": summary.Interrupted,
		"duration":    summary.Duration().String(),
	}).Info("Run finished")

	if flushErr != nil {
		return summary, fmt.Errorf("failed to flush ledgers: %w", flushErr)
	}
	return summary, nil
}

// worker runs identifiers from tasks and reports each outcome.
func (o *Orchestrator) worker(ctx context.Context, id int, job Job, tasks <-chan string, results chan<- outcome) {
	o.logger.WithField("worker_id", id).Trace("Worker started")

	for identifier := range tasks {
		err := job.Harvest(ctx, identifier)
		results <- outcome{id: identifier, err: err}
	}
}

// apply records one outcome. Aborted identifiers were never sent and are left
// without an entry so the next run picks them up.
func (o *Orchestrator) apply(log *logrus.Entry, tt ledger.TaskType, summary *RunSummary, res outcome) {
	entry := log.WithField("identifier", res.id)

	if errors.Is(res.err, fetcher.ErrAborted) {
		o.mu.Lock()
		summary.Interrupted = true
		o.mu.Unlock()
		entry.Debug("Not dispatched before interrupt")
		return
	}

	var ledgerErr error
	o.mu.Lock()
	summary.Attempted++
	if res.err == nil {
		summary.Succeeded++
	} else {
		summary.Failed++
	}
	o.mu.Unlock()

	if res.err == nil {
		ledgerErr = o.book.RecordSuccess(res.id, tt)
		o.metrics.ObserveItem(string(tt), "succeeded")
		entry.Debug("Identifier completed")
	} else {
		reason := reasonFor(res.err)
		var failure ledger.FailureEntry
		failure, ledgerErr = o.book.RecordFailure(res.id, tt, reason, res.err.Error())
		o.metrics.ObserveItem(string(tt), "failed")
		entry.WithFields(logrus.Fields{
			"reason":   reason,
			"attempts": failure.AttemptCount,
			"error":    res.err.Error(),
		}).Warn("Identifier failed")
	}

	if ledgerErr != nil {
		o.mu.Lock()
		summary.LedgerErrors++
		o.mu.Unlock()
		entry.WithError(ledgerErr).Error("Failed to update ledger")
	}
}

// reportStatus periodically logs the live counters until stop is closed.
func (o *Orchestrator) reportStatus(stop <-chan struct{}) {
	ticker := time.NewTicker(o.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, ok := o.Status()
			if !ok {
				continue
			}
			o.logger.WithFields(logrus.Fields{
				"task_type": status.TaskType,
				"run_id":    status.RunID,
				"pending":   status.Candidates - status.Skipped - status.Attempted,
				"succeeded": status.Succeeded,
				"failed":    status.Failed,
				"duration":  status.Duration().String(),
			}).Info("Harvest status update")
		case <-stop:
			return
		}
	}
}

// filterPending returns the identifiers that still need work, preserving
// order. It never mutates ids.
func filterPending(progress *ledger.ProgressLedger, tt ledger.TaskType, ids []string, force bool) []string {
	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if !force && progress.IsDone(id, tt) {
			continue
		}
		pending = append(pending, id)
	}
	return pending
}

// uniqueIdentifiers drops empty and repeated identifiers, keeping first
// occurrences in order.
func uniqueIdentifiers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func newSummary(tt ledger.TaskType, candidates int, started time.Time) *RunSummary {
	return &RunSummary{
		RunID:      uuid.NewString(),
		TaskType:   tt,
		Candidates: candidates,
		StartedAt:  started,
	}
}
