package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
)

// Retrier re-dispatches the identifiers held by the failure ledger through
// the same path as a fresh run.
type Retrier struct {
	orchestrator *Orchestrator
	book         *ledger.Book
	jobs         map[ledger.TaskType]Job
	logger       *logrus.Logger
}

// NewRetrier creates a Retrier able to retry the task types of jobs.
func NewRetrier(o *Orchestrator, book *ledger.Book, logger *logrus.Logger, jobs ...Job) *Retrier {
	r := &Retrier{
		orchestrator: o,
		book:         book,
		jobs:         make(map[ledger.TaskType]Job, len(jobs)),
		logger:       logger,
	}
	for _, job := range jobs {
		r.jobs[job.TaskType()] = job
	}
	return r
}

// Retry re-attempts failed identifiers of the given task types, or of every
// task type when none is given. Task types without failures yield a summary
// with nothing attempted.
func (r *Retrier) Retry(ctx context.Context, types ...ledger.TaskType) ([]*RunSummary, error) {
	if len(types) == 0 {
		types = ledger.TaskTypes
	}

	if _, err := r.book.Reconcile(); err != nil {
		r.logger.WithError(err).Warn("Ledger reconciliation incomplete")
	}

	summaries := make([]*RunSummary, 0, len(types))
	for _, tt := range types {
		entries := r.book.Failures.ListByType(tt)
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.Identifier)
		}

		r.logger.WithFields(logrus.Fields{
			"task_type": tt,
			"failures":  len(ids),
		}).Info("Retrying failed identifiers")

		if len(ids) == 0 {
			now := time.Now()
			summary := newSummary(tt, 0, now)
			summary.Retry = true
			summary.FinishedAt = now
			summaries = append(summaries, summary)
			continue
		}

		job, ok := r.jobs[tt]
		if !ok {
			return summaries, fmt.Errorf("harvest: no job registered for task type %s", tt)
		}

		summary, err := r.orchestrator.Dispatch(ctx, job, ids, RunOptions{})
		if summary != nil {
			summary.Retry = true
			summaries = append(summaries, summary)
		}
		if err != nil {
			return summaries, err
		}
		if ctx.Err() != nil {
			break
		}
	}

	return summaries, nil
}
