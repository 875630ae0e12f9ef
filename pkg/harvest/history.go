package harvest

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
	"github.com/lisanmuaddib/steam-harvest/pkg/source"
	"github.com/lisanmuaddib/steam-harvest/pkg/store"
)

// HistoryJob harvests the review history of items. Candidates come from the
// stored catalog unless an explicit identifier list is given.
type HistoryJob struct {
	source      source.Source
	fetcher     *fetcher.Fetcher
	store       store.RecordStore
	logger      *logrus.Logger
	identifiers []string
}

var _ Job = (*HistoryJob)(nil)

// NewHistoryJob creates a history job reading candidates from the store.
func NewHistoryJob(src source.Source, f *fetcher.Fetcher, st store.RecordStore, logger *logrus.Logger) *HistoryJob {
	return &HistoryJob{
		source:  src,
		fetcher: f,
		store:   st,
		logger:  logger,
	}
}

// WithIdentifiers returns a copy of the job that enumerates ids instead of
// the stored catalog.
func (j *HistoryJob) WithIdentifiers(ids []string) *HistoryJob {
	clone := *j
	clone.identifiers = append([]string(nil), ids...)
	return &clone
}

// TaskType implements Job.
func (j *HistoryJob) TaskType() ledger.TaskType {
	return ledger.TaskHistoryItem
}

// Enumerate implements Job.
func (j *HistoryJob) Enumerate(ctx context.Context) (Enumeration, error) {
	if j.identifiers != nil {
		j.logger.WithField("count", len(j.identifiers)).Debug("Using explicit identifier list")
		return Enumeration{Identifiers: j.identifiers}, nil
	}

	ids, err := j.store.AllCatalogIdentifiers(ctx)
	if err != nil {
		return Enumeration{}, fmt.Errorf("failed to read stored catalog: %w", err)
	}
	j.logger.WithField("count", len(ids)).Debug("Read identifiers from stored catalog")
	return Enumeration{Identifiers: ids}, nil
}

// Harvest fetches one item's review history and upserts it.
func (j *HistoryJob) Harvest(ctx context.Context, id string) error {
	points, err := fetcher.Fetch(ctx, j.fetcher, "history/"+id, func(ctx context.Context) ([]source.HistoryPoint, error) {
		return j.source.FetchItemHistory(ctx, id)
	})
	if err != nil {
		return err
	}

	if err := j.store.UpsertHistoryPoints(context.WithoutCancel(ctx), id, points); err != nil {
		return &StorageError{ID: id, Err: err}
	}
	return nil
}
