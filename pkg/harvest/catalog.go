package harvest

import (
	"context"
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
	"github.com/lisanmuaddib/steam-harvest/pkg/source"
	"github.com/lisanmuaddib/steam-harvest/pkg/store"
)

// CatalogJob harvests item details for every item of the catalog listing.
type CatalogJob struct {
	source    source.Source
	fetcher   *fetcher.Fetcher
	store     store.RecordStore
	logger    *logrus.Logger
	pageLimit int
	pages     *ledger.PageLog
}

var _ Job = (*CatalogJob)(nil)

// NewCatalogJob creates a catalog job. pageLimit caps the listing pages
// walked, 0 walks all of them.
func NewCatalogJob(src source.Source, f *fetcher.Fetcher, st store.RecordStore, logger *logrus.Logger, pageLimit int) *CatalogJob {
	return &CatalogJob{
		source:    src,
		fetcher:   f,
		store:     st,
		logger:    logger,
		pageLimit: pageLimit,
	}
}

// WithPageLog makes enumeration record every listed page in log and reuse
// the pages it already holds instead of requesting them again.
func (j *CatalogJob) WithPageLog(log *ledger.PageLog) *CatalogJob {
	j.pages = log
	return j
}

// TaskType implements Job.
func (j *CatalogJob) TaskType() ledger.TaskType {
	return ledger.TaskCatalogItem
}

type pageResult struct {
	page source.CatalogPage
	end  bool
}

func (j *CatalogJob) listPage(ctx context.Context, page int) (pageResult, error) {
	return fetcher.Fetch(ctx, j.fetcher, "page/"+strconv.Itoa(page), func(ctx context.Context) (pageResult, error) {
		p, err := j.source.ListCatalogPage(ctx, page)
		if errors.Is(err, source.ErrEndOfPages) {
			return pageResult{end: true}, nil
		}
		if err != nil {
			return pageResult{}, err
		}
		return pageResult{page: p}, nil
	})
}

// Enumerate walks the listing pages. A failure on the first page is returned.
// A later page that fails is skipped and the result marked truncated; when the
// page count is unknown the walk stops there instead.
func (j *CatalogJob) Enumerate(ctx context.Context) (Enumeration, error) {
	var result Enumeration
	if j.pages != nil {
		defer func() {
			if err := j.pages.Flush(); err != nil {
				j.logger.WithError(err).Warn("Failed to flush page log")
			}
		}()
	}

	reused := 0
	total := 0
	if ids, ok := j.listed(1); ok {
		result.Identifiers = append(result.Identifiers, ids...)
		total = j.pages.TotalPages()
		reused++
	} else {
		first, err := j.listPage(ctx, 1)
		if err != nil {
			return result, err
		}
		if first.end {
			return result, nil
		}
		total = first.page.TotalPages
		j.remember(1, first.page, total)
		result.Identifiers = appendItems(result.Identifiers, first.page.Items)
	}

	if j.pageLimit > 0 && (total == 0 || total > j.pageLimit) {
		total = j.pageLimit
	}

	j.logger.WithFields(logrus.Fields{
		"total_pages": total,
		"page_limit":  j.pageLimit,
	}).Info("Walking catalog pages")

	for page := 2; total == 0 || page <= total; page++ {
		if ctx.Err() != nil {
			result.Truncated = true
			break
		}

		if ids, ok := j.listed(page); ok {
			result.Identifiers = append(result.Identifiers, ids...)
			reused++
			continue
		}

		next, err := j.listPage(ctx, page)
		if err != nil {
			result.Truncated = true
			if errors.Is(err, fetcher.ErrAborted) || ctx.Err() != nil {
				break
			}
			log := j.logger.WithFields(logrus.Fields{
				"page":  page,
				"error": err.Error(),
			})
			if total == 0 {
				log.Warn("Catalog page failed, stopping enumeration")
				break
			}
			log.Warn("Catalog page failed, skipping it")
			continue
		}
		if next.end {
			break
		}
		j.remember(page, next.page, 0)
		result.Identifiers = appendItems(result.Identifiers, next.page.Items)

		j.logger.WithFields(logrus.Fields{
			"page":  page,
			"items": len(next.page.Items),
		}).Debug("Catalog page listed")
	}

	if reused > 0 {
		j.logger.WithField("reused_pages", reused).Info("Reused pages listed by an earlier run")
	}
	return result, nil
}

func (j *CatalogJob) listed(page int) ([]string, bool) {
	if j.pages == nil {
		return nil, false
	}
	return j.pages.Listed(page)
}

// remember records a listed page. A total of 0 leaves the stored page count
// untouched.
func (j *CatalogJob) remember(page int, p source.CatalogPage, total int) {
	if j.pages == nil {
		return
	}
	var err error
	if total > 0 {
		err = j.pages.SetTotalPages(total)
	}
	if err == nil {
		err = j.pages.Record(page, appendItems(nil, p.Items))
	}
	if err != nil {
		j.logger.WithFields(logrus.Fields{
			"page":  page,
			"error": err.Error(),
		}).Warn("Failed to record listed page")
	}
}

// Harvest fetches one item's details and upserts them. The write is not
// cancelled by an interrupt so fetched data is kept.
func (j *CatalogJob) Harvest(ctx context.Context, id string) error {
	detail, err := fetcher.Fetch(ctx, j.fetcher, "detail/"+id, func(ctx context.Context) (source.ItemDetail, error) {
		return j.source.FetchItemDetail(ctx, id)
	})
	if err != nil {
		return err
	}

	if err := j.store.UpsertCatalogItem(context.WithoutCancel(ctx), detail); err != nil {
		return &StorageError{ID: id, Err: err}
	}
	return nil
}

func appendItems(ids []string, items []source.RawItem) []string {
	for _, item := range items {
		ids = append(ids, item.Identifier)
	}
	return ids
}
