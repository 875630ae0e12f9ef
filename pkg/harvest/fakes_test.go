package harvest_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/db/models"
	"github.com/lisanmuaddib/steam-harvest/pkg/source"
	"github.com/lisanmuaddib/steam-harvest/pkg/store"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func identifiers(from, to int) []string {
	ids := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		ids = append(ids, fmt.Sprint(i))
	}
	return ids
}

// fakeSource serves a scripted catalog. Per-identifier errors are consumed in
// order, one per call; once exhausted the call succeeds.
type fakeSource struct {
	mu        sync.Mutex
	pages     map[int][]string
	total     int
	hideTotal bool
	pageErrs  map[int]error
	errs      map[string][]error
	calls     map[string]int
	pageCalls map[int]int
	delay     time.Duration
	onFetch   func(id string)
	onPage    func(page int)

	inflight atomic.Int32
	peak     atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:     map[int][]string{},
		pageErrs:  map[int]error{},
		errs:      map[string][]error{},
		calls:     map[string]int{},
		pageCalls: map[int]int{},
	}
}

func (s *fakeSource) withPage(page int, ids ...string) *fakeSource {
	s.pages[page] = ids
	if page > s.total {
		s.total = page
	}
	return s
}

func (s *fakeSource) failWith(id string, errs ...error) *fakeSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[id] = append(s.errs[id], errs...)
	return s
}

func (s *fakeSource) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = map[string][]error{}
}

func (s *fakeSource) PageCalls(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCalls[page]
}

func (s *fakeSource) TotalPageCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.pageCalls {
		total += n
	}
	return total
}

func (s *fakeSource) Calls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *fakeSource) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *fakeSource) ListCatalogPage(ctx context.Context, page int) (source.CatalogPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls[page]++
	if s.onPage != nil {
		s.onPage(page)
	}

	if err, ok := s.pageErrs[page]; ok {
		return source.CatalogPage{}, err
	}
	ids, ok := s.pages[page]
	if !ok {
		return source.CatalogPage{}, source.ErrEndOfPages
	}
	result := source.CatalogPage{Page: page}
	if !s.hideTotal {
		result.TotalPages = s.total
	}
	for _, id := range ids {
		result.Items = append(result.Items, source.RawItem{Identifier: id, Name: "game " + id})
	}
	return result, nil
}

func (s *fakeSource) next(id string) error {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if s.onFetch != nil {
		s.onFetch(id)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id]++
	if queue := s.errs[id]; len(queue) > 0 {
		s.errs[id] = queue[1:]
		return queue[0]
	}
	return nil
}

func (s *fakeSource) FetchItemDetail(ctx context.Context, id string) (source.ItemDetail, error) {
	if err := s.next(id); err != nil {
		return source.ItemDetail{}, err
	}
	return source.ItemDetail{Identifier: id, Name: "game " + id, Price: "Free"}, nil
}

func (s *fakeSource) FetchItemHistory(ctx context.Context, id string) ([]source.HistoryPoint, error) {
	if err := s.next(id); err != nil {
		return nil, err
	}
	return []source.HistoryPoint{
		{Identifier: id, Date: "2024-01-01", RecommendationsUp: 1},
		{Identifier: id, Date: "2024-01-02", RecommendationsDown: 1},
	}, nil
}

// memoryStore is an in-memory RecordStore.
type memoryStore struct {
	mu      sync.Mutex
	items   map[string]source.ItemDetail
	history map[string][]source.HistoryPoint
	writes  map[string]int
	failOn  map[string]bool
}

var _ store.RecordStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items:   map[string]source.ItemDetail{},
		history: map[string][]source.HistoryPoint{},
		writes:  map[string]int{},
		failOn:  map[string]bool{},
	}
}

func (m *memoryStore) UpsertCatalogItem(ctx context.Context, item source.ItemDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[item.Identifier] {
		return errors.New("disk full")
	}
	m.items[item.Identifier] = item
	m.writes[item.Identifier]++
	return nil
}

func (m *memoryStore) UpsertHistoryPoints(ctx context.Context, id string, points []source.HistoryPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[id] {
		return errors.New("disk full")
	}
	m.history[id] = points
	m.writes[id]++
	return nil
}

func (m *memoryStore) AllCatalogIdentifiers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memoryStore) ListCatalogItems(ctx context.Context) ([]models.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CatalogItem
	for _, item := range m.items {
		out = append(out, models.CatalogItem{ItemID: item.Identifier, Name: item.Name})
	}
	return out, nil
}

func (m *memoryStore) ListHistoryPoints(ctx context.Context) ([]models.HistoryPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HistoryPoint
	for id, points := range m.history {
		for _, p := range points {
			out = append(out, models.HistoryPoint{ItemID: id, Date: p.Date})
		}
	}
	return out, nil
}

func (m *memoryStore) Counts(ctx context.Context) (store.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := store.Counts{CatalogItems: int64(len(m.items)), HistoryItems: int64(len(m.history))}
	for _, points := range m.history {
		c.HistoryPoints += int64(len(points))
	}
	return c, nil
}

func (m *memoryStore) Stored(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok
}

func sourceItem(id string) source.ItemDetail {
	return source.ItemDetail{Identifier: id, Name: "game " + id}
}
