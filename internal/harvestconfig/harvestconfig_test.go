package harvestconfig_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lisanmuaddib/steam-harvest/internal/harvestconfig"
	"github.com/lisanmuaddib/steam-harvest/pkg/config"
	"github.com/lisanmuaddib/steam-harvest/pkg/harvest"
	"github.com/lisanmuaddib/steam-harvest/pkg/ledger"
)

const searchPage = `<html><body>
<a class="search_result_row" data-ds-appid="10"><span class="title">Counter-Strike</span></a>
<a class="search_result_row" data-ds-appid="20"><span class="title">Team Fortress Classic</span></a>
<a class="search_result_row" data-ds-appid="30"><span class="title">Day of Defeat</span></a>
<div class="search_pagination_left">showing 1 - 3 of 3</div>
</body></html>`

// fakeStore serves three games; app 30 fails with a server error until healed.
type fakeStore struct {
	mu       sync.Mutex
	broken   bool
	searches int
}

func (s *fakeStore) searchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches
}

func (s *fakeStore) isBroken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

func (s *fakeStore) heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = false
}

func (s *fakeStore) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.searches++
		s.mu.Unlock()
		if r.URL.Query().Get("page") != "1" {
			fmt.Fprint(w, `<html><body></body></html>`)
			return
		}
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/api/appdetails", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("appids")
		if id == "30" && s.isBroken() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{%q: {"success": true, "data": {"name": "game %s", "genres": [{"description": "Action"}]}}}`, id, id)
	})
	mux.HandleFunc("/appreviewhistogram/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success": 1, "results": {"rollups": [{"date": 1700006400, "recommendations_up": 2, "recommendations_down": 1}]}}`)
	})
	return mux
}

var _ = Describe("Build", func() {
	var (
		server *httptest.Server
		steam  *fakeStore
		cfg    config.Config
		logger *logrus.Logger
		fs     afero.Fs
		ctx    context.Context
	)

	BeforeEach(func() {
		steam = &fakeStore{broken: true}
		server = httptest.NewServer(steam.handler())
		DeferCleanup(server.Close)

		dir := GinkgoT().TempDir()
		cfg = config.Default()
		cfg.Scraper.BaseURL = server.URL
		cfg.Scraper.MaxWorkers = 2
		cfg.HTTP.MinDelay = 0
		cfg.HTTP.MaxDelay = 0
		cfg.HTTP.RetryBackoff = config.Seconds(10 * time.Millisecond)
		cfg.HTTP.MaxRetries = 1
		cfg.Output.DataDir = dir
		cfg.Database.Path = filepath.Join(dir, "steam_data.db")
		Expect(cfg.Validate()).To(Succeed())

		logger = logrus.New()
		logger.SetOutput(io.Discard)
		fs = afero.NewMemMapFs()
		ctx = context.Background()
	})

	It("harvests the catalog and history and retries failures", func() {
		c, err := harvestconfig.Build(cfg, logger, harvestconfig.WithFS(fs))
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()

		summary, err := c.Orchestrator.Run(ctx, c.Catalog, harvest.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Candidates).To(Equal(3))
		Expect(summary.Succeeded).To(Equal(2))
		Expect(summary.Failed).To(Equal(1))

		entry, ok := c.Book.Failures.Get("30", ledger.TaskCatalogItem)
		Expect(ok).To(BeTrue())
		Expect(entry.ReasonCode).To(Equal(ledger.ReasonServerError))

		steam.heal()
		retried, err := c.Retrier.Retry(ctx, ledger.TaskCatalogItem)
		Expect(err).NotTo(HaveOccurred())
		Expect(retried).To(HaveLen(1))
		Expect(retried[0].Succeeded).To(Equal(1))
		Expect(c.Book.Failures.Len()).To(BeZero())

		ids, err := c.Store.AllCatalogIdentifiers(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"10", "20", "30"}))

		history, err := c.Orchestrator.Run(ctx, c.History, harvest.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(history.Succeeded).To(Equal(3))

		counts, err := c.Store.Counts(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(counts.CatalogItems).To(BeEquivalentTo(3))
		Expect(counts.HistoryPoints).To(BeEquivalentTo(3))

		Expect(c.Book.Counts()).To(Equal(map[ledger.TaskType]ledger.Counts{
			ledger.TaskCatalogItem: {Completed: 3},
			ledger.TaskHistoryItem: {Completed: 3},
		}))

		Expect(c.Close()).To(Succeed())
		exists, err := afero.Exists(fs, cfg.CheckpointPath())
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("resumes from the ledgers of an earlier process", func() {
		first, err := harvestconfig.Build(cfg, logger, harvestconfig.WithFS(fs))
		Expect(err).NotTo(HaveOccurred())
		_, err = first.Orchestrator.Run(ctx, first.Catalog, harvest.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Close()).To(Succeed())

		steam.heal()
		searches := steam.searchCount()
		second, err := harvestconfig.Build(cfg, logger, harvestconfig.WithFS(fs))
		Expect(err).NotTo(HaveOccurred())
		defer second.Close()

		summary, err := second.Orchestrator.Run(ctx, second.Catalog, harvest.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Skipped).To(Equal(2))
		Expect(summary.Attempted).To(Equal(1))
		Expect(summary.Succeeded).To(Equal(1))
		Expect(steam.searchCount()).To(Equal(searches))
	})

	It("rejects an invalid fetcher configuration", func() {
		cfg.Scraper.MaxWorkers = 0
		_, err := harvestconfig.Build(cfg, logger, harvestconfig.WithFS(fs))
		Expect(err).To(MatchError(ContainSubstring("failed to create fetcher")))
	})
})
