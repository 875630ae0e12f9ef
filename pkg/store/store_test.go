package store_test

import (
	"context"
	"io"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/db"
	"github.com/lisanmuaddib/steam-harvest/pkg/source"
	"github.com/lisanmuaddib/steam-harvest/pkg/store"
)

var _ = Describe("GormStore", func() {
	var (
		ctx context.Context
		s   *store.GormStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := logrus.New()
		logger.SetOutput(io.Discard)

		gdb, err := db.SetupDatabase(db.Config{
			Driver: db.DriverSQLite,
			Path:   filepath.Join(GinkgoT().TempDir(), "steam.db"),
		}, logger)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(db.Close(gdb)).To(Succeed()) })

		s = store.NewGormStore(logger, gdb)
	})

	game := func(id, name string) source.ItemDetail {
		return source.ItemDetail{
			Identifier: id,
			Name:       name,
			Price:      "$4.99",
			Developers: []string{"Valve"},
			Genres:     []string{"Action", "Indie"},
		}
	}

	It("upserts games idempotently with last-write-wins", func() {
		Expect(s.UpsertCatalogItem(ctx, game("10", "Counter-Strike"))).To(Succeed())
		Expect(s.UpsertCatalogItem(ctx, game("10", "Counter-Strike"))).To(Succeed())

		updated := game("10", "Counter-Strike 1.6")
		updated.Publishers = []string{"Valve"}
		Expect(s.UpsertCatalogItem(ctx, updated)).To(Succeed())

		items, err := s.ListCatalogItems(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(1))
		Expect(items[0].Name).To(Equal("Counter-Strike 1.6"))
		Expect(items[0].Genres).To(Equal([]string{"Action", "Indie"}))
		Expect(items[0].Publishers).To(Equal([]string{"Valve"}))
	})

	It("upserts review points by game and date", func() {
		points := []source.HistoryPoint{
			{Date: "2024-01-01", RecommendationsUp: 3, RecommendationsDown: 1},
			{Date: "2024-01-02", RecommendationsUp: 4},
		}
		Expect(s.UpsertHistoryPoints(ctx, "10", points)).To(Succeed())

		points[1].RecommendationsUp = 9
		Expect(s.UpsertHistoryPoints(ctx, "10", points)).To(Succeed())

		stored, err := s.ListHistoryPoints(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(HaveLen(2))
		Expect(stored[0].Date).To(Equal("2024-01-01"))
		Expect(stored[1].RecommendationsUp).To(Equal(9))
	})

	It("accepts an empty history", func() {
		Expect(s.UpsertHistoryPoints(ctx, "10", nil)).To(Succeed())
		counts, err := s.Counts(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(counts.HistoryPoints).To(BeZero())
	})

	It("lists game identifiers in numeric order", func() {
		for _, id := range []string{"100", "9", "20"} {
			Expect(s.UpsertCatalogItem(ctx, game(id, "g"+id))).To(Succeed())
		}
		ids, err := s.AllCatalogIdentifiers(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"9", "20", "100"}))
	})

	It("counts stored records", func() {
		Expect(s.UpsertCatalogItem(ctx, game("1", "a"))).To(Succeed())
		Expect(s.UpsertCatalogItem(ctx, game("2", "b"))).To(Succeed())
		Expect(s.UpsertHistoryPoints(ctx, "1", []source.HistoryPoint{
			{Date: "2024-01-01"}, {Date: "2024-01-02"},
		})).To(Succeed())
		Expect(s.UpsertHistoryPoints(ctx, "2", []source.HistoryPoint{{Date: "2024-01-01"}})).To(Succeed())

		counts, err := s.Counts(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(counts).To(Equal(store.Counts{CatalogItems: 2, HistoryPoints: 3, HistoryItems: 2}))
	})
})
