package export_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/lisanmuaddib/steam-harvest/pkg/db/models"
	"github.com/lisanmuaddib/steam-harvest/pkg/export"
)

type fakeRecords struct {
	items  []models.CatalogItem
	points []models.HistoryPoint
	err    error
}

func (f fakeRecords) ListCatalogItems(ctx context.Context) ([]models.CatalogItem, error) {
	return f.items, f.err
}

func (f fakeRecords) ListHistoryPoints(ctx context.Context) ([]models.HistoryPoint, error) {
	return f.points, nil
}

var _ = Describe("WriteWorkbook", func() {
	var logger *logrus.Logger

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	})

	It("writes a games sheet and a sorted reviews sheet", func() {
		records := fakeRecords{
			items: []models.CatalogItem{
				{ItemID: "10", Name: "Counter-Strike", Price: "$9.99", Developers: []string{"Valve"}, Genres: []string{"Action", "FPS"}},
				{ItemID: "570", Name: "Dota 2", Price: "Free"},
			},
			points: []models.HistoryPoint{
				{ItemID: "570", Date: "2024-01-01", RecommendationsUp: 5},
				{ItemID: "10", Date: "2024-01-02", RecommendationsDown: 2},
				{ItemID: "10", Date: "2024-01-01", RecommendationsUp: 3},
			},
		}
		path := filepath.Join(GinkgoT().TempDir(), "out", "steam_data.xlsx")

		summary, err := export.WriteWorkbook(context.Background(), records, path, logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Games).To(Equal(2))
		Expect(summary.Reviews).To(Equal(3))

		f, err := excelize.OpenFile(path)
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(f.GetSheetList()).To(Equal([]string{export.GamesSheet, export.ReviewsSheet}))

		games, err := f.GetRows(export.GamesSheet)
		Expect(err).NotTo(HaveOccurred())
		Expect(games).To(HaveLen(3))
		Expect(games[0][0]).To(Equal("app_id"))
		Expect(games[1][:7]).To(Equal([]string{"10", "Counter-Strike", "", "$9.99", "Valve", "", "Action, FPS"}))

		reviews, err := f.GetRows(export.ReviewsSheet)
		Expect(err).NotTo(HaveOccurred())
		Expect(reviews[1:]).To(Equal([][]string{
			{"10", "Counter-Strike", "2024-01-01", "3", "0"},
			{"10", "Counter-Strike", "2024-01-02", "0", "2"},
			{"570", "Dota 2", "2024-01-01", "5", "0"},
		}))
	})

	It("returns store errors without writing a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "steam_data.xlsx")
		_, err := export.WriteWorkbook(context.Background(), fakeRecords{err: errors.New("locked")}, path, logger)
		Expect(err).To(MatchError(ContainSubstring("locked")))
		Expect(path).NotTo(BeAnExistingFile())
	})
})
