package steam_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/source/steam"
)

// liveAppID is Counter-Strike, listed since the store opened.
const liveAppID = "10"

var _ = Describe("Client against the live store", func() {
	var (
		client *steam.Client
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		// Skip if not running integration tests
		if os.Getenv("INTEGRATION_TESTS") != "true" {
			Skip("Skipping integration test")
		}

		logger := logrus.New()
		logger.SetLevel(logrus.DebugLevel)

		var err error
		client, err = steam.NewClient(steam.DefaultConfig(logger))
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel = context.WithTimeout(context.Background(), time.Minute)
		DeferCleanup(cancel)
	})

	It("lists the first search page", func() {
		page, err := client.ListCatalogPage(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Items).NotTo(BeEmpty())
		Expect(page.TotalPages).To(BeNumerically(">", 1))
	})

	It("fetches details and review history", func() {
		detail, err := client.FetchItemDetail(ctx, liveAppID)
		Expect(err).NotTo(HaveOccurred())
		Expect(detail.Name).To(ContainSubstring("Counter-Strike"))

		points, err := client.FetchItemHistory(ctx, liveAppID)
		Expect(err).NotTo(HaveOccurred())
		Expect(points).NotTo(BeEmpty())
		Expect(points[0].Date).To(MatchRegexp(`^\d{4}-\d{2}-\d{2}$`))
	})
})
