package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lisanmuaddib/steam-harvest/pkg/metrics"
)

var _ = Describe("Collector", func() {
	It("ignores calls on a nil collector", func() {
		var c *metrics.Collector
		Expect(func() {
			c.ObserveRequest("ok", time.Second)
			c.IncRetry("Timeout")
			c.SetInFlight(3)
			c.ObserveItem("catalog_item", "succeeded")
		}).NotTo(Panic())
		Expect(c.Registry()).To(BeNil())
	})

	It("counts requests, retries and items", func() {
		c := metrics.New()
		c.ObserveRequest("ok", 20*time.Millisecond)
		c.ObserveRequest("Timeout", time.Second)
		c.IncRetry("Timeout")
		c.ObserveItem("catalog_item", "succeeded")
		c.ObserveItem("catalog_item", "failed")

		count, err := testutil.GatherAndCount(c.Registry(), "harvest_fetch_requests_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))

		count, err = testutil.GatherAndCount(c.Registry(), "harvest_items_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))
	})

	It("serves the registry on /metrics", func() {
		c := metrics.New()
		c.SetInFlight(4)
		c.IncRetry("ServerError")

		server := httptest.NewServer(c.Handler())
		defer server.Close()

		resp, err := http.Get(server.URL + "/metrics")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("harvest_fetch_inflight 4"))
		Expect(string(body)).To(ContainSubstring(`harvest_fetch_retries_total{kind="ServerError"} 1`))

		resp, err = http.Get(server.URL + "/other")
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})
