package fetcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
)

var _ = Describe("Error classification", func() {
	DescribeTable("maps HTTP statuses",
		func(status int, kind fetcher.Kind, transient bool) {
			fe := fetcher.FromStatus(status, http.Header{})
			Expect(fe.Kind).To(Equal(kind))
			Expect(fe.StatusCode).To(Equal(status))
			Expect(fe.Kind.Transient()).To(Equal(transient))
		},
		Entry("too many requests", http.StatusTooManyRequests, fetcher.KindRateLimited, true),
		Entry("forbidden throttle", http.StatusForbidden, fetcher.KindRateLimited, true),
		Entry("not found", http.StatusNotFound, fetcher.KindNotFound, false),
		Entry("gone", http.StatusGone, fetcher.KindNotFound, false),
		Entry("gateway timeout", http.StatusGatewayTimeout, fetcher.KindTimeout, true),
		Entry("internal error", http.StatusInternalServerError, fetcher.KindServerError, true),
		Entry("bad gateway", http.StatusBadGateway, fetcher.KindServerError, true),
		Entry("unexpected redirect", http.StatusFound, fetcher.KindMalformed, false),
	)

	It("reads Retry-After seconds", func() {
		header := http.Header{}
		header.Set("Retry-After", "7")
		fe := fetcher.FromStatus(http.StatusTooManyRequests, header)
		Expect(fe.RetryAfter).To(Equal(7 * time.Second))
	})

	It("classifies transport and decoding errors", func() {
		Expect(fetcher.Classify(nil)).To(BeNil())
		Expect(fetcher.Classify(fmt.Errorf("get: %w", context.DeadlineExceeded)).Kind).To(Equal(fetcher.KindTimeout))
		Expect(fetcher.Classify(errors.New("connection refused")).Kind).To(Equal(fetcher.KindServerError))

		var v struct{ A int }
		decodeErr := json.Unmarshal([]byte("{"), &v)
		Expect(fetcher.Classify(decodeErr).Kind).To(Equal(fetcher.KindMalformed))
	})

	It("passes wrapped FetchErrors through", func() {
		original := fetcher.NewNotFoundError("gone")
		wrapped := fmt.Errorf("detail: %w", original)
		Expect(fetcher.Classify(wrapped)).To(BeIdenticalTo(original))
		Expect(fetcher.IsKind(wrapped, fetcher.KindNotFound)).To(BeTrue())
		Expect(wrapped.Error()).To(ContainSubstring("NotFound (status 404): gone"))
	})
})
