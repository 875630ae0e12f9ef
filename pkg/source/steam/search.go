package steam

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
	"github.com/lisanmuaddib/steam-harvest/pkg/source"
)

// ListCatalogPage fetches one page of the store search listing.
func (c *Client) ListCatalogPage(ctx context.Context, page int) (source.CatalogPage, error) {
	if page < 1 {
		return source.CatalogPage{}, fmt.Errorf("steam: invalid page %d", page)
	}

	query := url.Values{}
	query.Set("l", c.config.Language)
	query.Set("cc", c.config.Currency)
	query.Set("category1", c.config.Category)
	query.Set("sort_by", "_ASC")
	query.Set("page", strconv.Itoa(page))

	body, err := c.get(ctx, "/search/", query)
	if err != nil {
		return source.CatalogPage{}, err
	}

	result, err := parseSearchPage(body, page)
	if err != nil {
		return source.CatalogPage{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"page":        page,
		"items":       len(result.Items),
		"total_pages": result.TotalPages,
	}).Debug("Parsed search page")

	if len(result.Items) == 0 && page > 1 {
		return source.CatalogPage{}, source.ErrEndOfPages
	}
	if result.TotalPages > 0 && page > result.TotalPages {
		return source.CatalogPage{}, source.ErrEndOfPages
	}
	return result, nil
}

func parseSearchPage(body []byte, page int) (source.CatalogPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return source.CatalogPage{}, fetcher.NewMalformedError(err, "invalid search page HTML")
	}

	result := source.CatalogPage{Page: page}

	doc.Find("a.search_result_row").Each(func(_ int, row *goquery.Selection) {
		id, ok := row.Attr("data-ds-appid")
		id = strings.TrimSpace(id)
		// bundles and packages carry a comma separated list or no app id
		if !ok || id == "" || !isNumeric(id) {
			return
		}
		result.Items = append(result.Items, source.RawItem{
			Identifier: id,
			Name:       strings.TrimSpace(row.Find("span.title").First().Text()),
		})
	})

	if total, ok := parseTotalResults(doc.Find("div.search_pagination_left").First().Text()); ok {
		result.TotalPages = total/PageSize + 1
	}

	return result, nil
}

// parseTotalResults reads "showing 1 - 25 of 12345" and returns 12345.
func parseTotalResults(text string) (int, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, false
	}
	// the count is the last number in the text
	for i := len(fields) - 1; i >= 0; i-- {
		n, err := strconv.Atoi(strings.ReplaceAll(fields[i], ",", ""))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
