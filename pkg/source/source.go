// Package source defines the remote catalog contract the harvest jobs read
// from. Implementations make exactly one request per call; pacing and
// retries belong to the fetcher.
package source

import (
	"context"
	"errors"
)

// ErrEndOfPages is returned by ListCatalogPage past the last page.
var ErrEndOfPages = errors.New("source: no more catalog pages")

// RawItem is one row of a catalog listing.
type RawItem struct {
	Identifier string
	Name       string
}

// CatalogPage is one page of the catalog listing.
type CatalogPage struct {
	Page  int
	Items []RawItem
	// TotalPages is the page count the listing advertises, 0 when unknown
	TotalPages int
}

// ItemDetail holds the structured fields of a catalog item.
type ItemDetail struct {
	Identifier  string
	Name        string
	ReleaseDate string
	Price       string
	Developers  []string
	Publishers  []string
	Genres      []string
	Description string
}

// HistoryPoint is one dated entry of an item's time series.
type HistoryPoint struct {
	Identifier          string
	Date                string // YYYY-MM-DD
	RecommendationsUp   int
	RecommendationsDown int
}

// Source is a remote catalog.
type Source interface {
	// ListCatalogPage returns the 1-based page of the listing
	ListCatalogPage(ctx context.Context, page int) (CatalogPage, error)
	FetchItemDetail(ctx context.Context, id string) (ItemDetail, error)
	FetchItemHistory(ctx context.Context, id string) ([]HistoryPoint, error)
}
