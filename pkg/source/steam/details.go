package steam

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/steam-harvest/pkg/fetcher"
	"github.com/lisanmuaddib/steam-harvest/pkg/source"
)

// FetchItemDetail fetches the appdetails record of a game. Steam reports
// unknown or region-locked apps with success=false, which maps to NotFound.
func (c *Client) FetchItemDetail(ctx context.Context, id string) (source.ItemDetail, error) {
	query := url.Values{}
	query.Set("appids", id)
	query.Set("l", c.config.Language)
	query.Set("cc", c.config.Currency)

	var envelope appDetailsEnvelope
	if err := c.getJSON(ctx, "/api/appdetails", query, &envelope); err != nil {
		return source.ItemDetail{}, err
	}

	entry, ok := envelope[id]
	if !ok || !entry.Success {
		return source.ItemDetail{}, fetcher.NewNotFoundError(fmt.Sprintf("app %s not available", id))
	}

	data := entry.Data
	detail := source.ItemDetail{
		Identifier:  id,
		Name:        data.Name,
		ReleaseDate: data.ReleaseDate.Date,
		Price:       "Free",
		Developers:  data.Developers,
		Publishers:  data.Publishers,
		Description: data.ShortDescription,
	}
	if data.PriceOverview != nil && data.PriceOverview.FinalFormatted != "" {
		detail.Price = data.PriceOverview.FinalFormatted
	}
	for _, g := range data.Genres {
		detail.Genres = append(detail.Genres, g.Description)
	}

	c.logger.WithFields(logrus.Fields{
		"identifier": id,
		"name":       detail.Name,
	}).Debug("Fetched app details")

	return detail, nil
}

// FetchItemHistory fetches the daily review rollups of a game.
func (c *Client) FetchItemHistory(ctx context.Context, id string) ([]source.HistoryPoint, error) {
	query := url.Values{}
	query.Set("l", c.config.ReviewLanguage)
	query.Set("review_score_preference", "0")

	var resp histogramResponse
	if err := c.getJSON(ctx, "/appreviewhistogram/"+url.PathEscape(id), query, &resp); err != nil {
		return nil, err
	}

	if resp.Success != 1 && len(resp.Results.Rollups) == 0 {
		return nil, fetcher.NewNotFoundError(fmt.Sprintf("no review histogram for app %s", id))
	}

	points := make([]source.HistoryPoint, 0, len(resp.Results.Rollups))
	for _, r := range resp.Results.Rollups {
		points = append(points, source.HistoryPoint{
			Identifier:          id,
			Date:                c.localDate(r.Date),
			RecommendationsUp:   r.RecommendationsUp,
			RecommendationsDown: r.RecommendationsDown,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"identifier": id,
		"points":     len(points),
	}).Debug("Fetched review histogram")

	return points, nil
}

// localDate converts a unix timestamp to a calendar date at the configured offset.
func (c *Client) localDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Add(c.config.UTCOffset).Format(time.DateOnly)
}
