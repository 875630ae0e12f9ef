// Package export writes harvested records out of the store: an Excel
// workbook for people and a plain identifier list for later runs.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/lisanmuaddib/steam-harvest/pkg/db/models"
)

// Sheet names
const (
	GamesSheet   = "Games"
	ReviewsSheet = "Reviews"
)

var (
	gamesHeader   = []string{"app_id", "name", "release_date", "price", "developers", "publishers", "genres", "description"}
	reviewsHeader = []string{"app_id", "name", "date", "recommendations_up", "recommendations_down"}
)

// RecordReader lists the stored records.
type RecordReader interface {
	ListCatalogItems(ctx context.Context) ([]models.CatalogItem, error)
	ListHistoryPoints(ctx context.Context) ([]models.HistoryPoint, error)
}

// WorkbookSummary counts the rows written per sheet.
type WorkbookSummary struct {
	Path    string
	Games   int
	Reviews int
}

// WriteWorkbook exports the stored games and review history to an xlsx file
// at path. Reviews carry the game name and are ordered by game then date.
func WriteWorkbook(ctx context.Context, r RecordReader, path string, logger *logrus.Logger) (WorkbookSummary, error) {
	summary := WorkbookSummary{Path: path}

	items, err := r.ListCatalogItems(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list games: %w", err)
	}
	points, err := r.ListHistoryPoints(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list reviews: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close workbook")
		}
	}()

	if err := f.SetSheetName("Sheet1", GamesSheet); err != nil {
		return summary, fmt.Errorf("failed to name games sheet: %w", err)
	}
	if _, err := f.NewSheet(ReviewsSheet); err != nil {
		return summary, fmt.Errorf("failed to create reviews sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return summary, fmt.Errorf("failed to create header style: %w", err)
	}

	names := make(map[string]string, len(items))
	gameRows := make([][]interface{}, 0, len(items))
	for _, item := range items {
		names[item.ItemID] = item.Name
		gameRows = append(gameRows, []interface{}{
			item.ItemID,
			item.Name,
			item.ReleaseDate,
			item.Price,
			strings.Join(item.Developers, ", "),
			strings.Join(item.Publishers, ", "),
			strings.Join(item.Genres, ", "),
			item.Description,
		})
	}

	sortHistory(points)
	reviewRows := make([][]interface{}, 0, len(points))
	for _, p := range points {
		reviewRows = append(reviewRows, []interface{}{
			p.ItemID,
			names[p.ItemID],
			p.Date,
			p.RecommendationsUp,
			p.RecommendationsDown,
		})
	}

	if err := writeSheet(f, GamesSheet, headerStyle, gamesHeader, gameRows); err != nil {
		return summary, err
	}
	if err := writeSheet(f, ReviewsSheet, headerStyle, reviewsHeader, reviewRows); err != nil {
		return summary, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return summary, fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return summary, fmt.Errorf("failed to save workbook %s: %w", path, err)
	}

	summary.Games = len(gameRows)
	summary.Reviews = len(reviewRows)
	logger.WithFields(logrus.Fields{
		"path":    path,
		"games":   summary.Games,
		"reviews": summary.Reviews,
	}).Info("Exported workbook")
	return summary, nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []string, rows [][]interface{}) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open %s sheet: %w", sheet, err)
	}

	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s sheet: %w", sheet, err)
	}
	return nil
}

// sortHistory orders points by identifier, shorter numeric ids first, then date.
func sortHistory(points []models.HistoryPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.ItemID != b.ItemID {
			if len(a.ItemID) != len(b.ItemID) {
				return len(a.ItemID) < len(b.ItemID)
			}
			return a.ItemID < b.ItemID
		}
		return a.Date < b.Date
	})
}
