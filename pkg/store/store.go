// Package store persists harvested records. Every write is an upsert keyed on
// the record's natural key, so replaying a unit of work is harmless.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lisanmuaddib/steam-harvest/pkg/db/models"
	"github.com/lisanmuaddib/steam-harvest/pkg/source"
)

// historyBatchSize bounds the rows of a single insert statement
const historyBatchSize = 500

// Counts reports the number of stored records per table
type Counts struct {
	CatalogItems  int64
	HistoryPoints int64
	HistoryItems  int64
}

// RecordStore is the persistence boundary of the harvest jobs
type RecordStore interface {
	UpsertCatalogItem(ctx context.Context, item source.ItemDetail) error
	UpsertHistoryPoints(ctx context.Context, id string, points []source.HistoryPoint) error
	AllCatalogIdentifiers(ctx context.Context) ([]string, error)
	ListCatalogItems(ctx context.Context) ([]models.CatalogItem, error)
	ListHistoryPoints(ctx context.Context) ([]models.HistoryPoint, error)
	Counts(ctx context.Context) (Counts, error)
}

// GormStore implements RecordStore on gorm
type GormStore struct {
	logger *logrus.Logger
	db     *gorm.DB
	now    func() time.Time
}

var _ RecordStore = (*GormStore)(nil)

// NewGormStore wraps an initialized database
func NewGormStore(logger *logrus.Logger, db *gorm.DB) *GormStore {
	return &GormStore{
		logger: logger,
		db:     db,
		now:    time.Now,
	}
}

// UpsertCatalogItem inserts or fully replaces a game row
func (s *GormStore) UpsertCatalogItem(ctx context.Context, item source.ItemDetail) error {
	now := s.now().UTC()
	row := models.CatalogItem{
		ItemID:      item.Identifier,
		Name:        item.Name,
		ReleaseDate: item.ReleaseDate,
		Price:       item.Price,
		Developers:  nonNil(item.Developers),
		Publishers:  nonNil(item.Publishers),
		Genres:      nonNil(item.Genres),
		Description: item.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "release_date", "price", "developers",
				"publishers", "genres", "description", "updated_at",
			}),
		}).
		Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to save game %s: %w", item.Identifier, result.Error)
	}

	s.logger.WithFields(logrus.Fields{
		"identifier": item.Identifier,
		"name":       item.Name,
	}).Debug("Saved game to database")

	return nil
}

// UpsertHistoryPoints stores the review history of one game in a single
// transaction. An empty history is a successful no-op.
func (s *GormStore) UpsertHistoryPoints(ctx context.Context, id string, points []source.HistoryPoint) error {
	if len(points) == 0 {
		return nil
	}

	now := s.now().UTC()
	rows := make([]models.HistoryPoint, 0, len(points))
	seen := make(map[string]int, len(points))
	for _, p := range points {
		row := models.HistoryPoint{
			ItemID:              id,
			Date:                p.Date,
			RecommendationsUp:   p.RecommendationsUp,
			RecommendationsDown: p.RecommendationsDown,
			UpdatedAt:           now,
		}
		// one statement cannot update the same key twice; last value wins
		if i, ok := seen[p.Date]; ok {
			rows[i] = row
			continue
		}
		seen[p.Date] = len(rows)
		rows = append(rows, row)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "item_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"recommendations_up", "recommendations_down", "updated_at",
			}),
		}).CreateInBatches(&rows, historyBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save reviews of %s: %w", id, err)
	}

	s.logger.WithFields(logrus.Fields{
		"identifier": id,
		"points":     len(rows),
	}).Debug("Saved reviews to database")

	return nil
}

// AllCatalogIdentifiers lists stored game ids in numeric-like order
func (s *GormStore) AllCatalogIdentifiers(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.CatalogItem{}).
		Order("LENGTH(item_id), item_id").
		Pluck("item_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list game ids: %w", err)
	}
	return ids, nil
}

// ListCatalogItems returns every stored game
func (s *GormStore) ListCatalogItems(ctx context.Context) ([]models.CatalogItem, error) {
	var items []models.CatalogItem
	err := s.db.WithContext(ctx).
		Order("LENGTH(item_id), item_id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return items, nil
}

// ListHistoryPoints returns every stored review point ordered by game and date
func (s *GormStore) ListHistoryPoints(ctx context.Context) ([]models.HistoryPoint, error) {
	var points []models.HistoryPoint
	err := s.db.WithContext(ctx).
		Order("LENGTH(item_id), item_id, date").
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return points, nil
}

// Counts reports the stored record counts
func (s *GormStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	tx := s.db.WithContext(ctx)

	if err := tx.Model(&models.CatalogItem{}).Count(&c.CatalogItems).Error; err != nil {
		return c, fmt.Errorf("failed to count games: %w", err)
	}
	if err := tx.Model(&models.HistoryPoint{}).Count(&c.HistoryPoints).Error; err != nil {
		return c, fmt.Errorf("failed to count reviews: %w", err)
	}
	if err := tx.Model(&models.HistoryPoint{}).Distinct("item_id").Count(&c.HistoryItems).Error; err != nil {
		return c, fmt.Errorf("failed to count reviewed games: %w", err)
	}
	return c, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
