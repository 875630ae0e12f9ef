package models

import (
	"time"
)

// CatalogItem represents the database model for a harvested game
type CatalogItem struct {
	ItemID      string   `gorm:"primaryKey;column:item_id"`
	Name        string   `gorm:"column:name;not null;default:''"`
	ReleaseDate string   `gorm:"column:release_date;not null;default:''"`
	Price       string   `gorm:"column:price;not null;default:''"`
	Developers  []string `gorm:"column:developers;type:text;serializer:json"`
	Publishers  []string `gorm:"column:publishers;type:text;serializer:json"`
	Genres      []string `gorm:"column:genres;type:text;serializer:json"`
	Description string   `gorm:"column:description;not null;default:''"`

	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName specifies the table name for the CatalogItem model
func (CatalogItem) TableName() string {
	return "games"
}

// HistoryPoint represents one day of review counts for a game
type HistoryPoint struct {
	ItemID              string `gorm:"primaryKey;column:item_id"`
	Date                string `gorm:"primaryKey;column:date;index:idx_reviews_date"`
	RecommendationsUp   int    `gorm:"column:recommendations_up;not null;default:0"`
	RecommendationsDown int    `gorm:"column:recommendations_down;not null;default:0"`

	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName specifies the table name for the HistoryPoint model
func (HistoryPoint) TableName() string {
	return "reviews"
}

// All lists every model managed by the store
func All() []interface{} {
	return []interface{}{&CatalogItem{}, &HistoryPoint{}}
}
