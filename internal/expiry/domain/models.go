package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ProductExpiryPattern is a streaming aggregate of observed shelf lives for one
// product in one household. It is updated in O(1) per sample and never
// recomputed from history.
type ProductExpiryPattern struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	HouseholdID          snowflake.ID `json:"household_id" gorm:"column:household_id;not null;uniqueIndex:ux_product_expiry_patterns_key,priority:1"`
	PatternKey           string       `json:"pattern_key" gorm:"type:text;not null;uniqueIndex:ux_product_expiry_patterns_key,priority:2"`
	Barcode              string       `json:"barcode,omitempty" gorm:"type:text"`
	ProductName          string       `json:"product_name,omitempty" gorm:"type:text"`
	AverageShelfLifeDays float64      `json:"average_shelf_life_days" gorm:"not null"`
	SampleCount          int          `json:"sample_count" gorm:"not null"`
	LastShelfLifeDays    int          `json:"last_shelf_life_days" gorm:"not null"`
	LastRecordedAt       time.Time    `json:"last_recorded_at" gorm:"not null"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time    `json:"updated_at" gorm:"not null"`
}

func (ProductExpiryPattern) TableName() string { return "product_expiry_patterns" }

// Observe folds one sample into the running mean.
func (p *ProductExpiryPattern) Observe(shelfLifeDays int, at time.Time) {
	n := float64(p.SampleCount)
	p.AverageShelfLifeDays = (p.AverageShelfLifeDays*n + float64(shelfLifeDays)) / (n + 1)
	p.SampleCount++
	p.LastShelfLifeDays = shelfLifeDays
	p.LastRecordedAt = at
	p.UpdatedAt = at
}
