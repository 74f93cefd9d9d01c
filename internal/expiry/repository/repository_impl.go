package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	expirydomain "github.com/smallbiznis/homekeep/internal/expiry/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() expirydomain.Repository {
	return &repo{}
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, householdID snowflake.ID, key string) (*expirydomain.ProductExpiryPattern, error) {
	var items []expirydomain.ProductExpiryPattern
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("household_id = ? AND pattern_key = ?", householdID, key).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pattern *expirydomain.ProductExpiryPattern) error {
	return db.WithContext(ctx).Create(pattern).Error
}

func (r *repo) UpdateAggregate(ctx context.Context, db *gorm.DB, pattern *expirydomain.ProductExpiryPattern) error {
	return db.WithContext(ctx).Exec(
		`UPDATE product_expiry_patterns
		 SET average_shelf_life_days = ?, sample_count = ?, last_shelf_life_days = ?, last_recorded_at = ?,
		 product_name = ?, updated_at = ?
		 WHERE id = ?`,
		pattern.AverageShelfLifeDays,
		pattern.SampleCount,
		pattern.LastShelfLifeDays,
		pattern.LastRecordedAt,
		pattern.ProductName,
		pattern.UpdatedAt,
		pattern.ID,
	).Error
}

func (r *repo) FindEligibleByKey(ctx context.Context, db *gorm.DB, householdID snowflake.ID, key string, minSamples int) (*expirydomain.ProductExpiryPattern, error) {
	var items []expirydomain.ProductExpiryPattern
	err := db.WithContext(ctx).
		Where("household_id = ? AND pattern_key = ? AND sample_count >= ?", householdID, key, minSamples).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) FindEligibleByName(ctx context.Context, db *gorm.DB, householdID snowflake.ID, name string, minSamples int) (*expirydomain.ProductExpiryPattern, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(name))) + "%"
	var items []expirydomain.ProductExpiryPattern
	err := db.WithContext(ctx).
		Where(`household_id = ? AND sample_count >= ? AND LOWER(product_name) LIKE ? ESCAPE '!'`, householdID, minSamples, pattern).
		Order("sample_count DESC").
		Order("last_recorded_at DESC").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`).Replace(s)
}
