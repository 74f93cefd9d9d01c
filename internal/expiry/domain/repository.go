package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// FindForUpdate reads the pattern row under a row lock where the dialect
	// supports one. Returns nil when absent.
	FindForUpdate(ctx context.Context, db *gorm.DB, householdID snowflake.ID, key string) (*ProductExpiryPattern, error)
	Insert(ctx context.Context, db *gorm.DB, pattern *ProductExpiryPattern) error
	UpdateAggregate(ctx context.Context, db *gorm.DB, pattern *ProductExpiryPattern) error

	FindEligibleByKey(ctx context.Context, db *gorm.DB, householdID snowflake.ID, key string, minSamples int) (*ProductExpiryPattern, error)
	// FindEligibleByName matches name as a case-insensitive substring and
	// prefers the pattern with the most samples.
	FindEligibleByName(ctx context.Context, db *gorm.DB, householdID snowflake.ID, name string, minSamples int) (*ProductExpiryPattern, error)
}
