package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	expirydomain "github.com/smallbiznis/homekeep/internal/expiry/domain"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	utilitydomain "github.com/smallbiznis/homekeep/internal/utility/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded Postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table owned by the household core, in dependency order.
func Models() []any {
	return []any{
		&utilitydomain.UtilityType{},
		&utilitydomain.HouseholdUtilitySetting{},
		&utilitydomain.UtilityPricingTier{},
		&utilitydomain.MeterReading{},
		&inventorydomain.InventoryItem{},
		&inventorydomain.InventoryChangeEvent{},
		&inventorydomain.ShoppingListItemHistory{},
		&inventorydomain.HouseholdTrackingSettings{},
		&expirydomain.ProductExpiryPattern{},
	}
}

// Apply brings the schema up to date. Postgres uses the versioned SQL files;
// other dialects fall back to gorm's AutoMigrate.
func Apply(conn *gorm.DB) error {
	if conn.Dialector.Name() == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
	} else if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return SeedUtilityTypes(conn)
}

// SeedUtilityTypes inserts the reference utility types. Existing rows are left untouched.
func SeedUtilityTypes(conn *gorm.DB) error {
	types := utilitydomain.DefaultUtilityTypes()
	now := time.Now().UTC()
	for i := range types {
		types[i].CreatedAt = now
	}
	if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&types).Error; err != nil {
		return fmt.Errorf("seed utility types: %w", err)
	}
	return nil
}
