package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/smallbiznis/homekeep/internal/config"
	"github.com/smallbiznis/homekeep/internal/migration"
	"github.com/smallbiznis/homekeep/internal/observability"
	"github.com/smallbiznis/homekeep/pkg/db"
	"go.uber.org/fx"
)

// Applies migrations and seeds reference data, then exits.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := app.Stop(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
