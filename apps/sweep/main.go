package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/homekeep/internal/clock"
	"github.com/smallbiznis/homekeep/internal/config"
	"github.com/smallbiznis/homekeep/internal/consumption"
	"github.com/smallbiznis/homekeep/internal/expiry"
	"github.com/smallbiznis/homekeep/internal/inventory"
	"github.com/smallbiznis/homekeep/internal/lock"
	"github.com/smallbiznis/homekeep/internal/observability"
	"github.com/smallbiznis/homekeep/internal/scheduler"
	"github.com/smallbiznis/homekeep/pkg/db"
	"go.uber.org/fx"
)

// Runs the suggestion sweep once, for cron hosts that own the schedule.
func main() {
	var sched *scheduler.Scheduler
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		expiry.Module,
		inventory.Module,
		consumption.Module,
		scheduler.Module,
		fx.Populate(&sched),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	runErr := sched.RunOnce(ctx)
	if err := app.Stop(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(4)
	if err != nil {
		panic(err)
	}
	return node
}
