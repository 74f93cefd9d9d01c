package main

import (
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

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Domain services required by the suggestion sweep
		expiry.Module,
		inventory.Module,
		consumption.Module,

		// No server module!
		scheduler.Module,
		scheduler.Runner,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
