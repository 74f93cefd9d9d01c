package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/homekeep/internal/clock"
	"github.com/smallbiznis/homekeep/internal/config"
	"github.com/smallbiznis/homekeep/internal/migration"
	"github.com/smallbiznis/homekeep/internal/observability"
	"github.com/smallbiznis/homekeep/internal/scheduler"
	"github.com/smallbiznis/homekeep/internal/server"
	"github.com/smallbiznis/homekeep/pkg/db"
	"go.uber.org/fx"
)

// Single-binary deployment: HTTP API, suggestion sweep and migrations in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
		scheduler.Runner,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
