package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/homekeep/internal/clock"
	"github.com/smallbiznis/homekeep/internal/config"
	"github.com/smallbiznis/homekeep/internal/observability"
	"github.com/smallbiznis/homekeep/internal/server"
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

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
