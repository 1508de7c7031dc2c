package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/campforge/campforge/internal/clock"
	"github.com/campforge/campforge/internal/config"
	"github.com/campforge/campforge/internal/logger"
	"github.com/campforge/campforge/internal/migration"
	"github.com/campforge/campforge/internal/server"
	"github.com/campforge/campforge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface plus every domain module it depends on, scheduler
		// included. The monolith runs the automation loop in-process.
		server.Module,
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
