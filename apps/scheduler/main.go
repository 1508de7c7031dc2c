package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/campforge/campforge/internal/audit"
	"github.com/campforge/campforge/internal/clock"
	"github.com/campforge/campforge/internal/config"
	"github.com/campforge/campforge/internal/logger"
	"github.com/campforge/campforge/internal/migration"
	"github.com/campforge/campforge/internal/notification"
	"github.com/campforge/campforge/internal/revenue"
	"github.com/campforge/campforge/internal/royalty"
	"github.com/campforge/campforge/internal/scheduler"
	"github.com/campforge/campforge/internal/snapshot"
	"github.com/campforge/campforge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services required by the automation run
		audit.Module,
		notification.Module,
		revenue.Module,
		royalty.Module,
		snapshot.Module,

		// No server module; scheduler.Module starts the run loop itself.
		scheduler.Module,
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
