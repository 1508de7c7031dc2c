package migration

import (
	"github.com/campforge/campforge/internal/config"
	"github.com/campforge/campforge/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if err := RunMigrations(conn); err != nil {
			return err
		}

		if !cfg.IsProduction() {
			return seed.EnsureDevFixtures(conn)
		}
		return nil
	}),
)
