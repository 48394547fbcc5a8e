package migration

import (
	artifactdomain "github.com/astralhq/oraculum/internal/artifact/domain"
	"github.com/astralhq/oraculum/internal/config"
	"github.com/astralhq/oraculum/internal/seed"
	subscriptiondomain "github.com/astralhq/oraculum/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql are local/dev setups; gorm's migrator keeps
			// them usable without maintaining per-dialect SQL.
			if err := conn.AutoMigrate(
				&subscriptiondomain.SubscriptionState{},
				&artifactdomain.Artifact{},
			); err != nil {
				return err
			}
		}

		if !cfg.IsProduction() {
			return seed.EnsureDemoSubscriptions(conn, genID)
		}
		return nil
	}),
)
