package main

import (
	"github.com/astralhq/oraculum/internal/clock"
	"github.com/astralhq/oraculum/internal/config"
	"github.com/astralhq/oraculum/internal/migration"
	"github.com/astralhq/oraculum/internal/observability"
	"github.com/astralhq/oraculum/internal/server"
	"github.com/astralhq/oraculum/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
