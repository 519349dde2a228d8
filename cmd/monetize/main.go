package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/paissive/monetize/internal/clock"
	"github.com/paissive/monetize/internal/config"
	"github.com/paissive/monetize/internal/logger"
	"github.com/paissive/monetize/internal/migration"
	"github.com/paissive/monetize/internal/observability"
	"github.com/paissive/monetize/internal/scheduler"
	"github.com/paissive/monetize/internal/server"
	"github.com/paissive/monetize/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
