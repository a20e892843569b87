package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/subvault/internal/admin"
	admindomain "github.com/smallbiznis/subvault/internal/admin/domain"
	"github.com/smallbiznis/subvault/internal/audit"
	"github.com/smallbiznis/subvault/internal/authorization"
	"github.com/smallbiznis/subvault/internal/billingevent"
	"github.com/smallbiznis/subvault/internal/clock"
	"github.com/smallbiznis/subvault/internal/config"
	"github.com/smallbiznis/subvault/internal/migration"
	"github.com/smallbiznis/subvault/internal/observability/metrics"
	"github.com/smallbiznis/subvault/internal/scheduler"
	"github.com/smallbiznis/subvault/internal/server"
	"github.com/smallbiznis/subvault/internal/transfer"
	"github.com/smallbiznis/subvault/internal/vault"
	"github.com/smallbiznis/subvault/pkg/db"
	"github.com/smallbiznis/subvault/pkg/log"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		db.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(ProvideMetrics),

		migration.Module,

		transfer.Module,
		billingevent.Module,
		audit.Module,
		authorization.Module,
		vault.Module,
		admin.Module,

		// Seed the settings row before anything can serve traffic.
		fx.Invoke(func(svc admindomain.Service) error {
			return svc.Bootstrap(context.Background())
		}),

		scheduler.Module,
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

func ProvideMetrics(cfg config.Config) *metrics.Metrics {
	return metrics.WithConfig(metrics.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	})
}
