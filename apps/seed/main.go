package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crm/internal/clock"
	"github.com/smallbiznis/crm/internal/config"
	"github.com/smallbiznis/crm/internal/customer"
	"github.com/smallbiznis/crm/internal/migration"
	"github.com/smallbiznis/crm/internal/observability"
	"github.com/smallbiznis/crm/internal/order"
	"github.com/smallbiznis/crm/internal/product"
	"github.com/smallbiznis/crm/internal/seed"
	"github.com/smallbiznis/crm/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	reset := flag.Bool("reset", false, "delete all customers, products and orders before seeding")
	flag.Parse()

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		customer.Module,
		product.Module,
		order.Module,

		fx.Invoke(func(cfg config.Config, p seed.Params) error {
			if err := migration.Migrate(p.DB, cfg.DBType); err != nil {
				return err
			}
			res, err := seed.Demo(context.Background(), p, *reset || cfg.Bootstrap.ResetBeforeSeed)
			if err != nil {
				return err
			}
			p.Log.Info("seed finished",
				zap.Bool("skipped", res.Skipped),
				zap.Int64("customers", res.Customers),
				zap.Int64("products", res.Products),
				zap.Int64("orders", res.Orders),
			)
			return nil
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		os.Exit(1)
	}
	if err := app.Stop(ctx); err != nil {
		os.Exit(1)
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
