package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crm/internal/clock"
	"github.com/smallbiznis/crm/internal/config"
	"github.com/smallbiznis/crm/internal/customer"
	"github.com/smallbiznis/crm/internal/observability"
	"github.com/smallbiznis/crm/internal/order"
	"github.com/smallbiznis/crm/internal/product"
	"github.com/smallbiznis/crm/internal/scheduler"
	"github.com/smallbiznis/crm/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		customer.Module,
		product.Module,
		order.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

// Node 2 keeps scheduler ids apart from the API's when both run.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
