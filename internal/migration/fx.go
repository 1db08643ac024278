package migration

import (
	"context"

	"github.com/smallbiznis/crm/internal/config"
	"github.com/smallbiznis/crm/internal/seed"
	"go.uber.org/fx"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(cfg config.Config, p seed.Params) error {
		if err := Migrate(p.DB, cfg.DBType); err != nil {
			return err
		}
		if !cfg.Bootstrap.SeedDemoData {
			return nil
		}
		_, err := seed.Demo(context.Background(), p, cfg.Bootstrap.ResetBeforeSeed)
		return err
	}),
)
