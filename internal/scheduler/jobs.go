package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/crm/internal/config"
	orderdomain "github.com/smallbiznis/crm/internal/order/domain"
	productdomain "github.com/smallbiznis/crm/internal/product/domain"
	"github.com/smallbiznis/crm/internal/report"
	"github.com/smallbiznis/crm/pkg/db/pagination"
	"go.uber.org/zap"
)

// heartbeatJob records that the service is alive, then checks the database.
// The line is written even when the check fails.
func (s *Scheduler) heartbeatJob(cfg config.HeartbeatJobConfig) func(context.Context) error {
	return func(ctx context.Context) error {
		stamp := s.clock.Now().Format(logTimestampLayout)
		s.writeJobLog(ctx, cfg.LogPath, stamp+" CRM is alive")

		if err := s.pingDB(ctx); err != nil {
			s.logJobError(ctx, "heartbeat health check failed", err)
			return nil
		}
		jobRunFromContext(ctx).AddProcessed(1)
		return nil
	}
}

func (s *Scheduler) pingDB(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Scheduler) lowStockJob(cfg config.LowStockJobConfig) func(context.Context) error {
	return func(ctx context.Context) error {
		result, err := s.products.UpdateLowStock(ctx, productdomain.UpdateLowStockRequest{IncrementBy: cfg.IncrementBy})
		stamp := s.clock.Now().Format(logTimestampLayout)
		if err == nil && !result.OK {
			err = errors.New(result.Message)
		}
		if err != nil {
			s.writeJobLog(ctx, cfg.LogPath, fmt.Sprintf("%s Error updating low stock: %v", stamp, err))
			return err
		}

		lines := make([]string, 0, len(result.Products))
		for _, product := range result.Products {
			lines = append(lines, fmt.Sprintf("%s Updated: %s -> stock %d", stamp, product.Name, product.Stock))
		}
		s.writeJobLog(ctx, cfg.LogPath, lines...)
		jobRunFromContext(ctx).AddProcessed(len(result.Products))
		s.logger(ctx).Info("low stock products restocked",
			zap.Int("count", len(result.Products)),
			zap.Int("increment_by", cfg.IncrementBy),
		)
		return nil
	}
}

// orderRemindersJob writes one reminder per order placed within the lookback window.
func (s *Scheduler) orderRemindersJob(cfg config.OrderRemindersJobConfig) func(context.Context) error {
	return func(ctx context.Context) error {
		now := s.clock.Now()
		since := now.Add(-cfg.Lookback)
		stamp := now.Format(logTimestampLayout)

		var lines []string
		req := orderdomain.ListOrderRequest{
			Pagination: pagination.Pagination{First: pagination.MaxPageSize},
			Filter:     orderdomain.ListOrderFilter{OrderDateGte: &since},
		}
		for {
			page, err := s.orders.List(ctx, req)
			if err != nil {
				s.writeJobLog(ctx, cfg.LogPath, fmt.Sprintf("%s Error querying orders: %v", stamp, err))
				return err
			}
			for _, order := range page.Nodes() {
				if order.Customer.Email == "" {
					continue
				}
				lines = append(lines, fmt.Sprintf("%s Reminder for order %s -> %s", stamp, order.ID, order.Customer.Email))
			}
			if !page.PageInfo.HasNextPage {
				break
			}
			req.After = page.PageInfo.EndCursor
		}

		s.writeJobLog(ctx, cfg.LogPath, lines...)
		jobRunFromContext(ctx).AddProcessed(len(lines))
		return nil
	}
}

func (s *Scheduler) reportJob(cfg config.ReportJobConfig) func(context.Context) error {
	return func(ctx context.Context) error {
		now := s.clock.Now()
		snap, err := report.Aggregate(ctx, s.customers, s.orders, now)
		if err != nil {
			s.writeJobLog(ctx, cfg.LogPath, report.ErrorLine(now, err))
			return err
		}
		s.writeJobLog(ctx, cfg.LogPath, snap.Line())
		jobRunFromContext(ctx).AddProcessed(1)

		if cfg.PDFDir == "" {
			return nil
		}
		path, err := report.WritePDF(cfg.PDFDir, snap)
		if err != nil {
			return err
		}
		s.logger(ctx).Info("report pdf written", zap.String("path", path))
		return nil
	}
}
