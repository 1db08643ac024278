// Package report builds the periodic CRM summary: customer count, order count and revenue.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/crm/internal/customer/domain"
	orderdomain "github.com/smallbiznis/crm/internal/order/domain"
)

// TimestampLayout is the prefix of every report log line.
const TimestampLayout = "2006-01-02 15:04:05"

type CustomerCounter interface {
	Count(ctx context.Context) (int64, error)
}

type OrderSummarizer interface {
	Summary(ctx context.Context) (orderdomain.Summary, error)
}

var (
	_ CustomerCounter = customerdomain.Service(nil)
	_ OrderSummarizer = orderdomain.Service(nil)
)

type Snapshot struct {
	GeneratedAt time.Time
	Customers   int64
	Orders      int64
	Revenue     decimal.Decimal
}

// Aggregate reads the current totals. Revenue is the sum of stored order totals.
func Aggregate(ctx context.Context, customers CustomerCounter, orders OrderSummarizer, now time.Time) (Snapshot, error) {
	customerCount, err := customers.Count(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count customers: %w", err)
	}
	summary, err := orders.Summary(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("summarize orders: %w", err)
	}
	return Snapshot{
		GeneratedAt: now,
		Customers:   customerCount,
		Orders:      summary.Orders,
		Revenue:     summary.Revenue,
	}, nil
}

func (s Snapshot) RevenueString() string {
	return s.Revenue.StringFixed(2)
}

// Line renders the snapshot as a report log line without the trailing newline.
func (s Snapshot) Line() string {
	return fmt.Sprintf("%s - Report: %d customers, %d orders, $%s revenue",
		s.GeneratedAt.Format(TimestampLayout), s.Customers, s.Orders, s.RevenueString())
}

func ErrorLine(at time.Time, err error) string {
	return fmt.Sprintf("%s - Error: %v", at.Format(TimestampLayout), err)
}

// FileName is the PDF name for the snapshot, unique per second.
func (s Snapshot) FileName() string {
	return fmt.Sprintf("crm_report_%s.pdf", s.GeneratedAt.Format("20060102_150405"))
}
