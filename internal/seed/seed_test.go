package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crm/internal/clock"
	customerrepo "github.com/smallbiznis/crm/internal/customer/repository"
	customerservice "github.com/smallbiznis/crm/internal/customer/service"
	"github.com/smallbiznis/crm/internal/dbtest"
	orderdomain "github.com/smallbiznis/crm/internal/order/domain"
	orderrepo "github.com/smallbiznis/crm/internal/order/repository"
	orderservice "github.com/smallbiznis/crm/internal/order/service"
	productrepo "github.com/smallbiznis/crm/internal/product/repository"
	productservice "github.com/smallbiznis/crm/internal/product/service"
	"github.com/smallbiznis/crm/internal/seed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newParams(t *testing.T) seed.Params {
	t.Helper()

	conn := dbtest.Open(t)
	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	customers := customerrepo.Provide()
	products := productrepo.Provide()
	return seed.Params{
		DB:  conn,
		Log: log,
		Customers: customerservice.New(customerservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk, Repo: customers,
		}),
		Products: productservice.New(productservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk, Repo: products,
		}),
		Orders: orderservice.New(orderservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk,
			Repo: orderrepo.Provide(), CustomerRepo: customers, ProductRepo: products,
		}),
	}
}

func TestDemo(t *testing.T) {
	p := newParams(t)
	ctx := context.Background()

	res, err := seed.Demo(ctx, p, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, seed.Result{Customers: 2, Products: 2, Orders: 1}, res)

	summary, err := p.Orders.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1025.49", summary.Revenue.StringFixed(2))

	var order orderdomain.Order
	require.NoError(t, p.DB.Preload("Customer").Take(&order).Error)
	assert.Equal(t, "Alice", order.Customer.Name)
	require.NotNil(t, order.Customer.Phone)
	assert.Equal(t, "+1234567890", *order.Customer.Phone)
}

func TestDemoIsIdempotent(t *testing.T) {
	p := newParams(t)
	ctx := context.Background()

	_, err := seed.Demo(ctx, p, false)
	require.NoError(t, err)

	again, err := seed.Demo(ctx, p, false)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, int64(2), again.Customers)
	assert.Equal(t, int64(1), again.Orders)
}

func TestDemoReset(t *testing.T) {
	p := newParams(t)
	ctx := context.Background()

	_, err := seed.Demo(ctx, p, false)
	require.NoError(t, err)

	res, err := seed.Demo(ctx, p, true)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(2), res.Customers)
	assert.Equal(t, int64(2), res.Products)
	assert.Equal(t, int64(1), res.Orders)
}
