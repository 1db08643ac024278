package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crm/internal/clock"
	customerdomain "github.com/smallbiznis/crm/internal/customer/domain"
	customerrepo "github.com/smallbiznis/crm/internal/customer/repository"
	"github.com/smallbiznis/crm/internal/dbtest"
	"github.com/smallbiznis/crm/internal/order/domain"
	"github.com/smallbiznis/crm/internal/order/repository"
	productdomain "github.com/smallbiznis/crm/internal/product/domain"
	productrepo "github.com/smallbiznis/crm/internal/product/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	svc  domain.Service
	db   *gorm.DB
	node *snowflake.Node
	clk  *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:           conn,
		Log:          zaptest.NewLogger(t),
		GenID:        node,
		Clock:        clk,
		Repo:         repository.Provide(),
		CustomerRepo: customerrepo.Provide(),
		ProductRepo:  productrepo.Provide(),
	})
	return &fixture{svc: svc, db: conn, node: node, clk: clk}
}

func (f *fixture) customer(t *testing.T, name, email string) customerdomain.Customer {
	t.Helper()
	c := customerdomain.Customer{ID: f.node.Generate(), Name: name, Email: email, CreatedAt: f.clk.Now()}
	require.NoError(t, f.db.Create(&c).Error)
	return c
}

func (f *fixture) product(t *testing.T, name, price string) productdomain.Product {
	t.Helper()
	p := productdomain.Product{
		ID:        f.node.Generate(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     20,
		CreatedAt: f.clk.Now(),
	}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) counts(t *testing.T) (orders, links int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&domain.Order{}).Count(&orders).Error)
	require.NoError(t, f.db.Model(&domain.OrderProduct{}).Count(&links).Error)
	return orders, links
}

func TestCreateOrderTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.customer(t, "Alice", "alice@example.com")
	laptop := f.product(t, "Laptop", "999.99")
	mouse := f.product(t, "Mouse", "25.50")

	res, err := f.svc.Create(ctx, domain.CreateOrderRequest{
		CustomerID: alice.ID.String(),
		ProductIDs: []string{laptop.ID.String(), mouse.ID.String(), laptop.ID.String()},
	})
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, domain.MsgCreated, res.Message)

	order := res.Order
	require.NotNil(t, order)
	assert.Equal(t, "1025.49", order.TotalAmount.StringFixed(2))
	assert.Equal(t, alice.ID, order.CustomerID)
	assert.Equal(t, "alice@example.com", order.Customer.Email)
	require.Len(t, order.Products, 2)
	assert.Equal(t, laptop.ID, order.Products[0].ID)
	assert.Equal(t, mouse.ID, order.Products[1].ID)
	assert.True(t, order.OrderDate.Equal(f.clk.Now()))
}

func TestCreateOrderUsesGivenDate(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "Alice", "alice@example.com")
	mouse := f.product(t, "Mouse", "25.50")

	when := time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC)
	res, err := f.svc.Create(context.Background(), domain.CreateOrderRequest{
		CustomerID: alice.ID.String(),
		ProductIDs: []string{mouse.ID.String()},
		OrderDate:  &when,
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.True(t, res.Order.OrderDate.Equal(when))
}

func TestCreateOrderRejectsWithoutWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.customer(t, "Alice", "alice@example.com")
	mouse := f.product(t, "Mouse", "25.50")
	missing := f.node.Generate().String()

	cases := []struct {
		name string
		req  domain.CreateOrderRequest
		msg  string
	}{
		{"unknown customer", domain.CreateOrderRequest{CustomerID: missing, ProductIDs: []string{mouse.ID.String()}}, domain.MsgInvalidCustomerID},
		{"malformed customer", domain.CreateOrderRequest{CustomerID: "x", ProductIDs: []string{mouse.ID.String()}}, domain.MsgInvalidCustomerID},
		{"customer checked before products", domain.CreateOrderRequest{CustomerID: missing}, domain.MsgInvalidCustomerID},
		{"empty products", domain.CreateOrderRequest{CustomerID: alice.ID.String()}, "At least one product must be selected"},
		{"unknown product", domain.CreateOrderRequest{CustomerID: alice.ID.String(), ProductIDs: []string{mouse.ID.String(), missing}}, domain.MsgInvalidProductIDs},
		{"malformed product", domain.CreateOrderRequest{CustomerID: alice.ID.String(), ProductIDs: []string{"abc"}}, domain.MsgInvalidProductIDs},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.Create(ctx, tc.req)
			require.NoError(t, err)
			assert.False(t, res.OK)
			assert.Nil(t, res.Order)
			assert.Equal(t, tc.msg, res.Message)
		})
	}

	orders, links := f.counts(t)
	assert.Zero(t, orders)
	assert.Zero(t, links)
}

func TestCreateOrderStoreFailureLeavesNoOrder(t *testing.T) {
	f := newFixture(t)
	alice := f.customer(t, "Alice", "alice@example.com")
	mouse := f.product(t, "Mouse", "25.50")

	require.NoError(t, f.db.Migrator().DropTable(&domain.OrderProduct{}))

	res, err := f.svc.Create(context.Background(), domain.CreateOrderRequest{
		CustomerID: alice.ID.String(),
		ProductIDs: []string{mouse.ID.String()},
	})
	require.Error(t, err)
	assert.False(t, res.OK)

	var orders int64
	require.NoError(t, f.db.Model(&domain.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestTotalNotRecomputedOnRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.customer(t, "Alice", "alice@example.com")
	laptop := f.product(t, "Laptop", "999.99")

	res, err := f.svc.Create(ctx, domain.CreateOrderRequest{CustomerID: alice.ID.String(), ProductIDs: []string{laptop.ID.String()}})
	require.NoError(t, err)
	require.True(t, res.OK)

	require.NoError(t, f.db.Model(&productdomain.Product{}).
		Where("id = ?", laptop.ID).
		Update("price", decimal.RequireFromString("1499.00")).Error)

	got, err := f.svc.Get(ctx, res.Order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "999.99", got.TotalAmount.StringFixed(2))
	assert.Equal(t, "1499.00", got.Products[0].Price.StringFixed(2))

	summary, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Orders)
	assert.Equal(t, "999.99", summary.Revenue.StringFixed(2))
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.customer(t, "Alice", "alice@example.com")
	bob := f.customer(t, "Bob", "bob@example.com")
	laptop := f.product(t, "Laptop", "999.99")
	sleeve := f.product(t, "Laptop Sleeve", "19.90")
	mouse := f.product(t, "Mouse", "25.50")

	create := func(customer customerdomain.Customer, when time.Time, products ...productdomain.Product) domain.Order {
		ids := make([]string, 0, len(products))
		for _, p := range products {
			ids = append(ids, p.ID.String())
		}
		res, err := f.svc.Create(ctx, domain.CreateOrderRequest{CustomerID: customer.ID.String(), ProductIDs: ids, OrderDate: &when})
		require.NoError(t, err)
		require.True(t, res.OK, res.Message)
		return *res.Order
	}

	now := f.clk.Now()
	old := create(alice, now.AddDate(0, 0, -30), mouse)
	both := create(alice, now.AddDate(0, 0, -2), laptop, sleeve)
	recent := create(bob, now.AddDate(0, 0, -1), mouse, sleeve)

	ids := func(page domain.ListOrderResponse) []snowflake.ID {
		out := make([]snowflake.ID, 0, len(page.Edges))
		for _, o := range page.Nodes() {
			out = append(out, o.ID)
		}
		return out
	}

	t.Run("product name matches each order once", func(t *testing.T) {
		page, err := f.svc.List(ctx, domain.ListOrderRequest{Filter: domain.ListOrderFilter{ProductName: "laptop"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.TotalCount)
		assert.Equal(t, []snowflake.ID{both.ID}, ids(page))
	})

	t.Run("customer name", func(t *testing.T) {
		page, err := f.svc.List(ctx, domain.ListOrderRequest{Filter: domain.ListOrderFilter{CustomerName: "ali"}})
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{old.ID, both.ID}, ids(page))
	})

	t.Run("product id", func(t *testing.T) {
		sleeveID := sleeve.ID.Int64()
		page, err := f.svc.List(ctx, domain.ListOrderRequest{Filter: domain.ListOrderFilter{ProductID: &sleeveID}})
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{both.ID, recent.ID}, ids(page))
	})

	t.Run("order date lower bound", func(t *testing.T) {
		since := now.AddDate(0, 0, -7)
		page, err := f.svc.List(ctx, domain.ListOrderRequest{Filter: domain.ListOrderFilter{OrderDateGte: &since}})
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{both.ID, recent.ID}, ids(page))
	})

	t.Run("total range and ordering", func(t *testing.T) {
		floor := decimal.RequireFromString("40")
		page, err := f.svc.List(ctx, domain.ListOrderRequest{
			Filter:  domain.ListOrderFilter{TotalGte: &floor},
			OrderBy: []string{"-total_amount", "customer"},
		})
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{both.ID, recent.ID}, ids(page))
	})

	t.Run("order date descending", func(t *testing.T) {
		page, err := f.svc.List(ctx, domain.ListOrderRequest{OrderBy: []string{"-order_date"}})
		require.NoError(t, err)
		assert.Equal(t, []snowflake.ID{recent.ID, both.ID, old.ID}, ids(page))
	})
}

func TestSumPrices(t *testing.T) {
	prices := []decimal.Decimal{
		decimal.RequireFromString("0.105"),
		decimal.RequireFromString("0.10"),
	}
	assert.Equal(t, "0.21", SumPrices(prices).StringFixed(2))
	assert.True(t, SumPrices(nil).IsZero())
}
