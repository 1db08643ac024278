// Package seed loads the demo data set: two customers, two products and one order.
package seed

import (
	"context"
	"errors"
	"fmt"

	customerdomain "github.com/smallbiznis/crm/internal/customer/domain"
	orderdomain "github.com/smallbiznis/crm/internal/order/domain"
	productdomain "github.com/smallbiznis/crm/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Customers customerdomain.Service
	Products  productdomain.Service
	Orders    orderdomain.Service
}

// Result counts the rows present after seeding.
type Result struct {
	Customers int64
	Products  int64
	Orders    int64
	Skipped   bool
}

// Demo seeds the demo data through the regular mutations. Unless reset is set it
// does nothing when customers already exist.
func Demo(ctx context.Context, p Params, reset bool) (Result, error) {
	if p.DB == nil {
		return Result{}, errors.New("seed database handle is required")
	}
	log := p.Log.Named("seed")

	if reset {
		if err := Reset(ctx, p.DB); err != nil {
			return Result{}, err
		}
	} else {
		existing, err := p.Customers.Count(ctx)
		if err != nil {
			return Result{}, err
		}
		if existing > 0 {
			log.Info("demo data skipped, customers already present", zap.Int64("customers", existing))
			return counts(ctx, p.DB, true)
		}
	}

	phone := "+1234567890"
	alice, err := createCustomer(ctx, p.Customers, customerdomain.CreateCustomerRequest{Name: "Alice", Email: "alice@example.com", Phone: &phone})
	if err != nil {
		return Result{}, err
	}
	if _, err := createCustomer(ctx, p.Customers, customerdomain.CreateCustomerRequest{Name: "Bob", Email: "bob@example.com"}); err != nil {
		return Result{}, err
	}

	laptopStock, mouseStock := 10, 100
	laptop, err := createProduct(ctx, p.Products, productdomain.CreateProductRequest{Name: "Laptop", Price: "999.99", Stock: &laptopStock})
	if err != nil {
		return Result{}, err
	}
	mouse, err := createProduct(ctx, p.Products, productdomain.CreateProductRequest{Name: "Mouse", Price: "25.50", Stock: &mouseStock})
	if err != nil {
		return Result{}, err
	}

	order, err := p.Orders.Create(ctx, orderdomain.CreateOrderRequest{
		CustomerID: alice.ID.String(),
		ProductIDs: []string{laptop.ID.String(), mouse.ID.String()},
	})
	if err != nil {
		return Result{}, err
	}
	if !order.OK {
		return Result{}, fmt.Errorf("seed order: %s", order.Message)
	}

	result, err := counts(ctx, p.DB, false)
	if err != nil {
		return Result{}, err
	}
	log.Info("demo data seeded",
		zap.Int64("customers", result.Customers),
		zap.Int64("products", result.Products),
		zap.Int64("orders", result.Orders),
		zap.String("order_total", order.Order.TotalAmount.StringFixed(2)),
	)
	return result, nil
}

// Reset deletes every CRM row, links first.
func Reset(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&orderdomain.OrderProduct{},
			&orderdomain.Order{},
			&productdomain.Product{},
			&customerdomain.Customer{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func createCustomer(ctx context.Context, svc customerdomain.Service, req customerdomain.CreateCustomerRequest) (*customerdomain.Customer, error) {
	res, err := svc.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("seed customer %s: %s", req.Email, res.Message)
	}
	return res.Customer, nil
}

func createProduct(ctx context.Context, svc productdomain.Service, req productdomain.CreateProductRequest) (*productdomain.Product, error) {
	res, err := svc.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("seed product %s: %s", req.Name, res.Message)
	}
	return res.Product, nil
}

func counts(ctx context.Context, db *gorm.DB, skipped bool) (Result, error) {
	result := Result{Skipped: skipped}
	conn := db.WithContext(ctx)
	if err := conn.Model(&customerdomain.Customer{}).Count(&result.Customers).Error; err != nil {
		return Result{}, err
	}
	if err := conn.Model(&productdomain.Product{}).Count(&result.Products).Error; err != nil {
		return Result{}, err
	}
	if err := conn.Model(&orderdomain.Order{}).Count(&result.Orders).Error; err != nil {
		return Result{}, err
	}
	return result, nil
}
