package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	productdomain "github.com/smallbiznis/crm/internal/product/domain"
	"github.com/smallbiznis/crm/pkg/db/option"
	"github.com/smallbiznis/crm/pkg/db/pagination"
)

type createProductRequest struct {
	Name  string   `json:"name"`
	Price jsonText `json:"price"`
	Stock *int     `json:"stock"`
}

type updateLowStockRequest struct {
	IncrementBy any `json:"increment_by"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.productSvc.Create(c.Request.Context(), productdomain.CreateProductRequest{
		Name:  req.Name,
		Price: req.Price.String(),
		Stock: req.Stock,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// UpdateLowStockProducts takes increment_by from the JSON body or the query string.
// An empty body is allowed.
func (s *Server) UpdateLowStockProducts(c *gin.Context) {
	var req updateLowStockRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.IncrementBy == nil {
		if raw, ok := c.GetQuery("increment_by"); ok {
			req.IncrementBy = raw
		}
	}

	resp, err := s.productSvc.UpdateLowStock(c.Request.Context(), productdomain.UpdateLowStockRequest{
		IncrementBy: req.IncrementBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProducts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Name     string `form:"name"`
		PriceGte string `form:"price_gte"`
		PriceLte string `form:"price_lte"`
		StockGte string `form:"stock_gte"`
		StockLte string `form:"stock_lte"`
		LowStock string `form:"low_stock"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := productdomain.ListProductFilter{Name: strings.TrimSpace(query.Name)}
	var err error
	if filter.PriceGte, err = parseOptionalDecimal(query.PriceGte); err != nil {
		AbortWithError(c, newValidationError("price_gte", "invalid_price_gte", "invalid price_gte"))
		return
	}
	if filter.PriceLte, err = parseOptionalDecimal(query.PriceLte); err != nil {
		AbortWithError(c, newValidationError("price_lte", "invalid_price_lte", "invalid price_lte"))
		return
	}
	if filter.StockGte, err = parseOptionalInt(query.StockGte); err != nil {
		AbortWithError(c, newValidationError("stock_gte", "invalid_stock_gte", "invalid stock_gte"))
		return
	}
	if filter.StockLte, err = parseOptionalInt(query.StockLte); err != nil {
		AbortWithError(c, newValidationError("stock_lte", "invalid_stock_lte", "invalid stock_lte"))
		return
	}
	if filter.LowStock, err = parseOptionalBool(query.LowStock); err != nil {
		AbortWithError(c, newValidationError("low_stock", "invalid_low_stock", "invalid low_stock"))
		return
	}

	resp, err := s.productSvc.List(c.Request.Context(), productdomain.ListProductRequest{
		Pagination: query.Pagination,
		Filter:     filter,
		OrderBy:    option.SplitOrderBy(c.QueryArray("order_by")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProductByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.productSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
