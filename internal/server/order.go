package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/crm/internal/order/domain"
	"github.com/smallbiznis/crm/pkg/db/option"
	"github.com/smallbiznis/crm/pkg/db/pagination"
)

type createOrderRequest struct {
	CustomerID jsonText   `json:"customer_id"`
	ProductIDs []jsonText `json:"product_ids"`
	OrderDate  string     `json:"order_date"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderDate, err := parseOptionalTime(req.OrderDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("order_date", "invalid_order_date", "invalid order_date"))
		return
	}

	productIDs := make([]string, 0, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		productIDs = append(productIDs, id.String())
	}

	resp, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateOrderRequest{
		CustomerID: req.CustomerID.String(),
		ProductIDs: productIDs,
		OrderDate:  orderDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListOrders(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerName string `form:"customer_name"`
		ProductName  string `form:"product_name"`
		ProductID    string `form:"product_id"`
		TotalGte     string `form:"total_amount_gte"`
		TotalLte     string `form:"total_amount_lte"`
		OrderDateGte string `form:"order_date_gte"`
		OrderDateLte string `form:"order_date_lte"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := orderdomain.ListOrderFilter{
		CustomerName: strings.TrimSpace(query.CustomerName),
		ProductName:  strings.TrimSpace(query.ProductName),
	}

	productID, err := parseOptionalSnowflakeID(query.ProductID)
	if err != nil {
		AbortWithError(c, newValidationError("product_id", "invalid_product_id", "invalid product_id"))
		return
	}
	if productID != nil {
		id := productID.Int64()
		filter.ProductID = &id
	}
	if filter.TotalGte, err = parseOptionalDecimal(query.TotalGte); err != nil {
		AbortWithError(c, newValidationError("total_amount_gte", "invalid_total_amount_gte", "invalid total_amount_gte"))
		return
	}
	if filter.TotalLte, err = parseOptionalDecimal(query.TotalLte); err != nil {
		AbortWithError(c, newValidationError("total_amount_lte", "invalid_total_amount_lte", "invalid total_amount_lte"))
		return
	}
	if filter.OrderDateGte, err = parseOptionalTime(query.OrderDateGte, false); err != nil {
		AbortWithError(c, newValidationError("order_date_gte", "invalid_order_date_gte", "invalid order_date_gte"))
		return
	}
	if filter.OrderDateLte, err = parseOptionalTime(query.OrderDateLte, true); err != nil {
		AbortWithError(c, newValidationError("order_date_lte", "invalid_order_date_lte", "invalid order_date_lte"))
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), orderdomain.ListOrderRequest{
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

func (s *Server) GetOrderByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
