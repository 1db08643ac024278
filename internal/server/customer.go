package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/crm/internal/customer/domain"
	"github.com/smallbiznis/crm/pkg/db/option"
	"github.com/smallbiznis/crm/pkg/db/pagination"
)

type createCustomerRequest struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone"`
}

func (r createCustomerRequest) toDomain() customerdomain.CreateCustomerRequest {
	return customerdomain.CreateCustomerRequest{
		Name:  r.Name,
		Email: r.Email,
		Phone: r.Phone,
	}
}

type bulkCreateCustomersRequest struct {
	Input []createCustomerRequest `json:"input"`
}

func (s *Server) CreateCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.Create(c.Request.Context(), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BulkCreateCustomers(c *gin.Context) {
	var req bulkCreateCustomersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]customerdomain.CreateCustomerRequest, 0, len(req.Input))
	for _, item := range req.Input {
		items = append(items, item.toDomain())
	}

	resp, err := s.customerSvc.BulkCreate(c.Request.Context(), items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Name        string `form:"name"`
		Email       string `form:"email"`
		PhonePrefix string `form:"phone_prefix"`
		CreatedGte  string `form:"created_at_gte"`
		CreatedLte  string `form:"created_at_lte"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	createdGte, err := parseOptionalTime(query.CreatedGte, false)
	if err != nil {
		AbortWithError(c, newValidationError("created_at_gte", "invalid_created_at_gte", "invalid created_at_gte"))
		return
	}

	createdLte, err := parseOptionalTime(query.CreatedLte, true)
	if err != nil {
		AbortWithError(c, newValidationError("created_at_lte", "invalid_created_at_lte", "invalid created_at_lte"))
		return
	}

	resp, err := s.customerSvc.List(c.Request.Context(), customerdomain.ListCustomerRequest{
		Pagination: query.Pagination,
		Filter: customerdomain.ListCustomerFilter{
			Name:        strings.TrimSpace(query.Name),
			Email:       strings.TrimSpace(query.Email),
			PhonePrefix: strings.TrimSpace(query.PhonePrefix),
			CreatedGte:  createdGte,
			CreatedLte:  createdLte,
		},
		OrderBy: option.SplitOrderBy(c.QueryArray("order_by")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCustomerByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.customerSvc.GetByID(c.Request.Context(), customerdomain.GetCustomerRequest{
		ID: id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
