package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/crm/internal/clock"
	"github.com/smallbiznis/crm/internal/config"
	customerrepo "github.com/smallbiznis/crm/internal/customer/repository"
	customerservice "github.com/smallbiznis/crm/internal/customer/service"
	"github.com/smallbiznis/crm/internal/dbtest"
	"github.com/smallbiznis/crm/internal/observability"
	obslogger "github.com/smallbiznis/crm/internal/observability/logger"
	orderrepo "github.com/smallbiznis/crm/internal/order/repository"
	orderservice "github.com/smallbiznis/crm/internal/order/service"
	productrepo "github.com/smallbiznis/crm/internal/product/repository"
	productservice "github.com/smallbiznis/crm/internal/product/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := dbtest.Open(t)
	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))

	customers := customerrepo.Provide()
	products := productrepo.Provide()
	return NewServer(ServerParams{
		Gin: NewEngine(observability.Config{Environment: "test"}, nil),
		Cfg: config.Config{Environment: "test"},
		DB:  conn,
		Log: log,
		CustomerSvc: customerservice.New(customerservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk, Repo: customers,
		}),
		ProductSvc: productservice.New(productservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk, Repo: products,
		}),
		OrderSvc: orderservice.New(orderservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk,
			Repo: orderrepo.Provide(), CustomerRepo: customers, ProductRepo: products,
		}),
	})
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	srv.Engine().ServeHTTP(resp, req)

	var decoded map[string]any
	if resp.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &decoded), resp.Body.String())
	}
	return resp, decoded
}

func data(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	out, ok := payload["data"].(map[string]any)
	require.True(t, ok, "missing data in %v", payload)
	return out
}

func TestHealthAndHello(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header().Get(obslogger.HeaderRequestID))

	resp, body = doJSON(t, srv, http.MethodGet, "/api/hello", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, HelloMessage, data(t, body)["hello"])
}

func TestCreateCustomerHandler(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/customers", `{"name":"Alice","email":"alice@example.com","phone":"+1234567890"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	out := data(t, body)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "Customer created", out["message"])
	customer := out["customer"].(map[string]any)
	assert.Equal(t, "alice@example.com", customer["email"])

	resp, body = doJSON(t, srv, http.MethodPost, "/api/customers", `{"name":"Alice","email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	out = data(t, body)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, "Email already exists", out["message"])
	assert.Nil(t, out["customer"])

	resp, body = doJSON(t, srv, http.MethodPost, "/api/customers", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	errPayload := body["error"].(map[string]any)
	assert.Equal(t, "validation_error", errPayload["type"])
}

func TestBulkCreateCustomersHandler(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/customers/bulk", `{"input":[
		{"name":"Carol","email":"carol@example.com"},
		{"name":"Bad Phone","email":"bad@example.com","phone":"abc"},
		{"name":"Carol Twin","email":"carol@example.com"}
	]}`)
	require.Equal(t, http.StatusOK, resp.Code)
	out := data(t, body)
	assert.Equal(t, false, out["ok"])
	assert.Equal(t, []any{"Index 1: Invalid phone format", "Index 2: Email already exists"}, out["errors"])
	assert.Len(t, out["customers"], 1)
}

func TestProductHandlers(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/products", `{"name":"Mouse","price":25.50,"stock":5}`)
	require.Equal(t, http.StatusOK, resp.Code)
	product := data(t, body)["product"].(map[string]any)
	assert.Equal(t, "25.50", product["price"])

	resp, body = doJSON(t, srv, http.MethodPost, "/api/products", `{"name":"Laptop","price":"999.99","stock":10}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, data(t, body)["ok"])

	resp, body = doJSON(t, srv, http.MethodPost, "/api/products", `{"name":"Free","price":"0"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, data(t, body)["ok"])
	assert.Equal(t, "Price must be positive", data(t, body)["message"])

	resp, body = doJSON(t, srv, http.MethodPost, "/api/products/low-stock/restock", `{"increment_by":"lots"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	out := data(t, body)
	assert.Equal(t, "Updated 1 products", out["message"])
	updated := out["updated_products"].([]any)
	require.Len(t, updated, 1)
	assert.Equal(t, float64(15), updated[0].(map[string]any)["stock"])

	resp, body = doJSON(t, srv, http.MethodPost, "/api/products/low-stock/restock", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "No low-stock products", data(t, body)["message"])

	resp, body = doJSON(t, srv, http.MethodGet, "/api/products?order_by=price,bogus_field&order_by=-stock", "")
	require.Equal(t, http.StatusOK, resp.Code)
	out = data(t, body)
	assert.Equal(t, float64(2), out["total_count"])
	edges := out["edges"].([]any)
	require.Len(t, edges, 2)
	assert.Equal(t, "Mouse", edges[0].(map[string]any)["node"].(map[string]any)["name"])

	resp, _ = doJSON(t, srv, http.MethodGet, "/api/products?price_gte=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestOrderHandlers(t *testing.T) {
	srv := newTestServer(t)

	_, body := doJSON(t, srv, http.MethodPost, "/api/customers", `{"name":"Alice","email":"alice@example.com"}`)
	customerID := data(t, body)["customer"].(map[string]any)["id"]
	_, body = doJSON(t, srv, http.MethodPost, "/api/products", `{"name":"Laptop","price":"999.99"}`)
	laptopID := data(t, body)["product"].(map[string]any)["id"]
	_, body = doJSON(t, srv, http.MethodPost, "/api/products", `{"name":"Mouse","price":"25.50"}`)
	mouseID := data(t, body)["product"].(map[string]any)["id"]

	payload, err := json.Marshal(map[string]any{
		"customer_id": customerID,
		"product_ids": []any{laptopID, mouseID},
		"order_date":  "2024-03-01",
	})
	require.NoError(t, err)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/orders", string(payload))
	require.Equal(t, http.StatusOK, resp.Code)
	out := data(t, body)
	require.Equal(t, true, out["ok"], out["message"])
	order := out["order"].(map[string]any)
	assert.Equal(t, "1025.49", order["total_amount"])
	assert.Len(t, order["products"], 2)

	resp, body = doJSON(t, srv, http.MethodPost, "/api/orders", `{"customer_id":"123","product_ids":[]}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Invalid customer ID", data(t, body)["message"])

	resp, body = doJSON(t, srv, http.MethodGet, "/api/orders?order_date_gte=2024-02-25&product_name=mouse", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(1), data(t, body)["total_count"])

	resp, _ = doJSON(t, srv, http.MethodGet, "/api/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, body = doJSON(t, srv, http.MethodGet, "/api/orders/12345", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", body["error"].(map[string]any)["type"])
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", body["error"].(map[string]any)["type"])
}
