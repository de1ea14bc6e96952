package adminapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/flasheng/flasheng/internal/domain"
	"github.com/flasheng/flasheng/internal/order"
	"github.com/flasheng/flasheng/internal/webserver"
	"github.com/flasheng/flasheng/pkg/metrics"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
)

type orderItemPayload struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// orderPayload item rules are enforced by the order service so the
// caller sees the same messages on every entry point
type orderPayload struct {
	UserID int64              `json:"user_id"`
	Items  []orderItemPayload `json:"items" validate:"max=100"`
}

func (p orderPayload) request() order.PlaceOrderRequest {
	items := make([]domain.ItemRequest, len(p.Items))
	for i, it := range p.Items {
		items[i] = domain.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return order.PlaceOrderRequest{UserID: p.UserID, Items: items}
}

type statusPayload struct {
	Status string `json:"status"`
}

type paymentPayload struct {
	Method string `json:"method" validate:"required,max=50"`
}

// registerOrderRoutes registers order endpoints
func registerOrderRoutes() {
	webserver.ApiGET("/orders", ListOrders)
	webserver.ApiGET("/orders/export", ExportOrders)
	webserver.ApiGET("/orders/stats", OrderStats)
	webserver.ApiGET("/orders/user/:userId", ListUserOrders)
	webserver.ApiGET("/orders/:id", GetOrder)
	webserver.ApiPOST("/orders", CreateOrder)
	webserver.ApiPOST("/orders/transactional", CreateOrderTransactional)
	webserver.ApiPATCH("/orders/:id/status", UpdateOrderStatus)
	webserver.ApiPOST("/orders/:id/payment", RecordPayment)
	webserver.ApiDELETE("/orders/:id", DeleteOrder)
}

// dateRange optional from/to query bounds, both inclusive
type dateRange struct {
	from, to time.Time
}

func parseDateRange(c echo.Context) (dateRange, error) {
	var r dateRange
	for name, dst := range map[string]*time.Time{"from": &r.from, "to": &r.to} {
		v := strings.TrimSpace(c.QueryParam(name))
		if v == "" {
			continue
		}
		t, err := dateparse.ParseIn(v, time.Local)
		if err != nil {
			return r, domain.NewValidationError("invalid %s date %q", name, v)
		}
		*dst = t
	}
	if !r.from.IsZero() && !r.to.IsZero() && r.to.Before(r.from) {
		return r, domain.NewValidationError("to must not be before from")
	}
	return r, nil
}

func (r dateRange) contains(t time.Time) bool {
	if !r.from.IsZero() && t.Before(r.from) {
		return false
	}
	if !r.to.IsZero() && t.After(r.to) {
		return false
	}
	return true
}

func filterOrders(rows []domain.Order, r dateRange) []domain.Order {
	out := rows[:0:0]
	for _, o := range rows {
		if r.contains(o.CreatedAt) {
			out = append(out, o)
		}
	}
	return out
}

// ListOrders lists orders newest first
// @Summary list orders
// @Tags Orders
// @Param from query string false "Created at or after"
// @Param to query string false "Created at or before"
// @Param page query int false "Page number"
// @Param pageSize query int false "Items per page"
// @Success 200 {object} ListResponse
// @Router /api/v1/orders [get]
func ListOrders(c echo.Context) error {
	r, err := parseDateRange(c)
	if err != nil {
		return failFromError(c, err)
	}
	rows, err := GetAppContext(c).OrderService().ListOrders(c.Request().Context())
	if err != nil {
		return failFromError(c, err)
	}
	rows = filterOrders(rows, r)
	page, pageSize := parsePagination(c)
	return paged(c, pageOf(rows, page, pageSize), int64(len(rows)), page, pageSize)
}

func GetOrder(c echo.Context) error {
	id, valid := parseIDParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	o, err := GetAppContext(c).OrderService().GetOrder(c.Request().Context(), id)
	if err != nil {
		return failFromError(c, err)
	}
	return ok(c, o)
}

func ListUserOrders(c echo.Context) error {
	userID, valid := parseIDParam(c, "userId")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid user ID", nil)
	}
	rows, err := GetAppContext(c).OrderService().GetUserOrders(c.Request().Context(), userID)
	if err != nil {
		return failFromError(c, err)
	}
	return ok(c, rows)
}

func placed(c echo.Context, id int64) error {
	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("%s/orders/%d", webserver.ApiPrefix, id))
	return c.JSON(http.StatusCreated, map[string]int64{"id": id})
}

// CreateOrder places an order over the partitioned stores
// @Summary place an order
// @Tags Orders
// @Success 201 {object} map[string]int64
// @Failure 500 {object} ErrorResponse "RECONCILIATION_REQUIRED on a partial commit"
// @Router /api/v1/orders [post]
func CreateOrder(c echo.Context) error {
	var payload orderPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return failFromError(c, err)
	}
	id, err := GetAppContext(c).OrderService().PlaceOrder(c.Request().Context(), payload.request())
	if err != nil {
		return failFromError(c, err)
	}
	return placed(c, id)
}

// CreateOrderTransactional places an order in a single native transaction
// @Router /api/v1/orders/transactional [post]
func CreateOrderTransactional(c echo.Context) error {
	var payload orderPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return failFromError(c, err)
	}
	id, err := GetAppContext(c).OrderService().PlaceOrderAtomic(c.Request().Context(), payload.request())
	if err != nil {
		return failFromError(c, err)
	}
	return placed(c, id)
}

func UpdateOrderStatus(c echo.Context) error {
	id, valid := parseIDParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload statusPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return failFromError(c, err)
	}
	if _, err := GetAppContext(c).OrderService().UpdateStatus(c.Request().Context(), id, payload.Status); err != nil {
		return failFromError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func RecordPayment(c echo.Context) error {
	id, valid := parseIDParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	var payload paymentPayload
	if err := bindAndValidate(c, &payload); err != nil {
		return failFromError(c, err)
	}
	o, err := GetAppContext(c).OrderService().RecordPayment(c.Request().Context(), id, strings.TrimSpace(payload.Method))
	if err != nil {
		return failFromError(c, err)
	}
	return ok(c, o)
}

func DeleteOrder(c echo.Context) error {
	id, valid := parseIDParam(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid order ID", nil)
	}
	if err := GetAppContext(c).OrderService().DeleteOrder(c.Request().Context(), id); err != nil {
		return failFromError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type orderCSV struct {
	ID        int64  `csv:"order_id"`
	UserID    int64  `csv:"user_id"`
	Status    string `csv:"status"`
	Items     int    `csv:"items"`
	Total     string `csv:"total_amount"`
	Paid      string `csv:"paid_at"`
	CreatedAt string `csv:"created_at"`
}

// ExportOrders writes the filtered order list as CSV
func ExportOrders(c echo.Context) error {
	r, err := parseDateRange(c)
	if err != nil {
		return failFromError(c, err)
	}
	rows, err := GetAppContext(c).OrderService().ListOrders(c.Request().Context())
	if err != nil {
		return failFromError(c, err)
	}
	rows = filterOrders(rows, r)

	records := make([]*orderCSV, 0, len(rows))
	for _, o := range rows {
		rec := &orderCSV{
			ID:        o.ID,
			UserID:    o.UserID,
			Status:    string(o.Status),
			Items:     len(o.Items),
			Total:     o.TotalAmount.StringFixed(2),
			CreatedAt: o.CreatedAt.Format(time.RFC3339),
		}
		if o.Payment != nil {
			rec.Paid = o.Payment.PaidAt.Format(time.RFC3339)
		}
		records = append(records, rec)
	}

	filename := fmt.Sprintf("orders-%s.csv", time.Now().Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	c.Response().WriteHeader(http.StatusOK)
	return gocsv.Marshal(records, c.Response())
}

type orderStatsResponse struct {
	Count    int              `json:"count"`
	ByStatus map[string]int   `json:"by_status"`
	Sum      string           `json:"sum"`
	Mean     string           `json:"mean"`
	Median   string           `json:"median"`
	P90      string           `json:"p90"`
	Metrics  map[string]int64 `json:"metrics"`
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// OrderStats order value statistics and the live order counters
func OrderStats(c echo.Context) error {
	r, err := parseDateRange(c)
	if err != nil {
		return failFromError(c, err)
	}
	rows, err := GetAppContext(c).OrderService().ListOrders(c.Request().Context())
	if err != nil {
		return failFromError(c, err)
	}
	rows = filterOrders(rows, r)

	resp := orderStatsResponse{
		Count:    len(rows),
		ByStatus: make(map[string]int),
		Sum:      "0.00",
		Mean:     "0.00",
		Median:   "0.00",
		P90:      "0.00",
		Metrics:  metrics.Snapshot(),
	}
	sum := decimal.Zero
	totals := make(stats.Float64Data, 0, len(rows))
	for _, o := range rows {
		resp.ByStatus[string(o.Status)]++
		sum = sum.Add(o.TotalAmount)
		totals = append(totals, o.TotalAmount.InexactFloat64())
	}
	resp.Sum = sum.StringFixed(2)
	if len(totals) > 0 {
		if mean, err := totals.Mean(); err == nil {
			resp.Mean = fixed(mean)
		}
		if median, err := totals.Median(); err == nil {
			resp.Median = fixed(median)
		}
		if p90, err := totals.Percentile(90); err == nil {
			resp.P90 = fixed(p90)
		}
	}
	return ok(c, resp)
}
