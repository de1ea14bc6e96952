package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/flasheng/flasheng/internal/webserver"
	"github.com/flasheng/flasheng/pkg/metrics"
	"github.com/labstack/echo/v4"
)

var knownMetrics = map[string]bool{
	metrics.OrdersPlaced:        true,
	metrics.OrdersPlacedAtomic:  true,
	metrics.OrdersFailed:        true,
	metrics.OrdersPartialCommit: true,
	metrics.OrdersStatusChanged: true,
	metrics.ReconcilePending:    true,
	metrics.RevenueCentsPlaced:  true,
	metrics.ProcessCPU:          true,
	metrics.ProcessMem:          true,
}

// metricPoint Time is unix milliseconds
type metricPoint struct {
	Time  int64 `json:"time"`
	Value int64 `json:"value"`
}

func registerMetricRoutes() {
	webserver.ApiGET("/orders/metrics/:name", metricHistory)
}

// metricHistory recorded points of one metric over the last hours (default 24)
func metricHistory(c echo.Context) error {
	name := c.Param("name")
	if !knownMetrics[name] {
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Unknown metric "+name, nil)
	}
	hours, err := strconv.Atoi(c.QueryParam("hours"))
	if err != nil || hours <= 0 || hours > 24*7 {
		hours = 24
	}
	end := time.Now()
	points, err := metrics.Query(name, end.Add(-time.Duration(hours)*time.Hour), end.Add(time.Second))
	if err != nil {
		return failFromError(c, err)
	}
	out := make([]metricPoint, 0, len(points))
	for _, p := range points {
		out = append(out, metricPoint{Time: time.Unix(0, p.Timestamp).UnixMilli(), Value: int64(p.Value)})
	}
	return ok(c, out)
}
