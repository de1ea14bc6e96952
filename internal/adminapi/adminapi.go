package adminapi

import (
	"sync"

	"github.com/flasheng/flasheng/internal/app"
	"github.com/flasheng/flasheng/internal/webserver"
	"github.com/labstack/echo/v4"
)

var initOnce sync.Once

// Init registers every admin route with the webserver, once per process
func Init() {
	initOnce.Do(func() {
		registerOrderRoutes()
		registerProductRoutes()
		registerReconcileRoutes()
		registerMetricRoutes()
	})
}

// GetAppContext application context injected by the webserver middleware
func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}
