package webserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/flasheng/flasheng/config"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	ApiPrefix = "/api/v1"
	// AppContextKey echo context key of the application context
	AppContextKey = "appCtx"
)

type route struct {
	method  string
	path    string
	handler echo.HandlerFunc
}

var (
	routesMu  sync.Mutex
	apiRoutes []route
)

func addRoute(method, path string, h echo.HandlerFunc) {
	routesMu.Lock()
	defer routesMu.Unlock()
	apiRoutes = append(apiRoutes, route{method: method, path: path, handler: h})
}

// ApiGET registers a GET handler under ApiPrefix
func ApiGET(path string, h echo.HandlerFunc) {
	addRoute(http.MethodGet, path, h)
}

func ApiPOST(path string, h echo.HandlerFunc) {
	addRoute(http.MethodPost, path, h)
}

func ApiPUT(path string, h echo.HandlerFunc) {
	addRoute(http.MethodPut, path, h)
}

func ApiPATCH(path string, h echo.HandlerFunc) {
	addRoute(http.MethodPatch, path, h)
}

func ApiDELETE(path string, h echo.HandlerFunc) {
	addRoute(http.MethodDelete, path, h)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONSerializer echo serializer backed by jsoniter
type JSONSerializer struct{}

func (JSONSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (JSONSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err)).SetInternal(err)
	}
	return nil
}

// Validator adapts go-playground/validator to echo
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

type AdminServer struct {
	root *echo.Echo
	addr string
}

// NewAdminServer builds the echo server and mounts every registered route.
// appCtx is handed to handlers through the AppContextKey context value.
func NewAdminServer(cfg *config.AppConfig, appCtx interface{}) *AdminServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("namespace", "http"),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			if v.Status >= http.StatusInternalServerError {
				zap.L().Error("request", fields...)
			} else if cfg.System.Debug {
				zap.L().Debug("request", fields...)
			}
			return nil
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(AppContextKey, appCtx)
			return next(c)
		}
	})

	api := e.Group(ApiPrefix)
	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	routesMu.Lock()
	for _, r := range apiRoutes {
		api.Add(r.method, r.path, r.handler)
	}
	routesMu.Unlock()

	return &AdminServer{
		root: e,
		addr: fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
	}
}

func (s *AdminServer) Handler() http.Handler {
	return s.root
}

// Start blocks until the server stops. A graceful shutdown returns nil.
func (s *AdminServer) Start() error {
	zap.L().Info("admin server listening", zap.String("namespace", "http"), zap.String("addr", s.addr))
	if err := s.root.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "admin server")
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.root.Shutdown(ctx)
}
