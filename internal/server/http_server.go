package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	adminecho "go.pilab.hu/oidcstore/api/echo"
	"go.pilab.hu/oidcstore/config"
	"go.pilab.hu/oidcstore/log"
	adminmw "go.pilab.hu/oidcstore/middleware"
)

// NewHTTPServer creates the admin HTTP server.
func NewHTTPServer(cfg *config.Config, appLogger log.Logger, adminAPI *adminecho.AdminAPI) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	// Request logging through our logger interface
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := map[string]interface{}{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": c.Request().UserAgent(),
			}
			if err != nil {
				appLogger.Error(c.Request().Context(), "HTTP Request", err, fields)
			} else {
				appLogger.Debug(c.Request().Context(), "HTTP Request", fields)
			}
			return nil
		}
	})

	if cfg.AdminRateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.AdminRateLimit))))
	}
	e.Use(adminmw.AdminAuth(cfg.AdminToken))

	adminAPI.RegisterRoutes(e)

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(e, cfg.OtelServiceName),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
