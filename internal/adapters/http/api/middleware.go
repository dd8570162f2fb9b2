package api

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/okian/intentrank/pkg/logger"
	"github.com/okian/intentrank/pkg/metrics"
)

// MetricsMiddleware records request count and latency per route.
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}
			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			status := c.Response().Status
			metrics.RecordHTTPRequest(endpoint, c.Request().Method, strconv.Itoa(status), time.Since(start).Seconds())
			if status >= 500 {
				metrics.RecordErrorByComponent("http", "server_error")
			}
			return nil
		}
	}
}

// RequestLogger logs one line per request at debug level.
func RequestLogger(l logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			l.Debug(c.Request().Context(), "http request",
				logger.String("method", c.Request().Method),
				logger.String("uri", c.Request().RequestURI),
				logger.Int("status", c.Response().Status),
				logger.Duration("duration", time.Since(start)),
				logger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}
