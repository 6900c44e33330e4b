package middleware

import (
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/tim/chat-echo/internal/metrics"
)

// NewMetrics records request count and latency per route.  Unmatched
// requests are grouped under the route label "unmatched" to keep the label
// set bounded.  A nil Metrics disables the middleware.
func NewMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
    if m == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)

            route := c.Path()
            if route == "" {
                route = "unmatched"
            }
            status := c.Response().Status
            if err != nil {
                // the error handler has not written yet; report what it will send
                var he *echo.HTTPError
                if errors.As(err, &he) {
                    status = he.Code
                } else {
                    status = http.StatusInternalServerError
                }
            }
            method := c.Request().Method
            m.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
            m.Duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
            return err
        }
    }
}
