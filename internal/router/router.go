package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/tim/chat-echo/internal/handler" // import the handlers that answer requests
	"github.com/tim/chat-echo/internal/metrics" // import the Prometheus registry served on /metrics
)

// RegisterRoutes registers the public API on the provided Echo instance:
// a status endpoint at the root and the chat echo endpoint.  Any other
// path or method falls through to Echo's default 404/405 handling.
func RegisterRoutes(e *echo.Echo, chat *handler.ChatHandler) {
	// Map GET / to the Status handler.  Clients use it to check that the
	// server is running.
	e.GET("/", handler.Status)
	// Map POST /chat to the echo handler, which replies with a canned
	// sentence embedding the submitted message.
	e.POST("/chat", chat.Chat)
}

// RegisterMetrics exposes the Prometheus registry at GET /metrics.  It is
// only called when metrics are enabled so the default route table stays at
// the two public endpoints.
func RegisterMetrics(e *echo.Echo, m *metrics.Metrics) {
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}
