package main

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ov-collective/ovgo/pkg/ovmetrics"
)

// serveDebug runs a small echo-based HTTP server exposing the process's
// Prometheus metrics at /metrics, separate from the hand-rolled core
// reactor (this is ancillary tooling, not protocol-critical).
func serveDebug(m *ovmetrics.Metrics, addr string, logger *slog.Logger) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	if err := e.Start(addr); err != nil {
		logger.Warn("debug server stopped", "addr", addr, "err", err)
	}
}
