package http

import (
	"net/http"

	"reservations/observability"

	libHttp "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

func NewHttpRouter(handler Handler) *echo.Echo {
	e := libHttp.NewEcho()

	e.Use(otelecho.Middleware(observability.ServiceName))

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/inbound-events", handler.PostInboundEvent)

	e.GET("/ops/shows", handler.GetShows)
	e.GET("/ops/sessions", handler.GetSessions)
	e.GET("/ops/clients", handler.GetClientRecords)
	e.GET("/ops/holds", handler.GetHolds)
	e.POST("/ops/catalog", handler.PostCatalog)
	e.POST("/ops/catalog/refresh", handler.PostCatalogRefresh)
	e.POST("/ops/clients/resync", handler.PostClientsResync)

	return e
}
