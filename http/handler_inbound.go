package http

import (
	"fmt"
	"net/http"

	"reservations/entities"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// PostInboundEvent lets a chat gateway push input over HTTP instead of the
// built-in poller.
func (h Handler) PostInboundEvent(c echo.Context) error {
	var ev entities.InboundEvent
	if err := c.Bind(&ev); err != nil {
		return err
	}

	if !lo.Contains(entities.InputKinds, ev.Kind) || ev.Kind == entities.InputTimeout {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported kind %q", ev.Kind))
	}
	if ev.Session.ChatID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "session.chat_id is required")
	}

	if err := h.inbound.Publish(c.Request().Context(), ev); err != nil {
		return fmt.Errorf("could not publish inbound event: %w", err)
	}

	return c.NoContent(http.StatusAccepted)
}
