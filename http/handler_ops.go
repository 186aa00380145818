package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reservations/entities"
	"reservations/migrations"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

func (h Handler) GetShows(c echo.Context) error {
	from := time.Now()
	if date := c.QueryParam("from"); date != "" {
		parsed, err := time.Parse(entities.DateKeyLayout, date)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		}
		from = parsed
	}

	shows, err := h.inventory.ListShows(c.Request().Context(), from)
	if err != nil {
		return fmt.Errorf("failed listing shows: %w", err)
	}

	return c.JSON(http.StatusOK, shows)
}

func (h Handler) GetSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.Sessions())
}

// GetClientRecords lists client records, optionally narrowed to one show
// by show_id or by any of name, date and time.
func (h Handler) GetClientRecords(c echo.Context) error {
	var showID int
	if raw := c.QueryParam("show_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid show_id")
		}
		showID = id
	}

	date := c.QueryParam("date")
	if date != "" {
		if _, err := time.Parse(entities.DateKeyLayout, date); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
	}
	name := c.QueryParam("name")
	showTime := c.QueryParam("time")

	records, err := h.inventory.ListClientRecords(c.Request().Context())
	if err != nil {
		return fmt.Errorf("failed listing client records: %w", err)
	}

	records = lo.Filter(records, func(record entities.ClientRecord, _ int) bool {
		return (showID == 0 || record.ShowID == showID) &&
			(name == "" || strings.EqualFold(record.ShowName, name)) &&
			(date == "" || record.ShowDate == date) &&
			(showTime == "" || record.ShowTime == showTime)
	})

	return c.JSON(http.StatusOK, records)
}

func (h Handler) GetHolds(c echo.Context) error {
	holds, err := h.inventory.ListActiveHolds(c.Request().Context())
	if err != nil {
		return fmt.Errorf("failed listing holds: %w", err)
	}

	return c.JSON(http.StatusOK, holds)
}

type catalogRequest struct {
	Shows   []entities.Show        `json:"shows"`
	Options []entities.PriceOption `json:"options"`
}

func (h Handler) PostCatalog(c echo.Context) error {
	var req catalogRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	for _, show := range req.Shows {
		if show.Name == "" || show.Time == "" || !show.SeatsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid show %q", show.Name))
		}
	}

	err := h.commandBus.Send(c.Request().Context(), &entities.ImportCatalog_v1{
		Header:  entities.NewEventHeader(),
		Shows:   req.Shows,
		Options: req.Options,
	})
	if err != nil {
		return fmt.Errorf("failed to send ImportCatalog command: %w", err)
	}

	return c.NoContent(http.StatusAccepted)
}

func (h Handler) PostCatalogRefresh(c echo.Context) error {
	err := h.commandBus.Send(c.Request().Context(), &entities.RefreshCatalog_v1{
		Header: entities.NewEventHeader(),
	})
	if err != nil {
		return fmt.Errorf("failed to send RefreshCatalog command: %w", err)
	}

	return c.NoContent(http.StatusAccepted)
}

func (h Handler) PostClientsResync(c echo.Context) error {
	count, err := migrations.ResyncClientsSheet(c.Request().Context(), h.inventory, h.spreadsheets, h.clientsSheet)
	if err != nil {
		return fmt.Errorf("failed to resync clients sheet: %w", err)
	}

	return c.JSON(http.StatusOK, map[string]int{"rows": count})
}
