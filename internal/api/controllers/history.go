package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/fetchq/fetchq/internal/history"
)

// HistoryController exposes the finished-download log over HTTP.
type HistoryController struct {
	History *history.Store
}

// HandleList returns history records, newest first. The optional limit
// query parameter caps the result.
func (ctrl *HistoryController) HandleList(c *echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed limit"})
		}
		limit = n
	}

	records, err := ctrl.History.List(c.Request().Context(), limit)
	if err != nil {
		return fail(c, err)
	}

	if records == nil {
		records = []history.Record{}
	}

	return c.JSON(http.StatusOK, records)
}

// HandleSearch filters records by filename or URL, case-insensitively.
func (ctrl *HistoryController) HandleSearch(c *echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "missing query"})
	}

	records, err := ctrl.History.Search(c.Request().Context(), query)
	if err != nil {
		return fail(c, err)
	}

	if records == nil {
		records = []history.Record{}
	}

	return c.JSON(http.StatusOK, records)
}

// HandleRemove deletes one record.
func (ctrl *HistoryController) HandleRemove(c *echo.Context) error {
	removed, err := ctrl.History.Remove(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}

	if !removed {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "history record not found"})
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleClear prunes records older than olderThanDays; without the
// parameter it clears the whole log.
func (ctrl *HistoryController) HandleClear(c *echo.Context) error {
	days := 0
	if raw := c.QueryParam("olderThanDays"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed olderThanDays"})
		}
		days = n
	}

	count, err := ctrl.History.Clear(c.Request().Context(), days)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, countResponse{Count: count})
}

// HandleStats aggregates the whole log.
func (ctrl *HistoryController) HandleStats(c *echo.Context) error {
	stats, err := ctrl.History.Stats(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, stats)
}
