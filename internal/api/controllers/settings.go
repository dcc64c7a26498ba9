package controllers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/fetchq/fetchq/internal/settings"
)

// SettingsController exposes the queue-wide tunables over HTTP.
type SettingsController struct {
	Settings *settings.Controller
}

type settingsView struct {
	SpeedLimitBPS int64 `json:"speedLimitBytesPerSec"`
	MaxConcurrent int   `json:"maxConcurrent"`
}

// HandleGet returns the committed settings.
func (ctrl *SettingsController) HandleGet(c *echo.Context) error {
	return c.JSON(http.StatusOK, settingsView{
		SpeedLimitBPS: ctrl.Settings.SpeedLimit(),
		MaxConcurrent: ctrl.Settings.MaxConcurrent(),
	})
}

// HandleSpeedLimit applies a new speed limit; 0 lifts it.
func (ctrl *SettingsController) HandleSpeedLimit(c *echo.Context) error {
	var payload struct {
		SpeedLimitBPS int64 `json:"speedLimitBytesPerSec"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	if err := ctrl.Settings.SetSpeedLimit(c.Request().Context(), payload.SpeedLimitBPS); err != nil {
		return fail(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleMaxConcurrent applies a new concurrency cap.
func (ctrl *SettingsController) HandleMaxConcurrent(c *echo.Context) error {
	var payload struct {
		MaxConcurrent int `json:"maxConcurrent"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	if err := ctrl.Settings.SetMaxConcurrent(c.Request().Context(), payload.MaxConcurrent); err != nil {
		return fail(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}
