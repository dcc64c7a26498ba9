package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/settings"
	"github.com/fetchq/fetchq/internal/task"
)

type errorResponse struct {
	Error string `json:"error"`
}

type countResponse struct {
	Count int `json:"count"`
}

// fail maps the error taxonomy onto HTTP statuses: bad input is the
// caller's fault, a missing task is 404, and an unreachable engine is a
// 503 the caller should retry.
func fail(c *echo.Context, err error) error {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, task.ErrInvalidRequest), errors.Is(err, settings.ErrInvalidSetting):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, errorResponse{Error: err.Error()})
}
