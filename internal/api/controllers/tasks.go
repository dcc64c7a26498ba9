package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/queue"
	"github.com/fetchq/fetchq/internal/task"
)

// TasksController exposes the task queue over HTTP.
type TasksController struct {
	Queue  *queue.Manager
	Engine engine.Client
}

type idsPayload struct {
	IDs []uuid.UUID `json:"ids"`
}

// HandleAdd submits a new download.
func (ctrl *TasksController) HandleAdd(c *echo.Context) error {
	var req task.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	id, err := ctrl.Queue.Add(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]string{"id": id.String()})
}

// HandleList returns every tracked task, oldest first.
func (ctrl *TasksController) HandleList(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.Queue.Tasks())
}

// HandleGet returns one task.
func (ctrl *TasksController) HandleGet(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed task id"})
	}

	t, err := ctrl.Queue.Task(id)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, t)
}

// HandleCommand dispatches a single-task lifecycle command.
func (ctrl *TasksController) HandleCommand(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed task id"})
	}

	ctx := c.Request().Context()

	switch c.Param("command") {
	case "pause":
		err = ctrl.Queue.Pause(ctx, id)
	case "resume":
		err = ctrl.Queue.Resume(ctx, id)
	case "cancel":
		err = ctrl.Queue.Cancel(ctx, id)
	case "retry":
		err = ctrl.Queue.Retry(ctx, id)
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown command"})
	}

	if err != nil {
		return fail(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRemove deletes a task in any state.
func (ctrl *TasksController) HandleRemove(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed task id"})
	}

	if err := ctrl.Queue.Remove(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandlePriority reorders a task within the admission queue.
func (ctrl *TasksController) HandlePriority(c *echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed task id"})
	}

	var payload struct {
		Priority int `json:"priority"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	if err := ctrl.Queue.SetPriority(c.Request().Context(), id, payload.Priority); err != nil {
		return fail(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleQueueCommand dispatches a queue-wide command and reports how many
// tasks it acted on.
func (ctrl *TasksController) HandleQueueCommand(c *echo.Context) error {
	ctx := c.Request().Context()

	var count int
	var err error

	switch c.Param("command") {
	case "pause":
		count, err = ctrl.Queue.PauseAll(ctx)
	case "resume":
		count, err = ctrl.Queue.ResumeAll(ctx)
	case "cancel":
		count, err = ctrl.Queue.CancelAll(ctx)
	case "clear-finished":
		count, err = ctrl.Queue.ClearFinished(ctx)
	case "retry-failed":
		count, err = ctrl.Queue.RetryFailed(ctx)
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown command"})
	}

	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, countResponse{Count: count})
}

// HandleBatchCommand runs a per-task command over an explicit id list, or
// over the current selection when the list is empty.
func (ctrl *TasksController) HandleBatchCommand(c *echo.Context) error {
	var payload idsPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	ctx := c.Request().Context()

	var count int
	var err error

	switch c.Param("command") {
	case "pause":
		count, err = ctrl.Queue.PauseMany(ctx, payload.IDs)
	case "resume":
		count, err = ctrl.Queue.ResumeMany(ctx, payload.IDs)
	case "cancel":
		count, err = ctrl.Queue.CancelMany(ctx, payload.IDs)
	case "remove":
		count, err = ctrl.Queue.RemoveMany(ctx, payload.IDs)
	case "retry":
		count, err = ctrl.Queue.RetryMany(ctx, payload.IDs)
	default:
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown command"})
	}

	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, countResponse{Count: count})
}

// HandleSelect replaces the working selection used by batch commands.
func (ctrl *TasksController) HandleSelect(c *echo.Context) error {
	var payload idsPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	ctrl.Queue.Select(payload.IDs...)
	return c.NoContent(http.StatusNoContent)
}

// HandleStats returns queue-wide aggregates.
func (ctrl *TasksController) HandleStats(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.Queue.Stats())
}

// HandleVerifyChecksum asks the engine to check a file against an expected
// checksum.
func (ctrl *TasksController) HandleVerifyChecksum(c *echo.Context) error {
	var payload struct {
		Path     string `json:"path"`
		Checksum string `json:"checksum"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	valid, err := ctrl.Engine.VerifyFile(c.Request().Context(), payload.Path, payload.Checksum)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"valid": valid})
}

// HandleCalculateChecksum asks the engine to hash a file.
func (ctrl *TasksController) HandleCalculateChecksum(c *echo.Context) error {
	var payload struct {
		Path string `json:"path"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}

	sum, err := ctrl.Engine.CalculateChecksum(c.Request().Context(), payload.Path)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"checksum": sum})
}
