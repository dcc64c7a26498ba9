// Package api wires the HTTP surface: task queue, history, and settings
// endpoints served by echo.
package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/fetchq/fetchq/internal/api/controllers"
	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/history"
	"github.com/fetchq/fetchq/internal/logger"
	"github.com/fetchq/fetchq/internal/queue"
	"github.com/fetchq/fetchq/internal/settings"
)

// Deps carries everything the handlers need.
type Deps struct {
	Queue    *queue.Manager
	Engine   engine.Client
	History  *history.Store
	Settings *settings.Controller
}

func RegisterRoutes(e *echo.Echo, deps Deps) {
	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			logger.Infof("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	tasksCtrl := &controllers.TasksController{Queue: deps.Queue, Engine: deps.Engine}
	historyCtrl := &controllers.HistoryController{History: deps.History}
	settingsCtrl := &controllers.SettingsController{Settings: deps.Settings}

	// Task queue
	e.POST("/api/tasks", tasksCtrl.HandleAdd)
	e.GET("/api/tasks", tasksCtrl.HandleList)
	e.GET("/api/tasks/:id", tasksCtrl.HandleGet)
	e.DELETE("/api/tasks/:id", tasksCtrl.HandleRemove)
	e.POST("/api/tasks/:id/:command", tasksCtrl.HandleCommand)
	e.PUT("/api/tasks/:id/priority", tasksCtrl.HandlePriority)

	// Queue-wide and batch commands
	e.POST("/api/queue/:command", tasksCtrl.HandleQueueCommand)
	e.POST("/api/batch/:command", tasksCtrl.HandleBatchCommand)
	e.PUT("/api/selection", tasksCtrl.HandleSelect)
	e.GET("/api/stats", tasksCtrl.HandleStats)

	// Checksum pass-through to the engine
	e.POST("/api/checksum/verify", tasksCtrl.HandleVerifyChecksum)
	e.POST("/api/checksum/calculate", tasksCtrl.HandleCalculateChecksum)

	// History
	e.GET("/api/history", historyCtrl.HandleList)
	e.GET("/api/history/search", historyCtrl.HandleSearch)
	e.GET("/api/history/stats", historyCtrl.HandleStats)
	e.DELETE("/api/history", historyCtrl.HandleClear)
	e.DELETE("/api/history/:id", historyCtrl.HandleRemove)

	// Settings
	e.GET("/api/settings", settingsCtrl.HandleGet)
	e.PUT("/api/settings/speed-limit", settingsCtrl.HandleSpeedLimit)
	e.PUT("/api/settings/max-concurrent", settingsCtrl.HandleMaxConcurrent)
}
