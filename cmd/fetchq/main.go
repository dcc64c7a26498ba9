package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/fetchq/fetchq/internal/api"
	"github.com/fetchq/fetchq/internal/config"
	"github.com/fetchq/fetchq/internal/engine"
	"github.com/fetchq/fetchq/internal/history"
	"github.com/fetchq/fetchq/internal/logger"
	"github.com/fetchq/fetchq/internal/queue"
	"github.com/fetchq/fetchq/internal/repository"
	"github.com/fetchq/fetchq/internal/settings"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "fetchq",
		Short:        "Download queue manager for a transfer engine daemon",
		SilenceUsage: true,
	}

	var debug bool
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue manager and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(debug)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serve, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(debug bool) error {
	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v\n", err)
	}

	err = logger.InitLogging(debug || cfg.Log.Debug, cfg.Log.Path)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	repo, err := repository.NewBboltRepository(cfg.Queue.DBPath)
	if err != nil {
		log.Fatalf("Error opening queue snapshot database: %v\n", err)
	}
	defer repo.Close()

	hist, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		log.Fatalf("Error opening history database: %v\n", err)
	}
	defer hist.Close()

	client := engine.NewHTTPClient(cfg.Engine.Addr, cfg.Engine.EventBuffer)

	store := queue.NewStore()

	// Warm-start from the last snapshot so the queue is visible before
	// the engine answers.
	if snapshot, err := repo.FindAll(); err != nil {
		logger.Warnf("Failed to load queue snapshot: %v", err)
	} else if len(snapshot) > 0 {
		store.ReplaceAll(snapshot)
		logger.Infof("Restored %d tasks from snapshot", len(snapshot))
	}

	reconciler := queue.NewReconciler(store, client, hist, repo)
	manager := queue.NewManager(store, client, reconciler, repo)

	ctrl := settings.NewController(client, cfg.Queue.SpeedLimitBPS, cfg.Queue.MaxConcurrent, func(speedLimitBPS int64, maxConcurrent int) error {
		cfg.Queue.SpeedLimitBPS = speedLimitBPS
		cfg.Queue.MaxConcurrent = maxConcurrent
		return config.Save(cfg)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Apply(ctx); err != nil {
		logger.Warnf("Failed to apply settings to engine: %v", err)
	}

	reconciler.Refresh(ctx)

	go func() {
		if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("Event reconciler stopped: %v", err)
		}
	}()

	// Prune old history at startup and then once per day. A non-positive
	// retention disables the sweep entirely.
	go hist.RunRetentionSweep(ctx, cfg.History.RetentionDays, 24*time.Hour)

	e := echo.New()

	api.RegisterRoutes(e, api.Deps{
		Queue:    manager,
		Engine:   client,
		History:  hist,
		Settings: ctrl,
	})

	srv := &http.Server{Addr: cfg.API.ListenAddr, Handler: e}

	go func() {
		logger.Infof("Listening on %s", cfg.API.ListenAddr)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during HTTP shutdown: %v", err)
	}

	logger.Infof("Shutdown complete.")
	return nil
}
