// Package startup prepares the widget engine server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/miqyas/sizecore-go/internal/application/container"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	"github.com/miqyas/sizecore-go/internal/infrastructure/page"
	"github.com/miqyas/sizecore-go/internal/infrastructure/persistence"
	"github.com/miqyas/sizecore-go/internal/presentation/http/server"
	"github.com/miqyas/sizecore-go/pkg/config"
)

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal arrives.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	// Step 1: Build the channeled logger
	loggerConfig := logging.DefaultLoggerConfig()
	loggerConfig.LogDirectory = config.LogDirectory
	loggerConfig.OutputToFile = config.LogToFile
	loggerConfig.JSONFormat = config.LogJSONFormat
	loggerConfig.DefaultLevel = logging.ParseLevel(config.LogDefaultLevel)

	logger, err := logging.NewChanneledLogger(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Startup().Info("Logging initialized",
		"jsonFormat", config.LogJSONFormat, "toFile", config.LogToFile)

	// Step 2: Open the durable result cache
	var resultCache *persistence.ResultCache
	if config.CacheDSN != "" {
		db, err := persistence.NewConnection(config.CacheDriver, config.CacheDSN, config.CacheAuthToken, logger)
		if err != nil {
			return fmt.Errorf("failed to open result cache: %w", err)
		}
		defer db.Close()

		resultCache, err = persistence.NewResultCache(db, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize result cache: %w", err)
		}
		logger.Startup().Info("Result cache ready", "driver", config.CacheDriver)
	} else {
		logger.Startup().Warn("No cache DSN configured, results will not survive restarts")
	}

	// Step 3: Create dependency injection container
	appContainer := container.NewContainer(logger, resultCache)
	logger.Startup().Info("Dependency injection container created")

	// Step 4: Optional page snapshot watcher
	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	if config.PageSnapshotWatch && config.PageSnapshotPath != "" {
		watcher, err := page.NewSnapshotWatcher(config.PageSnapshotPath, logger)
		if err != nil {
			logger.Startup().Error("Snapshot watcher failed to start",
				"path", config.PageSnapshotPath, "error", err.Error())
		} else {
			defer watcher.Close()
			go relaySnapshotSignals(ctx, watcher, appContainer)
			logger.Startup().Info("Watching page snapshot", "path", config.PageSnapshotPath)
		}
	}

	// Step 5: Start HTTP server
	httpServer := server.New(config.Port, appContainer)
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Widget engine startup complete",
		"totalDuration", time.Since(start),
		"storeId", config.StoreID,
		"port", config.Port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	shutdownStart := time.Now()

	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}

	appContainer.Coordinator.Shutdown()
	appContainer.Injector.Close()

	logger.Shutdown().Info("Widget engine shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	return nil
}

// relaySnapshotSignals reparses the snapshot file on each mutation signal
// and feeds the injection controller, mirroring what the live page observer
// does on DOM changes.
func relaySnapshotSignals(ctx context.Context, watcher *page.SnapshotWatcher, c *container.Container) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal, ok := <-watcher.Signals():
			if !ok {
				return
			}
			raw, err := os.ReadFile(config.PageSnapshotPath)
			if err != nil {
				c.Logger.Inject().Warn("Snapshot read failed", "error", err.Error())
				continue
			}
			doc, err := page.ParseDocumentString(string(raw))
			if err != nil {
				c.Logger.Inject().Warn("Snapshot parse failed", "error", err.Error())
				continue
			}
			pageCtx := page.NewContext(c.PageState.URL(), "", doc, c.SessionScope)
			if current := c.PageState.Current(); current != nil {
				pageCtx.Viewport = current.Viewport
			}
			c.PageState.Set(pageCtx)
			c.Injector.Observe(signal, pageCtx)
		}
	}
}

// setupLogging configures process-level logging and loads .env overrides.
func setupLogging() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment overrides from .env")
	}
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
