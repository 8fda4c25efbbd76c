// Package main is the entry point for the hive daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hive-dev/hive/internal/common/config"
	"github.com/hive-dev/hive/internal/common/httpmw"
	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/db"
	"github.com/hive-dev/hive/internal/engine"
	"github.com/hive-dev/hive/internal/events"
	"github.com/hive-dev/hive/internal/gateway/websocket"
	"github.com/hive-dev/hive/internal/session/api"
	"github.com/hive-dev/hive/internal/session/approval"
	"github.com/hive-dev/hive/internal/session/manager"
	"github.com/hive-dev/hive/internal/session/repository"
	"github.com/hive-dev/hive/internal/tracing"
)

const serverName = "hived"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logCfg := logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting hive daemon...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Open SQLite and run migrations
	writeDB, err := db.OpenSQLite(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer writeDB.Close()

	if err := db.Migrate(ctx, writeDB); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	readDB, err := db.OpenSQLiteReader(cfg.Database.Path, cfg.Database.MaxReaders)
	if err != nil {
		log.Fatal("Failed to open database reader", zap.Error(err))
	}
	defer readDB.Close()
	log.Info("Database ready", zap.String("path", cfg.Database.Path))

	// 5. Event bus: NATS when configured, in-memory otherwise
	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer busCleanup()

	// 6. Resolve the engine profile
	registry, err := engine.LoadRegistry(cfg.Engine.ProfilesPath)
	if err != nil {
		log.Fatal("Failed to load engine profiles", zap.Error(err))
	}
	profile, err := registry.Get(cfg.Engine.Profile)
	if err != nil {
		log.Fatal("Unknown engine profile",
			zap.String("profile", cfg.Engine.Profile),
			zap.Strings("available", registry.Names()),
			zap.Error(err))
	}
	eng := engine.NewCLIEngine(profile, cfg.Engine.InitTimeoutDuration(), log)
	log.Info("Engine profile loaded", zap.String("profile", profile.Name))

	// 7. Session manager over the durable stores
	repo := repository.NewSQLiteStore(writeDB)
	approvals := approval.NewSQLiteStore(writeDB)
	mgr := manager.New(repo, approvals, eng, providedBus.Bus, log)

	// 8. WebSocket hub bridged to the event bus
	wsHub := websocket.NewHub(log)
	go wsHub.Run(ctx)

	bridge := websocket.NewBridge(wsHub, providedBus.Bus, log)
	if err := bridge.Start(); err != nil {
		log.Fatal("Failed to start event bridge", zap.Error(err))
	}
	defer bridge.Stop()

	// 9. HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestLogger(log, serverName))
	if cfg.Tracing.Enabled {
		router.Use(httpmw.OtelTracing(serverName))
	}

	// 10. Register API and WebSocket routes
	v1 := router.Group("/api/v1")
	api.SetupRoutes(v1, mgr, log)

	wsHandler := websocket.NewWSHandler(wsHub, mgr, log)
	websocket.SetupWebSocketRoutes(v1, wsHandler)

	// 11. Health check endpoint, read pool backed
	router.GET("/health", func(c *gin.Context) {
		var sessions int
		if err := readDB.GetContext(c.Request.Context(), &sessions,
			`SELECT COUNT(*) FROM sessions`); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sessions})
	})

	// 12. Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 13. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 14. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down hive daemon...")

	// 15. Graceful shutdown
	cancel() // Stop the hub and background goroutines

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer shutdown error", zap.Error(err))
	}

	log.Info("hive daemon stopped")
}
