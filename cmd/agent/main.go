package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fiddle-chat/agent/internal/api"
	"fiddle-chat/agent/internal/docs"
	"fiddle-chat/agent/internal/llm"
	"fiddle-chat/agent/internal/session"
	"fiddle-chat/agent/internal/store"
	"fiddle-chat/agent/internal/transcript"
	"fiddle-chat/agent/internal/ws"
	"fiddle-chat/agent/pkg/config"
	"fiddle-chat/agent/pkg/logger"
	"fiddle-chat/agent/pkg/router"
	"fiddle-chat/agent/pkg/secrets"
	"fiddle-chat/agent/shared/observability"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		logConfig.Level = level
	}
	logConfig.JSON = os.Getenv("LOG_FORMAT") != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	cfg := config.Get()
	if cfg.Session.PrincipalID == "" || cfg.Session.RoomID == "" {
		log.Error("PRINCIPAL_ID and ROOM_ID must be set")
		os.Exit(1)
	}

	log.Info("Starting agent",
		"principal", cfg.Session.PrincipalID,
		"room", cfg.Session.RoomID,
		"version", os.Getenv("APP_VERSION"))

	// Observability
	shutdownTracing := observability.SetupTracing("fiddle-chat-agent")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()

	// Transcript database
	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}
	transcriptStore, err := transcript.NewStore(db)
	if err != nil {
		log.LogError(err, "Failed to migrate transcript schema")
		os.Exit(1)
	}

	// Shared room state
	roomStore := store.NewRedisStore()

	// Provider credentials
	secretsManager, err := secrets.NewVaultManager(log)
	if err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
		os.Exit(1)
	}

	registry := llm.NewRegistry(nil)
	docsManager := docs.NewManager(roomStore, secretsManager, log, nil)

	hub := ws.NewHub(log)

	engine := session.NewEngine(session.Config{
		PrincipalID:          cfg.Session.PrincipalID,
		RoomID:               cfg.Session.RoomID,
		HeartbeatPeriod:      cfg.Protocol.HeartbeatPeriod,
		RoomPresencePeriod:   cfg.Protocol.RoomPresencePeriod,
		OwnershipCheckPeriod: cfg.Protocol.OwnershipCheckPeriod,
		StaleAfter:           cfg.Protocol.StaleAfter,
		HistoryLimit:         cfg.Protocol.HistoryLimit,
		ReplyDelayMin:        cfg.Protocol.ReplyDelayMin,
		ReplyDelayMax:        cfg.Protocol.ReplyDelayMax,
	}, roomStore, registry, secretsManager, docsManager, transcriptStore, hub, log)

	handler := api.NewHandler(engine, transcriptStore, secretsManager, hub, log)

	// Initialize and setup router
	r := router.New(log, hub, handler)
	r.SetupRoutes()

	// Add OpenAPI validation if schema file is available
	if schemaPath := os.Getenv("OPENAPI_SCHEMA_PATH"); schemaPath != "" {
		r.AddOpenAPIValidation(schemaPath)
	}

	// Start heartbeats and the ownership monitor
	engine.Start(context.Background())

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r.Engine,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Announce departure before the HTTP surface goes away so watchers
	// see the membership flip
	engine.Stop(ctx)

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Agent exited gracefully")
}
