// File: tripdeal/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripdeal/config"
	"tripdeal/cron"
	"tripdeal/database"
	guardrailRepo "tripdeal/database/repository/guardrail"
	"tripdeal/handlers"
	"tripdeal/middleware"
	"tripdeal/routes"
	"tripdeal/services/dialogue"
	"tripdeal/services/guardrail"
	"tripdeal/services/negotiation"
	"tripdeal/services/tasks"
	"tripdeal/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitSessionCache()
	utils.InitDialogCache()

	// Static dialogue pack; loaded once, immutable afterwards.
	pack, err := dialogue.LoadPack(config.AppConfig.DialoguePackPath)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to load dialogue pack: %v", err)
	}

	// Guardrail profiles; a module without a default profile is fatal here.
	grRepo := guardrailRepo.NewMongoGuardrailRepo()
	if err := grRepo.EnsureIndexes(); err != nil {
		logger.Sugar().Warnf("main: guardrail indexes: %v", err)
	}
	resolver, err := guardrail.NewResolver(context.Background(), grRepo)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to load guardrail profiles: %v", err)
	}

	supplierClient := negotiation.NewHTTPSupplierClient(
		config.AppConfig.SupplierAPIBaseURL,
		time.Duration(config.AppConfig.SupplierAPITimeoutMs)*time.Millisecond,
	)
	archiver := tasks.NewAsynqArchiver()

	negotiationService := &negotiation.DefaultSessionService{
		Guardrails:     resolver,
		Pack:           pack,
		Memory:         dialogue.NewRedisMemoryStore(utils.GetDialogCacheClient(), utils.DialogMemoryTTL, utils.DialogMemorySize),
		Supplier:       supplierClient,
		Snapshots:      negotiation.NewRedisSnapshotStore(utils.GetSessionCacheClient(), utils.SessionCacheTTL),
		Archiver:       archiver,
		DecisionWindow: time.Duration(config.AppConfig.DecisionWindowSec) * time.Second,
		HoldWindow:     time.Duration(config.AppConfig.HoldWindowSec) * time.Second,
	}

	cron.InitArchiveWorker()
	utils.StartHealthMonitor(
		utils.GetSessionCacheClient(),
		utils.GetDialogCacheClient(),
		database.MongoClient,
	)

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(routes.CORSMiddleware())
	router.Use(middleware.RateLimitMiddleware())

	negotiationHandler := handlers.NewNegotiationHandler(negotiationService, logger)
	adminHandler := handlers.NewAdminHandler(resolver)

	routes.RegisterNegotiationRoutes(router, negotiationHandler)
	routes.RegisterAdminRoutes(router, adminHandler)
	routes.RegisterHealthRoute(router)

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	_ = archiver.Close()
	logger.Sugar().Info("main: server stopped gracefully")
}
