package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruralpay/collections/docs"
	"github.com/ruralpay/collections/internal/audit"
	"github.com/ruralpay/collections/internal/config"
	"github.com/ruralpay/collections/internal/database"
	"github.com/ruralpay/collections/internal/handlers"
	"github.com/ruralpay/collections/internal/notify"
	"github.com/ruralpay/collections/internal/scheduler"
	"github.com/ruralpay/collections/internal/services"
	"github.com/ruralpay/collections/internal/session"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Savings Collections API
// @version 1.0
// @description API for multi-tenant daily savings collection
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg := config.Load()
	ctx := context.Background()

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	db := database.InitDatabase(ctx)
	defer db.Close()

	redisClient := database.InitRedis(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sessions := session.NewStore(redisClient, time.Duration(cfg.JWT.ExpiryHours)*time.Hour, cfg.Session.StatusCacheTTL)
	auditLogger := audit.NewLogger(db)

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if cfg.Notify.AMQPURL != "" {
		amqpDispatcher, err := notify.NewAMQPDispatcher(cfg.Notify.AMQPURL, cfg.Notify.Exchange)
		if err != nil {
			log.Printf("[NOTIFY] AMQP unavailable, logging notifications instead: %v", err)
		} else {
			defer amqpDispatcher.Close()
			dispatcher = amqpDispatcher
		}
	}

	var deduper notify.Deduper
	if redisClient != nil {
		deduper = notify.NewRedisDeduper(redisClient, cfg.Scheduler.WarningDedup)
	}

	ledgerService := services.NewLedgerService(db, auditLogger, cfg.Ledger.TxAttempts)
	collectionService := services.NewCollectionService(db, ledgerService, auditLogger, cfg.Ledger.TxAttempts)
	summaryService := services.NewSummaryService(db, auditLogger, cfg.Ledger.TxAttempts)
	subscriptionService := services.NewSubscriptionService(db, auditLogger, sessions, dispatcher, deduper,
		cfg.Scheduler.WarningDays, cfg.Ledger.TxAttempts)
	authService := services.NewAuthService(db, sessions, cfg.JWT, cfg.Argon2)
	qrService := services.NewQRService(db)

	r := handlers.NewRouter(handlers.RouterConfig{
		JWTSecret:     cfg.JWT.SecretKey,
		Sessions:      sessions,
		StatusCache:   sessions,
		StatusSource:  subscriptionService,
		Auth:          handlers.NewAuthHandler(authService),
		Collections:   handlers.NewCollectionHandler(collectionService),
		Summaries:     handlers.NewSummaryHandler(summaryService),
		Accounts:      handlers.NewAccountHandler(ledgerService, qrService),
		Subscriptions: handlers.NewSubscriptionHandler(subscriptionService),
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs = scheduler.New(subscriptionService, cfg.Scheduler)
		if err := jobs.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if jobs != nil {
		select {
		case <-jobs.Stop().Done():
		case <-shutdownCtx.Done():
			log.Println("[SCHEDULER] running jobs did not finish before shutdown")
		}
	}

	log.Println("Server stopped")
}
