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

	"pricesync-service/config"
	"pricesync-service/internal/api"
	"pricesync-service/internal/broker"
	"pricesync-service/internal/events"
	"pricesync-service/internal/feed"
	"pricesync-service/internal/models"
	"pricesync-service/internal/platform"
	"pricesync-service/internal/redisclient"
	"pricesync-service/internal/scheduler"
	"pricesync-service/internal/service"
	"pricesync-service/internal/store"
	"pricesync-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting price sync service")

	tp, err := util.InitTracer("pricesync-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Secrets.CredentialsKey)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	hub := events.NewHub()
	emitter := events.Fanout{eventPublisher, hub}

	feedClient := feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.ClientID, cfg.Feed.ClientSecret, cfg.Sync.RequestTimeout)

	requestTimeout := cfg.Sync.RequestTimeout
	platformFactory := func(storeCfg models.StoreConfig, creds models.Credentials) (platform.Client, error) {
		return platform.NewClient(storeCfg, creds, requestTimeout)
	}

	statusStore := service.NewCachedStatusStore(db, redisClient)
	orchestrator := service.NewSyncOrchestrator(db, statusStore, db, emitter, feedClient, platformFactory)
	if epsilon, err := decimal.NewFromString(cfg.Sync.PriceEpsilon); err == nil {
		orchestrator.SetPriceEpsilon(epsilon)
	} else {
		log.Printf("Invalid PRICE_EPSILON %q, using default: %v", cfg.Sync.PriceEpsilon, err)
	}

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	sched := scheduler.NewSchedulerService(db, statusStore, orchestrator, cfg.Sync.TickInterval)
	schedDone := make(chan struct{})
	go func() {
		sched.Run(schedCtx)
		close(schedDone)
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(db, statusStore, db, db, sched, hub)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	schedCancel()
	<-schedDone

	log.Println("Server exited")
}
