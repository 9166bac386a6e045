package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-core/internal/api/middleware"
	"auction-core/internal/config"
	"auction-core/internal/infrastructure/redis"
	"auction-core/internal/infrastructure/websocket"
	"auction-core/internal/services"
	"auction-core/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

func main() {
	log := logger.New()
	log.Info("Starting stream service")

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize Redis
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	eventSubscriber := redis.NewRedisEventSubscriber(rdb, log)

	// Connection manager holds the watchers of this instance
	connManager := websocket.NewConnectionManager(log)
	wsHandler := websocket.NewHandler(connManager, log)

	// Relay broker events to connected watchers
	eventListener := services.NewEventListener(connManager, log)

	listenerCtx, stopListener := context.WithCancel(context.Background())
	defer stopListener()
	go func() {
		if err := eventListener.Start(listenerCtx, eventSubscriber); err != nil {
			log.Error("Event listener stopped", "error", err)
		}
	}()
	go func() {
		if err := eventListener.StartNotifications(listenerCtx, eventSubscriber); err != nil {
			log.Error("Notification relay stopped", "error", err)
		}
	}()

	// Setup routes
	router := mux.NewRouter()
	router.Use(middleware.CORS)

	router.HandleFunc("/ws/auction/{auctionID}", wsHandler.HandleConnection)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting stream server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down stream service...")

	stopListener()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Stream service stopped")
}
