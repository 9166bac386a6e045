package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-core/internal/api/handlers"
	"auction-core/internal/config"
	"auction-core/internal/infrastructure/leader"
	"auction-core/internal/infrastructure/mysql"
	"auction-core/internal/infrastructure/redis"
	"auction-core/internal/services"
	"auction-core/pkg/logger"

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	log := logger.New()
	log.Info("Starting auction service")

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

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Error("Failed to connect to MySQL", "error", err)
		os.Exit(1)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}(db)

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Error("Failed to ping MySQL", "error", err)
		os.Exit(1)
	}
	log.Info("Connected to MySQL")

	// Persistence and Redis-backed collaborators
	store := mysql.NewMySQLAuctionStore(db)
	guard := redis.NewRedisBidGuard(rdb, cfg.Bidding.Cooldown, cfg.Bidding.DuplicateWindow)
	confirms := redis.NewRedisConfirmationStore(rdb, cfg.Bidding.ConfirmTTL)
	gate := redis.NewRedisModerationGate(rdb)
	eventPublisher := redis.NewRedisEventPublisher(rdb)

	// Watcher sockets live on the stream service; notifications travel
	// over pub/sub and get delivered there.
	notifier := redis.NewRedisNotifier(rdb)

	// Leader election gates the finalization scan
	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.TTL, log)

	bidService := services.NewBidService(store, guard, confirms, gate, notifier, eventPublisher, log)

	auctionManager := services.NewAuctionManager(store, notifier, services.AntiSniperConfig{
		Window:        cfg.AntiSniper.Window,
		Extension:     cfg.AntiSniper.Extension,
		MaxExtensions: cfg.AntiSniper.MaxExtensions,
	}, log)

	finalizer := services.NewFinalizer(store, notifier, eventPublisher, leaderElection,
		cfg.Instance.ID, cfg.Finalizer.Interval, log)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","host":"${host}","method":"${method}","uri":"${uri}","user_agent":"${user_agent}","status":${status},"error":"${error}","latency":${latency},"latency_human":"${latency_human}","bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n",
	}))
	e.Use(middleware.Recover())

	auctionHandler := handlers.NewAuctionHandler(auctionManager, log)
	bidHandler := handlers.NewBidHandler(bidService, log)

	api := e.Group("/api/v1")
	api.POST("/auctions", auctionHandler.CreateAuction)
	api.GET("/auctions/:id", auctionHandler.GetAuction)
	api.POST("/auctions/:id/publish", auctionHandler.PublishAuction)
	api.POST("/auctions/:id/freeze", auctionHandler.FreezeAuction)
	api.POST("/auctions/:id/unfreeze", auctionHandler.UnfreezeAuction)
	api.DELETE("/auctions/:id/bids/:bidID", auctionHandler.RemoveBid)
	api.POST("/auctions/:id/bids", bidHandler.PlaceBid)
	api.POST("/auctions/:id/buyout", bidHandler.Buyout)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-service",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Start the finalization scheduler
	if err := finalizer.Start(context.Background()); err != nil {
		log.Error("Failed to start finalizer", "error", err)
		os.Exit(1)
	}

	// Keep contending for leadership; the finalizer only scans while leader
	go func() {
		for {
			became, err := leaderElection.BecomeLeader(context.Background(), cfg.Instance.ID)
			if err != nil {
				log.Error("Failed to attempt leadership", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}
			if became {
				log.Info("Became finalizer leader", "instance_id", cfg.Instance.ID)
			}
			time.Sleep(10 * time.Second)
		}
	}()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting auction server", "address", serverAddr)

	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction service...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := finalizer.Stop(); err != nil {
		log.Error("Failed to stop finalizer", "error", err)
	}
	if err := leaderElection.ReleaseLeadership(ctx, cfg.Instance.ID); err != nil {
		log.Error("Failed to release leadership", "error", err)
	}
	if err := e.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Auction service stopped")
}
