package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/brickparty/brick-party/internal/adapter/handler"
	"github.com/brickparty/brick-party/internal/adapter/messaging"
	"github.com/brickparty/brick-party/internal/adapter/storage"
	"github.com/brickparty/brick-party/internal/config"
	"github.com/brickparty/brick-party/internal/core/service"
)

const replayBatch = 500

func main() {
	cfg, err := config.Load(os.Getenv("BRICKPARTY_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		fatal("failed to connect mysql", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		fatal("failed to ping mysql", err)
	}
	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.Migrate(ctx); err != nil {
		fatal("failed to migrate mysql", err)
	}
	slog.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		fatal("failed to connect redis", err)
	}
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.CatalogCacheTTL)
	slog.Info("connected to redis")

	outbox, err := storage.OpenSQLiteOutbox(cfg.OutboxPath)
	if err != nil {
		fatal("failed to open outbox", err)
	}
	slog.Info("opened outbox", "path", cfg.OutboxPath)

	opts := []service.ForwarderOption{
		service.WithCache(redisAdapter),
		service.WithOutbox(outbox),
		service.WithRetryPolicy(service.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		}),
		service.WithMetrics(service.NewSyncMetrics(prometheus.DefaultRegisterer)),
	}
	var publisher *messaging.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		opts = append(opts, service.WithPublisher(publisher))
		slog.Info("publishing owned changes", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	forwarder := service.NewSyncForwarder(mysqlAdapter, cfg.QueueSize, opts...)
	sessions := service.NewSessions(mysqlAdapter, mysqlAdapter, redisAdapter, forwarder)

	// Start worker pool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwarder.Run(ctx, cfg.Workers)
	}()
	slog.Info("started sync workers", "workers", cfg.Workers)

	replayCtx, stopReplay := context.WithCancel(ctx)
	var replayWg sync.WaitGroup
	replayWg.Add(1)
	go func() {
		defer replayWg.Done()
		replayLoop(replayCtx, forwarder, cfg.ReplayInterval)
	}()

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterOwnershipServiceServer(grpcServer, handler.NewGRPCHandler(sessions))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		fatal("failed to listen", err)
	}

	go func() {
		slog.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server error", "error", err)
		}
	}()

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.NewRouter(handler.NewHTTPHandler(sessions), prometheus.DefaultGatherer),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	slog.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	slog.Info("gRPC server stopped")

	stopReplay()
	replayWg.Wait()

	// Close the queue and wait for workers to drain it
	forwarder.Close()
	wg.Wait()
	slog.Info("sync workers stopped", "pending", forwarder.Pending())

	if publisher != nil {
		publisher.Close()
	}
	outbox.Close()
	rdb.Close()
	db.Close()
	slog.Info("connections closed")
}

func replayLoop(ctx context.Context, forwarder *service.SyncForwarder, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := forwarder.ReplayOutbox(ctx, replayBatch)
			if err != nil {
				slog.Warn("outbox replay failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("replayed outbox changes", "count", n)
			}
		}
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
