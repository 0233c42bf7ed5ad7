package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/reelseats/booking/internal/cache"
	"github.com/reelseats/booking/internal/config"
	"github.com/reelseats/booking/internal/database"
	"github.com/reelseats/booking/internal/handler"
	"github.com/reelseats/booking/internal/lock"
	"github.com/reelseats/booking/internal/queue"
	"github.com/reelseats/booking/internal/repository"
	"github.com/reelseats/booking/internal/router"
	"github.com/reelseats/booking/internal/worker"
)

func main() {
	// A local .env is optional; real deployments set the environment
	// directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.WorkerCount*2)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Locks, pending-lock records and job results all live in Redis;
	// without it no reservation can proceed, so fail fast.
	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer rdb.Close()

	showRepo := repository.NewShowRepo(db)
	showSeatRepo := repository.NewShowSeatRepo(db)
	bookingRepo := repository.NewBookingRepo(db)

	locker := lock.NewRedisLocker(rdb)
	results := cache.NewResultStore(rdb, cfg.JobResultTTL)
	holds := cache.NewHoldStore(rdb, cfg.HoldTimeout)
	availability := cache.NewAvailabilityCache(rdb)

	broker := queue.NewBroker(cfg.AMQPURL, cfg.MaxJobAttempts, cfg.RetryBaseDelay)

	pool := worker.NewPool(showRepo, showSeatRepo, locker, holds, results, availability, worker.Config{
		LockTTL:     cfg.LockTTL,
		MaxAttempts: cfg.MaxJobAttempts,
		MaxSeats:    cfg.MaxSeatsPerJob,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := broker.Consume(ctx, cfg.WorkerCount, pool.Handle); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	reaper := worker.NewReaper(showSeatRepo, availability, cfg.ReaperInterval, cfg.HoldTimeout)
	if err := reaper.Start(ctx); err != nil {
		log.Fatalf("start reaper: %v", err)
	}
	defer reaper.Stop()

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterBooking(e, handler.NewBookingHandler(
		showRepo, showSeatRepo, bookingRepo,
		holds, results, availability,
		broker, cfg.MaxSeatsPerJob,
	), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, workers=%d)", addr, cfg.Env, cfg.WorkerCount)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	// Drain in-flight requests and workers on SIGINT/SIGTERM.  Unacked
	// deliveries are requeued by the broker once the consumer channel
	// closes.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
