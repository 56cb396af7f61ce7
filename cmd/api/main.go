package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutorflow/arbitration"
	"tutorflow/auth"
	"tutorflow/cache"
	"tutorflow/commitment"
	"tutorflow/config"
	"tutorflow/db"
	"tutorflow/httpapi"
	"tutorflow/outbox"
	"tutorflow/party"
	"tutorflow/request"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	authService := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	requestService := request.NewService(request.NewRepository(pool))
	partyService := party.NewService(party.NewRepository(pool))
	commitmentService := commitment.NewService(pool, nil)
	arbitrationService := arbitration.NewService(
		commitmentService,
		arbitration.NewSessionRepository(pool),
		partyService,
	)

	var reviewCache httpapi.ReviewCache
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(cfg.RedisURL)
		if err != nil {
			log.Fatalf("bootstrap redis: %v", err)
		}
		defer redisClient.Close()
		reviewCache = cache.NewViewCache(redisClient, cfg.ReviewCacheTTL)
	}

	if len(cfg.KafkaBrokers) > 0 {
		notifier, err := outbox.NewKafkaNotifier(cfg.KafkaBrokers)
		if err != nil {
			log.Fatalf("bootstrap kafka notifier: %v", err)
		}
		defer notifier.Close()

		relay := outbox.NewRelay(pool, notifier, cfg.OutboxPollEvery, cfg.OutboxBatchSize, cfg.OutboxWorkerCount)
		go func() {
			report := func(err error) { log.Printf("outbox relay: %v", err) }
			if err := relay.Run(ctx, report); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("outbox relay stopped: %v", err)
			}
		}()
	}

	handler := httpapi.NewHandler(
		authService,
		requestService,
		commitmentService,
		arbitrationService,
		partyService,
		reviewCache,
	)

	server := newHTTPServer(cfg.HTTPPort, httpapi.NewRouter(handler))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server: %v", err)
	}
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
