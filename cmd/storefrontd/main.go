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
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mercato/storefront/internal/auth"
	"github.com/mercato/storefront/internal/bus"
	"github.com/mercato/storefront/internal/cartsync"
	"github.com/mercato/storefront/internal/httpapi"
	"github.com/mercato/storefront/internal/marketplace"
	"github.com/mercato/storefront/internal/pricing"
	"github.com/mercato/storefront/internal/session"
	"github.com/mercato/storefront/internal/store"
)

type Config struct {
	HTTPPort        string
	MarketplaceURL  string
	RedisAddr       string
	RedisPassword   string
	APIUsername     string
	APIPassword     string
	RequestTimeout  time.Duration
	RemoteTimeout   time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() *Config {
	if err := godotenv.Overload(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("skipping .env: %v", err)
	}
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		MarketplaceURL:  getEnv("MARKETPLACE_URL", "http://localhost:9090/api"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		APIUsername:     getEnv("MARKETPLACE_USERNAME", ""),
		APIPassword:     getEnv("MARKETPLACE_PASSWORD", ""),
		RequestTimeout:  30 * time.Second,
		RemoteTimeout:   10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Connected to Redis at %s", cfg.RedisAddr)

	// Token lifecycle: redis-cached token, single-flight login, 401 recovery
	// inside the marketplace client.
	tokenStore := auth.NewRedisTokenStore(redisClient)
	authClient := marketplace.NewAuthClient(cfg.MarketplaceURL, cfg.RemoteTimeout)
	tokens := auth.NewProvider(tokenStore, authClient, auth.Credentials{
		Username: cfg.APIUsername,
		Password: cfg.APIPassword,
	})
	market := marketplace.NewClient(cfg.MarketplaceURL, tokens, cfg.RemoteTimeout)

	eventBus := bus.NewRedisBus(redisClient)
	cartStore := store.NewCartStore(redisClient, eventBus)
	pricingService := pricing.NewService(market, cartStore, cfg.RemoteTimeout)

	syncer := cartsync.NewSyncer(market, cartStore, pricingService)
	go syncer.Run(ctx)

	sess := session.New(cartStore, syncer, pricingService, market)
	router := httpapi.NewRouter(sess, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront session service starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel() // stops the sync consumer

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
