/**
 * @description
 * This is the main entry point for the funds-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the interbank client, message broker, repository, the core
 * application service, the reconciliation scheduler and the HTTP server. It
 * wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/bankclient, pkg/banksign, pkg/rabbitmq: Interbank transport, envelope, broker.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/meridianbank/funds-service/internal/api"
	"github.com/meridianbank/funds-service/internal/app"
	"github.com/meridianbank/funds-service/internal/config"
	"github.com/meridianbank/funds-service/internal/store"
	"github.com/meridianbank/funds-service/pkg/bankclient"
	"github.com/meridianbank/funds-service/pkg/banksign"
	rmrabbit "github.com/meridianbank/funds-service/pkg/rabbitmq"
)

func main() {
	// Load a local .env if present, then the configuration from the environment.
	_ = godotenv.Load()
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if strings.TrimSpace(cfg.BankCode) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"bank code must be configured\" env=BANK_CODE")
	}

	log.Printf("level=info component=bootstrap msg=\"starting funds-service\" port=%s bank_code=%s", cfg.ServerPort, cfg.BankCode)

	transferFee, err := decimal.NewFromString(cfg.TransferFee)
	if err != nil || transferFee.IsNegative() {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid transfer fee\" value=%q", cfg.TransferFee)
	}

	// Load this institution's RSA signing key for interbank envelopes.
	keyPEM, err := os.ReadFile(cfg.BankPrivateKeyPath)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"private key read failed\" path=%s err=%v", cfg.BankPrivateKeyPath, err)
	}
	privateKey, err := banksign.ParsePrivateKey(keyPEM)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"private key parse failed\" err=%v", err)
	}

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for OTP delivery events. A broker
	// outage degrades code delivery but must not keep the service down.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Redis backs confirmation rate limiting; without it, limits degrade to
	// the single-use and expiry properties of the codes themselves.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; confirmation rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; confirmation rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; confirmation rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the interbank client with our identity and signing key.
	interbankClient := bankclient.NewClient(
		cfg.BankCode,
		privateKey,
		time.Duration(cfg.InterbankRequestTimeoutSeconds)*time.Second,
	)

	// The limiter is nil-safe; without Redis it simply never limits.
	var rateLimiter *app.OTPAttemptLimiter
	if redisClient != nil {
		rateLimiter = app.NewOTPAttemptLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	// Initialize the core application service with its dependencies.
	fundsService := app.NewService(
		repository,
		interbankClient,
		producer,
		rateLimiter,
		app.Config{
			BankCode:            cfg.BankCode,
			TransferFee:         transferFee,
			OTPTTL:              time.Duration(cfg.OTPTTLMinutes) * time.Minute,
			OTPConfirmLimit:     cfg.OTPConfirmRateLimitPerMinute,
			OTPConfirmWindow:    time.Minute,
			ReconcilePendingAge: time.Duration(cfg.ReconcilePendingAgeMinutes) * time.Minute,
		},
	)

	// Start the pending-settlement reconciliation sweep.
	reconciler := app.NewReconciler(fundsService, cfg.ReconcileSchedule)
	reconciler.Start()
	defer func() { <-reconciler.Stop().Done() }()

	// Initialize the API handlers and router.
	fundsHandlers := api.NewFundsHandlers(fundsService)
	router := chi.NewRouter()
	router.Mount("/", api.FundsRoutes(fundsHandlers, cfg.JWTSecret))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
