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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/streamgate/backend/internal/config"
	"github.com/streamgate/backend/internal/domain"
	"github.com/streamgate/backend/internal/handler"
	appMiddleware "github.com/streamgate/backend/internal/middleware"
	"github.com/streamgate/backend/internal/repository"
	"github.com/streamgate/backend/internal/service"
	"github.com/streamgate/backend/pkg/crypto"
	"github.com/streamgate/backend/pkg/ledger"
)

func main() {
	// Load .env file if present (for local development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	ctx := context.Background()

	// Stores: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		pool    *pgxpool.Pool
		subs    service.SubscriptionStore
		history service.HistoryStore
		keys    service.KeyStore
		creds   handler.CredentialStore
	)
	if cfg.DatabaseURL != "" {
		pool, err = repository.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Database error: %v", err)
		}
		defer pool.Close()
		if err := repository.RunMigrations(ctx, pool); err != nil {
			log.Fatalf("Migration error: %v", err)
		}
		log.Println("Database connected & migrated")

		subs = repository.NewSubscriptionRepository(pool)
		history = repository.NewPaymentHistoryRepository(pool)
		keys = repository.NewKeyRepository(pool)
		creds = repository.NewCredentialRepository(pool)
	} else {
		log.Println("DATABASE_URL not set, using in-memory stores (state is lost on restart)")
		subs = repository.NewMemorySubscriptionStore()
		history = repository.NewMemoryHistoryStore()
		keys = repository.NewMemoryKeyStore()
		creds = repository.NewMemoryCredentialStore()
	}

	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Encryption error: %v", err)
	}

	rpcClient := ledger.NewRPCClient(ledger.RPCConfig{
		URL:            cfg.RPCURL,
		FeePayer:       cfg.OperatorAddress,
		ConfirmTimeout: cfg.ConfirmTimeout,
	})

	catalog := domain.DefaultCatalog()
	vault := service.NewKeyVault(keys, enc)
	billing := service.NewBillingService(subs, history, vault, rpcClient, catalog, cfg.OperatorAddress)

	sweeper := service.NewSweeper(billing, subs, cfg.SweepInterval, cfg.SweepConcurrency)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	subHandler := handler.NewSubscriptionHandler(billing)
	plansHandler := handler.NewPlansHandler(catalog)
	credHandler := handler.NewCredentialHandler(creds)
	balanceHandler := handler.NewBalanceHandler(rpcClient, cfg.TokenAddress)
	feePayerHandler := handler.NewFeePayerHandler(rpcClient)
	healthHandler := handler.NewHealthHandler(pool)

	r := chi.NewRouter()

	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	r.Use(globalRL.Middleware())

	r.Get("/health", healthHandler.Check)
	r.Get("/api/plans", plansHandler.List)

	r.Post("/subscribe", subHandler.Subscribe)
	r.Get("/my-subscription/{address}", subHandler.Get)
	r.Post("/retry-payment", subHandler.Retry)
	r.Post("/cancel-subscription", subHandler.Cancel)

	r.Get("/balance/{address}", balanceHandler.Get)

	r.Post("/credentials", credHandler.Store)
	r.Get("/credentials", credHandler.Lookup)

	r.Post("/fee-payer", feePayerHandler.Relay)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down...")
		sweeper.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Billing server listening at http://%s (sweep every %s)", addr, cfg.SweepInterval)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
