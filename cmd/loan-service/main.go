// Command loan-service runs the LINE Yield loan backend: an HTTP API that
// relays loan operations to the on-chain lending contract and mirrors KYC
// and audit records to Supabase.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/line-yield/loan-service/internal/audit"
	"github.com/line-yield/loan-service/internal/chain"
	"github.com/line-yield/loan-service/internal/config"
	"github.com/line-yield/loan-service/internal/contract"
	"github.com/line-yield/loan-service/internal/database"
	"github.com/line-yield/loan-service/internal/httpapi"
	"github.com/line-yield/loan-service/internal/loan"
	"github.com/line-yield/loan-service/internal/logging"
	"github.com/line-yield/loan-service/internal/middleware"
	"github.com/line-yield/loan-service/internal/supabase"
	"github.com/line-yield/loan-service/internal/txqueue"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logging.New("loan-service")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Fatal("configuration invalid")
	}

	// Chain client and relayer account.
	chainClient, err := chain.NewClient(chain.Config{
		RPCURL:    cfg.Chain.RPCURL,
		NetworkID: cfg.Chain.NetworkID,
		Timeout:   cfg.Chain.RequestTimeout,
	})
	if err != nil {
		log.WithError(err).Fatal("chain client setup failed")
	}

	relayer, err := chain.AccountFromPrivateKey(cfg.Chain.RelayerPrivateKey)
	if err != nil {
		log.WithError(err).Fatal("relayer key invalid")
	}

	lending := contract.New(chainClient, relayer)
	if err := lending.Initialize(cfg.Chain.ContractAddress); err != nil {
		log.WithError(err).Fatal("contract binding failed")
	}
	log.WithField("contract", cfg.Chain.ContractAddress).Info("lending contract bound")

	// Off-chain store: Supabase when configured, otherwise in-memory.
	var repo database.Repository
	if cfg.Supabase.URL != "" {
		sb, err := supabase.New(supabase.Config{
			URL:    cfg.Supabase.URL,
			APIKey: cfg.Supabase.APIKey,
		})
		if err != nil {
			log.WithError(err).Fatal("supabase client setup failed")
		}
		repo = database.NewStore(sb, log)
	} else {
		log.Warn("no supabase url configured, using in-memory store")
		repo = database.NewMemoryStore()
	}

	auditLog := audit.NewLogger(log, repo)

	queue := txqueue.New(log, cfg.Queue.Buffer)
	queue.Start()

	svc := loan.NewService(lending, repo, auditLog, queue, log)

	// HTTP surface.
	stop := make(chan struct{})
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.TrustProxy, log)
	rateLimiter.StartCleanup(10*time.Minute, stop)

	router := httpapi.NewRouter(httpapi.NewHandler(svc, log), httpapi.RouterDeps{
		RateLimiter: rateLimiter,
		AdminAuth:   middleware.NewAdminAuth(cfg.Auth.AdminJWTSecret, log),
		CORS:        middleware.NewCORS(cfg.Server.AllowedOrigins),
		Metrics:     middleware.NewMetrics(prometheus.DefaultRegisterer),
		Log:         log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("loan service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	// Block until shutdown signal, then drain.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	close(stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}

	queue.Stop()
	log.Info("stopped")
}
