package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iap-sync-engine/internal/bus"
	"iap-sync-engine/internal/config"
	"iap-sync-engine/internal/domain/model"
	"iap-sync-engine/internal/infra/adapters/entitlement"
	"iap-sync-engine/internal/infra/adapters/store"
	"iap-sync-engine/internal/infra/auth"
	"iap-sync-engine/internal/infra/logging"
	"iap-sync-engine/internal/infra/metrics"
	red "iap-sync-engine/internal/infra/redis"
	"iap-sync-engine/internal/infra/sched"
	"iap-sync-engine/internal/infra/telemetry"
	"iap-sync-engine/internal/infra/web"
	"iap-sync-engine/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Session token store (redis when configured, memory otherwise) ----
	var tokenStore auth.TokenStore = auth.NewMemoryTokenStore()
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		tokenStore = red.NewTokenRepo(redisClient, cfg.Redis.TTL)
	}
	session := auth.NewSessionManager(tokenStore, logger)
	if token := os.Getenv("IAP_ACCESS_TOKEN"); token != "" {
		if err := session.SignIn(ctx, token); err != nil {
			logger.Fatal().Err(err).Msg("sign in")
		}
		logger.Info().Str("token", logging.Redact(token, cfg.Runtime.Dev)).Msg("session token cached")
	}

	// ---- Adapters ----
	entClient, err := entitlement.NewClient(cfg.IAP.APIURL, cfg.IAP.RequestTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("entitlement client")
	}
	catalog := make([]model.Product, 0, len(cfg.IAP.PremiumLifetimeProductIDs))
	for _, sku := range cfg.IAP.PremiumLifetimeProductIDs {
		catalog = append(catalog, model.Product{SKU: sku, Title: sku, Currency: "USD"})
	}
	simStore := store.NewSimStore(catalog, logger)
	classifier := telemetry.NewClassifier(logger)

	// ---- Engine ----
	actions := bus.New(logger)
	reconcileUC := usecase.NewReconcileUseCase(session, entClient, simStore, classifier, actions, cfg.IAP.AndroidPackageName, logger)
	stateUC := usecase.NewPurchaseStateUseCase(actions, cfg.IAP.PremiumLifetimeProductIDs, logger)
	go stateUC.Run(ctx)

	orc := sched.NewOrchestrator(simStore, reconcileUC, classifier, actions, cfg.IAP.Workers, cfg.IAP.UpdateBuffer, logger)
	if err := orc.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("orchestrator init")
	}

	// ---- Web surface ----
	srv := web.NewServer(stateUC, actions, cfg.Admin.APIKey, logger)
	go func() {
		if err := srv.Start(cfg.Admin.Port); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("web server")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("web shutdown")
	}
	if err := orc.Destroy(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("orchestrator destroy")
	}
	cancel()
}
