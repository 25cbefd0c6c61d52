// README: Entry point; loads config, wires services, starts HTTP server and background schedulers.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"unipool/internal/ai"
	"unipool/internal/config"
	httptransport "unipool/internal/http"
	"unipool/internal/infra"
	"unipool/internal/logging"
	"unipool/internal/maps"
	"unipool/internal/modules/audit"
	"unipool/internal/modules/matching"
	"unipool/internal/modules/pricing"
	"unipool/internal/modules/request"
	"unipool/internal/modules/ride"
	"unipool/internal/notify"
	"unipool/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var notifier notify.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.OfferTopic, cfg.Kafka.StatusTopic, logger)
		defer kn.Close()
		notifier = kn
	}

	var funds wallet.Engine = wallet.Noop{}
	if cfg.Wallet.StripeKey != "" {
		funds = wallet.NewStripeEngine(cfg.Wallet.StripeKey)
	} else {
		logger.Warn("STRIPE_API_KEY not set, fund holds are no-ops")
	}

	pricingStore := pricing.NewStore(dbPool)
	pricingSvc := pricing.NewService(pricingStore, pricing.DefaultEstimator)

	rideStore := ride.NewStore(dbPool)

	requestStore := request.NewPgStore(dbPool)
	requestSvc := request.NewService(requestStore, rideStore, pricingSvc, funds, notifier, cfg.Broadcast, logger)

	recorder := audit.NewRecorder(audit.NewPgStore(dbPool), logger, 256)
	defer recorder.Close()

	var ranker ai.Ranker
	if cfg.AI.GeminiKey != "" {
		gemini, err := ai.NewGeminiRanker(ctx, cfg.AI.GeminiKey)
		if err != nil {
			log.Fatalf("gemini init: %v", err)
		}
		defer gemini.Close()
		ranker = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, ranking falls back to geo scores")
	}
	reranker := matching.NewReranker(ranker, recorder, cfg.Rerank, logger)

	var routes matching.RouteEstimator
	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		routes = routeSvc
	}

	matchingStore := matching.NewStore(redisClient)
	matchingSvc := matching.NewService(matchingStore, requestSvc, rideStore, reranker, routes, notifier, cfg.Matching, cfg.Broadcast.OfferCount, logger)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Requests: requestSvc,
		Matching: matchingSvc,
		Pricing:  pricingSvc,
		Rides:    rideStore,
		Log:      logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go matchingSvc.RunScheduler(ctx)
	go requestSvc.RunExpiryTicker(ctx)

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
