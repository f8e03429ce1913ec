package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reliabill/reliabill/internal/api"
	v1 "github.com/reliabill/reliabill/internal/api/v1"
	"github.com/reliabill/reliabill/internal/cache"
	"github.com/reliabill/reliabill/internal/config"
	"github.com/reliabill/reliabill/internal/integration/processor"
	"github.com/reliabill/reliabill/internal/logger"
	"github.com/reliabill/reliabill/internal/notification"
	"github.com/reliabill/reliabill/internal/repository/dynamodb"
	"github.com/reliabill/reliabill/internal/service"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logger.GetLogger().Fatalw("failed to load configuration", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.GetLogger().Fatalw("invalid configuration", "error", err)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		logger.GetLogger().Fatalw("failed to initialize logger", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := dynamodb.NewClient(ctx, cfg.DynamoDB)
	if err != nil {
		log.Fatalw("failed to initialize dynamodb client", "error", err)
	}

	params := service.ServiceParams{
		Logger: log,
		Config: cfg,

		BillingAccountRepo: dynamodb.NewBillingAccountRepository(client, log),
		PaymentFailureRepo: dynamodb.NewPaymentFailureRepository(client, log),
		TransactionRepo:    dynamodb.NewTransactionRepository(client, log),
		DisputeRepo:        dynamodb.NewDisputeRepository(client, log),
		WebhookEventRepo:   dynamodb.NewWebhookEventRepository(client, log),
		UserRepo:           dynamodb.NewUserRepository(client, log),

		Gateway:  processor.NewClient(cfg.Processor, log),
		Notifier: notification.NewService(cfg.Notification, log),
		Cache:    cache.NewInMemoryCache(),

		RetryPolicy: service.NewRetryPolicy(cfg.Retry),
		Campaigns:   service.DefaultCampaigns(),
	}

	handlers := api.Handlers{
		Webhook: v1.NewWebhookHandler(service.NewWebhookService(params), log),
		Dispute: v1.NewDisputeHandler(service.NewDisputeService(params), log),
		Admin: v1.NewAdminHandler(
			service.NewBillingService(params),
			service.NewPaymentFailureService(params),
			service.NewDunningService(params),
			log,
		),
	}

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.NewRouter(handlers, cfg, log),
	}

	go func() {
		log.Infow("starting server", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("graceful shutdown failed", "error", err)
	}
}
