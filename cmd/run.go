package cmd

import (
	"context"
	"fmt"
	"time"

	"wagerbook/api"
	"wagerbook/config"
	"wagerbook/database"
	"wagerbook/events"
	"wagerbook/infrastructure"
	"wagerbook/infrastructure/observability"
	"wagerbook/repository"
	"wagerbook/service"
	"wagerbook/worker"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context, cfg *config.Config) error {
	log.WithField("environment", cfg.Environment).Info("Starting wagerbook...")

	// Metrics
	metrics := observability.NewMetricsProvider(cfg.Metrics, cfg.Environment)
	if err := metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	// Database
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Redis
	log.Info("Connecting to Redis...")
	rdb, err := infrastructure.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer rdb.Close()

	// NATS
	log.Info("Connecting to NATS...")
	natsClient := infrastructure.NewNATSClient(cfg.NATSServers, "wagerbook")
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer natsClient.Close()

	jobQueue := infrastructure.NewNATSJobQueue(natsClient, cfg.Scheduler.MaxAttempts+1, cfg.Scheduler.RetryDelay)
	eventPublisher := infrastructure.NewNATSEventPublisher(natsClient)
	notifier := infrastructure.NewNATSNotifier(natsClient)
	for name, setup := range map[string]func() error{
		"jobs":          jobQueue.Setup,
		"events":        eventPublisher.Setup,
		"notifications": notifier.Setup,
	} {
		if err := setup(); err != nil {
			return fmt.Errorf("failed to set up %s stream: %w", name, err)
		}
	}
	rails := infrastructure.NewNATSRailClient(natsClient, cfg.Reconciler.RailTimeout)

	// Event bus and unit of work
	eventBus := events.NewBus()
	eventPublisher.Attach(eventBus)
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Mediation channel
	var messenger service.Messenger = infrastructure.NewLogMessenger()
	if cfg.Discord.Enabled() {
		discord, err := infrastructure.NewDiscordMessenger(cfg.Discord)
		if err != nil {
			return fmt.Errorf("failed to initialize Discord messenger: %w", err)
		}
		messenger = discord
	} else {
		log.Warn("Discord is not configured, dispute channels will only be logged")
	}

	// Services
	scheduler := infrastructure.NewRedisSettlementScheduler(rdb, cfg.Scheduler)
	guard := infrastructure.NewRedisIdempotencyGuard(rdb, cfg.Idempotency)
	rates := infrastructure.NewStaticRateProvider(cfg.Crypto)
	ledger := service.NewLedgerService()
	fees := service.NewFeeSchedule(cfg.Fees)

	userService := service.NewUserService(uowFactory)
	disputeService := service.NewDisputeService(uowFactory, messenger, notifier, cfg.Wager)
	wagerService := service.NewWagerService(uowFactory, ledger, disputeService, scheduler, jobQueue, notifier, metrics, fees, cfg.Wager)
	walletService := service.NewWalletService(uowFactory, ledger, guard, jobQueue, rates, cfg)
	reconciler := service.NewReconciler(uowFactory, ledger, rails, rails, rates, jobQueue, notifier, metrics, cfg)

	// Workers
	dispatcher := worker.NewDispatcher(wagerService, disputeService, reconciler)
	if err := dispatcher.Register(jobQueue); err != nil {
		return fmt.Errorf("failed to register job consumers: %w", err)
	}
	go func() {
		if err := scheduler.Run(ctx, dispatcher.FireScheduled); err != nil {
			log.WithError(err).Error("Settlement scheduler stopped")
		}
	}()

	recoverPending(ctx, wagerService, reconciler, cfg.Reconciler.StaleAfter)

	// HTTP API
	server := api.NewServer(cfg, api.Services{
		Users:      userService,
		Wagers:     wagerService,
		Wallet:     walletService,
		Reconciler: reconciler,
		Disputes:   disputeService,
	})
	serveErr := server.Run(ctx)

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to shut down metrics provider")
	}
	return serveErr
}

// recoverPending re-drives work whose follow-up job may have been lost before a restart
func recoverPending(ctx context.Context, wagers service.WagerService, reconciler service.Reconciler, staleAfter time.Duration) {
	settlements, err := wagers.RecoverPendingSettlements(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to recover pending settlements")
	}
	transactions, err := reconciler.RecoverPending(ctx, staleAfter)
	if err != nil {
		log.WithError(err).Error("Failed to recover pending transactions")
	}
	log.WithFields(log.Fields{
		"settlements":  settlements,
		"transactions": transactions,
	}).Info("Startup recovery complete")
}
