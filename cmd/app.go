package cmd

import (
	"fmt"

	"github.com/yourusername/freelance-billing/billing"
	"github.com/yourusername/freelance-billing/config"
	"github.com/yourusername/freelance-billing/logger"
	"github.com/yourusername/freelance-billing/metrics"
	"github.com/yourusername/freelance-billing/utils"
	"gorm.io/gorm"
)

// app holds the wired billing core and the collaborators that need closing.
type app struct {
	db       *gorm.DB
	svc      *billing.Service
	provider billing.PaymentProvider
	metrics  *metrics.Metrics
	closers  []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, metrics: metrics.New()}

	deps := billing.Deps{
		Renderer:         utils.NewPDFRenderer(cfg.BusinessName),
		Metrics:          a.metrics,
		Logger:           logger.WithComponent("billing"),
		OperationTimeout: cfg.OperationTimeout,
		SendRecurring:    cfg.SendRecurringInvoices,
	}

	if cfg.RabbitMQURL != "" {
		rmq, err := utils.NewRabbitMQClient(cfg.RabbitMQURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, rmq.Close)
		if err := rmq.DeclareQueue(cfg.EmailQueue); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.EmailQueue, err)
		}
		deps.Notifier = utils.NewQueueNotifier(rmq, cfg.EmailQueue, cfg.SenderEmail)
	} else {
		log.Warn().Msg("RABBITMQ_URL not set, invoice e-mails are disabled")
	}

	if cfg.StripeSecretKey != "" {
		provider := utils.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		deps.Provider = provider
		a.provider = provider
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, online payments are disabled")
	}

	if cfg.KafkaBroker != "" {
		publisher := utils.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic)
		a.closers = append(a.closers, publisher.Close)
		deps.Events = publisher
	}

	a.svc = billing.NewService(db, deps)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close collaborator")
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
