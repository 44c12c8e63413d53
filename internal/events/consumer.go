package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/mobistudy/indicators-backend-go/internal/config"
)

// Consumer routes trigger topics to the handlers
type Consumer struct {
	router *message.Router
}

// NewConsumer registers both trigger handlers on a watermill router
func NewConsumer(cfg config.EventsConfig, sub message.Subscriber, handlers *Handlers, logger watermill.LoggerAdapter) (*Consumer, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryCount,
		InitialInterval: cfg.RetryInterval,
		MaxInterval:     10 * cfg.RetryInterval,
		Multiplier:      2.0,
		Logger:          logger,
	}
	router.AddMiddleware(retry.Middleware)

	router.AddConsumerHandler("task-result-submitted", cfg.SubmittedTopic, sub, handlers.HandleSubmitted)
	router.AddConsumerHandler("indicator-run-requested", cfg.RunRequestedTopic, sub, handlers.HandleRunRequested)

	return &Consumer{router: router}, nil
}

// Run blocks until ctx is cancelled or the router is closed
func (c *Consumer) Run(ctx context.Context) error {
	return c.router.Run(ctx)
}

// Running is closed once all handlers are subscribed
func (c *Consumer) Running() chan struct{} {
	return c.router.Running()
}

// Close stops the router
func (c *Consumer) Close() error {
	return c.router.Close()
}
