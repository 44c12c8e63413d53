package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mobistudy/indicators-backend-go/internal/config"
)

// PubSub is a publisher and subscriber pair over one backend
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error
}

// Close closes both sides
func (p *PubSub) Close() error {
	var firstErr error
	for _, c := range p.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewPubSub creates the configured backend
func NewPubSub(ctx context.Context, cfg config.EventsConfig, logger watermill.LoggerAdapter) (*PubSub, error) {
	switch cfg.Backend {
	case "gochannel":
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &PubSub{Publisher: ch, Subscriber: ch, closers: []func() error{ch.Close}}, nil
	case "nats":
		return newNATSPubSub(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

func natsOptions(logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

func newNATSPubSub(ctx context.Context, cfg config.EventsConfig, logger watermill.LoggerAdapter) (*PubSub, error) {
	if err := ensureStream(ctx, cfg); err != nil {
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOptions(logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOptions(logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			AckAsync:      false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(cfg.Stream),
				natsgo.DeliverNew(),
				natsgo.AckWait(30 * time.Second),
			},
			DurablePrefix: cfg.DurableName,
		},
	}, logger)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &PubSub{Publisher: pub, Subscriber: sub, closers: []func() error{sub.Close, pub.Close}}, nil
}

// ensureStream creates or updates the stream carrying both trigger topics
func ensureStream(ctx context.Context, cfg config.EventsConfig) error {
	nc, err := natsgo.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubmittedTopic, cfg.RunRequestedTopic},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}
	return nil
}
