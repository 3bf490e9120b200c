package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	appconfig "github.com/wolfman30/hmpv-lab-platform/internal/config"
	"github.com/wolfman30/hmpv-lab-platform/internal/events"
	"github.com/wolfman30/hmpv-lab-platform/internal/notify"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

// EventDeps carries the clients the event pipeline may attach to. Nil
// fields disable the matching transport.
type EventDeps struct {
	SQS    events.SQSAPI
	Email  notify.EmailSender
	Outbox events.OutboxDB
	// DialMQTT replaces the paho connect step when set.
	DialMQTT func(broker, clientID string) (events.MQTTClient, func(), error)
}

// EventPipeline is the dispatcher plus, when the outbox is enabled, the
// deliverer that relays stored events to the transports.
type EventPipeline struct {
	Dispatcher *events.Dispatcher
	Deliverer  *events.Deliverer
	Transports []string

	closers []func() error
	wg      sync.WaitGroup
}

// BuildEventPipeline wires every configured transport. With OUTBOX_ENABLED
// the dispatcher writes to Postgres and the deliverer fans out from there;
// otherwise the dispatcher publishes to the transports directly.
func BuildEventPipeline(cfg *appconfig.Config, deps EventDeps, logger *logging.Logger) (*EventPipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &EventPipeline{}

	var transports events.Fanout
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		transports = append(transports, kp)
		p.closers = append(p.closers, kp.Close)
	}
	if deps.SQS != nil && strings.TrimSpace(cfg.EventsQueueURL) != "" {
		transports = append(transports, events.NewSQSPublisher(deps.SQS, cfg.EventsQueueURL))
	}
	if strings.TrimSpace(cfg.MQTTBroker) != "" {
		dial := deps.DialMQTT
		if dial == nil {
			dial = dialMQTT
		}
		client, disconnect, err := dial(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		transports = append(transports, events.NewMQTTPublisher(client, cfg.MQTTTopic))
		p.closers = append(p.closers, func() error { disconnect(); return nil })
	}
	if strings.TrimSpace(cfg.EventsWebhookURL) != "" {
		transports = append(transports, events.NewWebhookPublisher(cfg.EventsWebhookURL, 5*time.Second))
	}
	for _, t := range transports {
		p.Transports = append(p.Transports, t.Name())
	}

	var notifier events.Publisher
	if deps.Email != nil {
		notifier = notify.NewNotifier(deps.Email, cfg.PublicBaseURL, logger)
	}

	if cfg.OutboxEnabled {
		if deps.Outbox == nil {
			_ = p.Close()
			return nil, fmt.Errorf("bootstrap: OUTBOX_ENABLED requires DATABASE_URL")
		}
		outbox := events.NewOutboxStore(deps.Outbox)
		p.Dispatcher = events.NewDispatcher(cfg.EventQueueSize, logger, outbox, notifier)
		p.Deliverer = events.NewDeliverer(outbox, transports, logger)
		return p, nil
	}

	pubs := make([]events.Publisher, 0, len(transports)+1)
	pubs = append(pubs, transports...)
	pubs = append(pubs, notifier)
	p.Dispatcher = events.NewDispatcher(cfg.EventQueueSize, logger, pubs...)
	return p, nil
}

func dialMQTT(broker, clientID string) (events.MQTTClient, func(), error) {
	client, err := events.NewMQTTClient(broker, clientID)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { client.Disconnect(250) }, nil
}

// Start runs the dispatcher and deliverer until ctx is cancelled.
func (p *EventPipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Dispatcher.Run(ctx)
	}()
	if p.Deliverer != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.Deliverer.Start(ctx)
		}()
	}
}

// Wait blocks until Start's goroutines have returned.
func (p *EventPipeline) Wait() {
	p.wg.Wait()
}

// Close releases transport connections.
func (p *EventPipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
