package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"alertrouter/internal/config"

	"github.com/nats-io/nats.go"
)

// NATSSubscriber consumes webhook payloads from a JetStream queue consumer
// and runs each through the same pipeline as the HTTP endpoint.
// Params: NATS connection and queue subscription.
// Returns: ingest lifecycle handle.
type NATSSubscriber struct {
	nc  *nats.Conn
	sub *nats.Subscription
	log *slog.Logger
}

// NewNATSSubscriber starts the JetStream queue consumer.
// Params: NATS ingest config, processor, and log destination.
// Returns: started subscriber or initialization error.
func NewNATSSubscriber(cfg config.NATSIngestConfig, processor Processor, log *slog.Logger) (*NATSSubscriber, error) {
	nc, err := nats.Connect(strings.Join(cfg.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats ingest: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for ingest: %w", err)
	}

	subscriber := &NATSSubscriber{nc: nc, log: log}
	subOpts := []nats.SubOpt{
		nats.BindStream(cfg.Stream),
		nats.Durable(cfg.ConsumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(time.Duration(cfg.AckWaitSec) * time.Second),
		nats.MaxDeliver(cfg.MaxDeliver),
		nats.MaxAckPending(cfg.MaxAckPending),
		nats.DeliverAll(),
	}
	sub, err := js.QueueSubscribe(cfg.Subject, cfg.DeliverGroup, func(message *nats.Msg) {
		// Processing never errors; a bad payload will not improve on
		// redelivery, so the message is always acked.
		result := processor.Process(context.Background(), message.Data)
		if !result.OK {
			log.Warn("nats ingest payload rejected",
				"subject", message.Subject, "error", result.Error)
		}
		subscriber.ackMessage(message)
	}, subOpts...)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue subscribe %q/%q: %w", cfg.Subject, cfg.DeliverGroup, err)
	}
	subscriber.sub = sub
	return subscriber, nil
}

// ackMessage acknowledges one message and logs ack failures.
// Params: JetStream message.
// Returns: none.
func (s *NATSSubscriber) ackMessage(message *nats.Msg) {
	if message == nil {
		return
	}
	if err := message.Ack(); err != nil {
		s.log.Warn("nats ingest ack failed", "subject", message.Subject, "error", err.Error())
	}
}

// Close drains the subscription and closes the connection.
// Params: none.
// Returns: drain error.
func (s *NATSSubscriber) Close() error {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.nc.Close()
			return err
		}
	}
	s.nc.Close()
	return nil
}
