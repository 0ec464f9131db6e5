package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// All event kinds share one stream and one durable consumer. The core
// enforces strictly increasing (blockNumber, logIndex) across kinds, so
// delivery must preserve the publisher's global order; JetStream only
// guarantees that within a single stream consumed by a single consumer.
const (
	EventStreamName = "PERP_EVENTS"
	consumerName    = "indexer-main"
)

// NATSSubscriber subscribes to the event stream and feeds raw payloads into
// the indexer shell via the eventChan, in stream order.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumer  jetstream.ConsumeContext
	log       zerolog.Logger
}

// RawEvent is an unparsed payload from NATS, ready for the shell to validate
// and convert into a typed event.Event.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps a NATS subject to an event type.
type SubjectConfig struct {
	Subject   string
	EventType string
}

// DefaultSubjects returns the standard subject configuration. Each on-chain
// event kind gets its own subject under the shared stream.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "perp.markets.created.>", EventType: "CreatePerpetual"},
		{Subject: "perp.trades.>", EventType: "Trade"},
		{Subject: "perp.liquidation.>", EventType: "Liquidate"},
		{Subject: "perp.pool.margin.>", EventType: "UpdatePoolMargin"},
		{Subject: "perp.funding.accumulator.>", EventType: "UpdateUnitAccumulativeFunding"},
		{Subject: "perp.funding.rate.>", EventType: "UpdateFundingRate"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		log:       log,
	}
}

// Subscribe creates the single durable consumer over the event stream.
// Explicit ACK, max_deliver=5, ack_wait=30s; messages arrive in stream order
// because exactly one consumer callback runs at a time.
func (ns *NATSSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, EventStreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawEvent{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: time.Now(),
			AckFunc:   func() { msg.Ack() },
			NakFunc:   func() { msg.Nak() },
		}

		select {
		case ns.eventChan <- raw:
			// Successfully queued for processing
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	ns.consumer = consumerContext
	ns.log.Info().Str("stream", EventStreamName).Str("consumer", consumerName).Msg("subscribed")
	return nil
}

// EventStreamConfig returns the stream definition: one stream covering every
// event subject, FileStorage, retention=Limits, max_age=72h.
func EventStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:      EventStreamName,
		Subjects:  []string{"perp.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	}
}

// EnsureStream creates the event stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	cfg := EventStreamConfig()
	if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.Name, err)
	}
	log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	return nil
}

// Stop gracefully stops the consumer.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
	ns.log.Info().Msg("nats subscriber stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
