package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"SerpLedger/internal/observability"
)

// NATSSubscriber subscribes to JetStream subjects and feeds raw events
// into the shell via eventChan. The shell parses and validates before
// anything reaches the deterministic core.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// RawEvent is an unparsed event from NATS. AckFunc is called after the
// core has accepted (or deliberately skipped) the event; NakFunc
// triggers redelivery.
type RawEvent struct {
	Subject   string
	Data      []byte
	EventType string
	Timestamp time.Time
	AckFunc   func()
	NakFunc   func()
}

// SubjectConfig maps a NATS subject to an event type.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration. Each
// event type gets its own durable consumer so feeds scale
// independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "serp.positions.adjust.>", EventType: "PositionAdjust", ConsumerName: "ledger-pos-adjust", StreamName: "SERP_POSITIONS"},
		{Subject: "serp.positions.update.>", EventType: "PositionUpdate", ConsumerName: "ledger-pos-update", StreamName: "SERP_POSITIONS"},
		{Subject: "serp.positions.transfer.>", EventType: "PositionTransfer", ConsumerName: "ledger-pos-transfer", StreamName: "SERP_POSITIONS"},
		{Subject: "serp.prices.market.>", EventType: "MarketPriceUpdate", ConsumerName: "ledger-price-market", StreamName: "SERP_PRICES"},
		{Subject: "serp.prices.peg.>", EventType: "PegPriceUpdate", ConsumerName: "ledger-price-peg", StreamName: "SERP_PRICES"},
		{Subject: "serp.treasury.serplus.>", EventType: "SerplusDeposit", ConsumerName: "ledger-serplus", StreamName: "SERP_TREASURY"},
		{Subject: "serp.treasury.auction.serplus.>", EventType: "SerplusAuctionRequest", ConsumerName: "ledger-auction-serplus", StreamName: "SERP_TREASURY"},
		{Subject: "serp.treasury.auction.standard.>", EventType: "StandardAuctionRequest", ConsumerName: "ledger-auction-standard", StreamName: "SERP_TREASURY"},
		{Subject: "serp.treasury.lotsize.>", EventType: "LotSizeUpdate", ConsumerName: "ledger-lotsize", StreamName: "SERP_TREASURY"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		logger:    observability.NewLogger("ingestion"),
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK with a bounded redelivery budget.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		cfg := cfg
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				EventType: cfg.EventType,
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().
			Str("subject", cfg.Subject).
			Str("consumer", cfg.ConsumerName).
			Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't
// exist. Streams use file storage with a 72h retention window; the
// Postgres event log is the durable record, NATS only buffers.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "SERP_POSITIONS",
			Subjects:  []string{"serp.positions.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SERP_PRICES",
			Subjects:  []string{"serp.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "SERP_TREASURY",
			Subjects:  []string{"serp.treasury.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	logger := observability.NewLogger("ingestion")
	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream
// context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
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
