// Package ingestion moves events between the engine and NATS JetStream:
// applied-operation events go out for downstream consumers.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"SynthLedger/internal/event"
	"SynthLedger/internal/observability"
)

const (
	// EventSubjectPrefix is the outbound subject root. The event type is
	// appended: synth.ledger.events.{event_type}.
	EventSubjectPrefix = "synth.ledger.events."

	eventStreamName = "SYNTH_LEDGER_EVENTS"
	eventMaxAge     = 72 * time.Hour
)

// envelope is the outbound wire form. The payload is the typed event itself;
// the envelope repeats the routing fields so consumers can filter without
// decoding the payload.
type envelope struct {
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	Account        string      `json:"account"`
	Payload        interface{} `json:"payload"`
	PublishedAt    time.Time   `json:"published_at"`
}

// OutboundPublisher drains the engine's event channel into JetStream.
// Publishing is best effort: a failed publish is logged and dropped, the
// operation log in Postgres remains the source of truth.
type OutboundPublisher struct {
	js      jetstream.JetStream
	events  <-chan event.Event
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewOutboundPublisher(js jetstream.JetStream, events <-chan event.Event, logger zerolog.Logger, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:      js,
		events:  events,
		logger:  logger,
		metrics: metrics,
	}
}

// Run drains the event channel until the context ends or the channel closes.
func (p *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-p.events:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, evt); err != nil {
				p.logger.Warn().Err(err).
					Str("event_type", evt.EventType().String()).
					Str("idempotency_key", evt.IdempotencyKey()).
					Msg("outbound publish failed")
				continue
			}
			if p.metrics != nil {
				p.metrics.EventsPublished.WithLabelValues(evt.EventType().String()).Inc()
			}
		}
	}
}

func (p *OutboundPublisher) publish(ctx context.Context, evt event.Event) error {
	data, err := json.Marshal(envelope{
		EventType:      evt.EventType().String(),
		IdempotencyKey: evt.IdempotencyKey(),
		Account:        evt.AccountID().String(),
		Payload:        evt,
		PublishedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := EventSubjectPrefix + evt.EventType().String()
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureEventStream creates or updates the outbound events stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      eventStreamName,
		Subjects:  []string{EventSubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    eventMaxAge,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}
