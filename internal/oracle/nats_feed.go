package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// ConnectNATS dials the NATS server and opens a JetStream context over the
// connection. Reconnects are unbounded; a dropped connection resumes where
// the durable consumers left off.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("oracle: connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("oracle: open jetstream: %w", err)
	}
	return nc, js, nil
}

const (
	// PriceSubjectPrefix is the subject root for inbound price updates.
	// Producers publish to synth.prices.{feedID}.
	PriceSubjectPrefix = "synth.prices."

	priceStreamName   = "SYNTH_PRICES"
	priceConsumerName = "ledger-prices"
)

// priceUpdateJSON is the wire format of a price update. Field names use
// snake_case to match upstream producers.
type priceUpdateJSON struct {
	Price       string `json:"price"` // integer at the feed's decimal scale
	Decimals    uint   `json:"decimals"`
	UpdatedAtUs int64  `json:"updated_at_us"`
}

// NATSFeed consumes price updates from JetStream and caches the latest round
// per feed. It implements PriceFeed; staleness is judged against the cached
// round at read time, so a silent producer surfaces as StalePrice.
type NATSFeed struct {
	js     jetstream.JetStream
	logger zerolog.Logger

	mu     sync.RWMutex
	rounds map[string]RoundData

	consume jetstream.ConsumeContext
}

func NewNATSFeed(js jetstream.JetStream, logger zerolog.Logger) *NATSFeed {
	return &NATSFeed{
		js:     js,
		logger: logger,
		rounds: make(map[string]RoundData),
	}
}

// EnsurePriceStream creates the inbound price stream if it does not exist.
func EnsurePriceStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     priceStreamName,
		Subjects: []string{PriceSubjectPrefix + ">"},
		MaxAge:   24 * time.Hour,
	})
	return err
}

// Start creates the durable consumer and begins updating the cache. It
// returns once the consumer is running.
func (f *NATSFeed) Start(ctx context.Context) error {
	consumer, err := f.js.CreateOrUpdateConsumer(ctx, priceStreamName, jetstream.ConsumerConfig{
		Durable:       priceConsumerName,
		FilterSubject: PriceSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		// Only the latest round matters; no need to replay history.
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return fmt.Errorf("oracle: create price consumer: %w", err)
	}

	consume, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := f.apply(msg.Subject(), msg.Data()); err != nil {
			f.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed price update")
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("oracle: consume prices: %w", err)
	}

	f.consume = consume
	return nil
}

// Stop drains the consumer.
func (f *NATSFeed) Stop() {
	if f.consume != nil {
		f.consume.Stop()
	}
}

func (f *NATSFeed) apply(subject string, data []byte) error {
	feedID := strings.TrimPrefix(subject, PriceSubjectPrefix)
	if feedID == "" || feedID == subject {
		return fmt.Errorf("unexpected price subject %q", subject)
	}

	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("parse price update: %w", err)
	}

	price, ok := new(big.Int).SetString(j.Price, 10)
	if !ok {
		return fmt.Errorf("parse price %q", j.Price)
	}

	f.mu.Lock()
	f.rounds[feedID] = RoundData{
		Price:     price,
		Decimals:  j.Decimals,
		UpdatedAt: time.UnixMicro(j.UpdatedAtUs),
	}
	f.mu.Unlock()

	f.logger.Debug().Str("feed", feedID).Str("price", j.Price).Msg("price round cached")
	return nil
}

func (f *NATSFeed) LatestRound(feedID string) (RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	round, ok := f.rounds[feedID]
	if !ok {
		return RoundData{}, ErrUnknownFeed
	}
	return round, nil
}
