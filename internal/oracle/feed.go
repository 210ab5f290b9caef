// Package oracle supplies sanitized USD prices to the engine. A PriceFeed is
// the raw injected capability; the Adapter layers the freshness and validity
// checks on top of it. Feeds are read-only and safe for concurrent use.
package oracle

import (
	"errors"
	"math/big"
	"sync"
	"time"
)

// RoundData is one raw reading from a price feed.
type RoundData struct {
	// Price at the feed's native decimal scale.
	Price *big.Int
	// Decimals is the feed's decimal precision (8 for Chainlink-style feeds).
	Decimals uint
	// UpdatedAt is when the feed last reported.
	UpdatedAt time.Time
}

// PriceFeed exposes the latest reading for a feed identifier.
type PriceFeed interface {
	LatestRound(feedID string) (RoundData, error)
}

// ErrUnknownFeed is returned when a feed identifier has never reported.
var ErrUnknownFeed = errors.New("oracle: unknown feed")

// StaticFeed is an in-memory PriceFeed for tests and local mode.
type StaticFeed struct {
	mu     sync.RWMutex
	rounds map[string]RoundData
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{rounds: make(map[string]RoundData)}
}

// Set records the latest round for a feed.
func (f *StaticFeed) Set(feedID string, price *big.Int, decimals uint, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds[feedID] = RoundData{
		Price:     new(big.Int).Set(price),
		Decimals:  decimals,
		UpdatedAt: updatedAt,
	}
}

func (f *StaticFeed) LatestRound(feedID string) (RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	round, ok := f.rounds[feedID]
	if !ok {
		return RoundData{}, ErrUnknownFeed
	}
	return round, nil
}
