package oracle

import (
	"fmt"
	"math/big"
	"time"
)

// DefaultStalenessBound is 3x the one-hour heartbeat of the slowest supported
// feeds. A reading older than this is unusable regardless of its value.
const DefaultStalenessBound = 3 * time.Hour

// StalePriceError reports a reading older than the configured bound.
type StalePriceError struct {
	FeedID string
	Age    time.Duration
	Bound  time.Duration
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("oracle: stale price for feed %s: age %s exceeds bound %s", e.FeedID, e.Age, e.Bound)
}

// InvalidPriceError reports a non-positive reported price.
type InvalidPriceError struct {
	FeedID string
	Price  *big.Int
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("oracle: invalid price for feed %s: %s", e.FeedID, e.Price)
}

// Adapter wraps a PriceFeed with staleness and validity checks. It performs no
// retries; a failed read aborts the enclosing operation.
type Adapter struct {
	source PriceFeed
	bound  time.Duration
	now    func() time.Time
}

// NewAdapter builds an adapter with the given staleness bound. A zero bound
// selects DefaultStalenessBound.
func NewAdapter(source PriceFeed, bound time.Duration) *Adapter {
	if bound <= 0 {
		bound = DefaultStalenessBound
	}
	return &Adapter{source: source, bound: bound, now: time.Now}
}

// WithClock overrides the adapter's clock. Test hook.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

// StalenessBound returns the configured maximum reading age.
func (a *Adapter) StalenessBound() time.Duration {
	return a.bound
}

// ReadPrice returns the latest sanitized reading for a feed. It fails with
// *StalePriceError when the reading's age exceeds the bound and with
// *InvalidPriceError when the reported price is not strictly positive.
func (a *Adapter) ReadPrice(feedID string) (RoundData, error) {
	round, err := a.source.LatestRound(feedID)
	if err != nil {
		return RoundData{}, fmt.Errorf("oracle: read feed %s: %w", feedID, err)
	}

	if round.Price == nil || round.Price.Sign() <= 0 {
		return RoundData{}, &InvalidPriceError{FeedID: feedID, Price: round.Price}
	}

	age := a.now().Sub(round.UpdatedAt)
	if age > a.bound {
		return RoundData{}, &StalePriceError{FeedID: feedID, Age: age, Bound: a.bound}
	}

	return round, nil
}
