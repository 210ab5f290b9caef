package oracle_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"SynthLedger/internal/oracle"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestReadPrice_FreshRound(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	feed := oracle.NewStaticFeed()
	feed.Set("ETH/USD", big.NewInt(2000_00000000), 8, now.Add(-time.Minute))

	adapter := oracle.NewAdapter(feed, time.Hour).WithClock(fixedClock(now))

	round, err := adapter.ReadPrice("ETH/USD")
	require.NoError(t, err)
	require.Equal(t, 0, round.Price.Cmp(big.NewInt(2000_00000000)))
	require.Equal(t, uint(8), round.Decimals)
}

func TestReadPrice_StaleRound(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	feed := oracle.NewStaticFeed()
	feed.Set("ETH/USD", big.NewInt(2000_00000000), 8, now.Add(-2*time.Hour))

	adapter := oracle.NewAdapter(feed, time.Hour).WithClock(fixedClock(now))

	_, err := adapter.ReadPrice("ETH/USD")
	var stale *oracle.StalePriceError
	require.ErrorAs(t, err, &stale)
	require.Equal(t, "ETH/USD", stale.FeedID)
	require.Equal(t, 2*time.Hour, stale.Age)
	require.Equal(t, time.Hour, stale.Bound)
}

func TestReadPrice_ExactlyAtBoundIsUsable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	feed := oracle.NewStaticFeed()
	feed.Set("ETH/USD", big.NewInt(1), 8, now.Add(-time.Hour))

	adapter := oracle.NewAdapter(feed, time.Hour).WithClock(fixedClock(now))

	_, err := adapter.ReadPrice("ETH/USD")
	require.NoError(t, err)
}

func TestReadPrice_NonPositive(t *testing.T) {
	now := time.Now()

	feed := oracle.NewStaticFeed()
	feed.Set("BTC/USD", big.NewInt(0), 8, now)

	adapter := oracle.NewAdapter(feed, time.Hour).WithClock(fixedClock(now))

	_, err := adapter.ReadPrice("BTC/USD")
	var invalid *oracle.InvalidPriceError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "BTC/USD", invalid.FeedID)
}

func TestReadPrice_UnknownFeed(t *testing.T) {
	adapter := oracle.NewAdapter(oracle.NewStaticFeed(), time.Hour)

	_, err := adapter.ReadPrice("DOGE/USD")
	require.True(t, errors.Is(err, oracle.ErrUnknownFeed))
}

func TestReadPrice_DefaultBound(t *testing.T) {
	adapter := oracle.NewAdapter(oracle.NewStaticFeed(), 0)
	require.Equal(t, oracle.DefaultStalenessBound, adapter.StalenessBound())
}
