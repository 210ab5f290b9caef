// Package engine implements the collateral/debt orchestrator: it composes the
// position ledger, the price oracle and the token collaborators into the
// public deposit/mint/redeem/burn/liquidate operations, and enforces the
// health-factor invariant around every state transition.
package engine

import (
	"math/big"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/token"
)

// Risk constants. Threshold and bonus are integer percentages; all division
// truncates toward zero so rounding never favors the borrower or liquidator.
const (
	// LiquidationThreshold of 50% means positions must stay 200%
	// overcollateralized.
	LiquidationThreshold = 50
	// LiquidationPrecision is the denominator for threshold math.
	LiquidationPrecision = 100
	// LiquidationBonus is the liquidator's collateral discount in percent.
	LiquidationBonus = 10
)

var (
	// MinHealthFactor is 1.0 at wad scale; below it a position is
	// liquidatable.
	MinHealthFactor = new(big.Int).Set(fixedpoint.Wad)

	// MaxHealthFactor is the sentinel for debt-free positions.
	MaxHealthFactor = new(big.Int).Set(fixedpoint.MaxUint256)
)

// CollateralAsset pairs one accepted collateral token with its price feed.
// The set of configured assets is immutable for the engine's lifetime.
type CollateralAsset struct {
	Token  token.Token
	FeedID string
}

// Config assembles an engine. Collateral and Feeds are positional pairs and
// must have equal length.
type Config struct {
	Collateral []token.Token
	Feeds      []string
	Synth      token.Synthetic
	Oracle     *oracle.Adapter

	// Vault is the account identity under which the engine holds locked
	// collateral and synthetic units pulled for burning.
	Vault uuid.UUID

	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// Events receives one typed event per applied operation. Optional;
	// sends block when the channel is full, so the consumer must keep
	// draining for the engine's whole lifetime.
	Events chan<- event.Event
}

// Constants reports the engine's configured risk parameters, wad scale where
// applicable.
type Constants struct {
	Precision            *big.Int `json:"precision"`
	LiquidationThreshold int64    `json:"liquidation_threshold"`
	LiquidationPrecision int64    `json:"liquidation_precision"`
	LiquidationBonus     int64    `json:"liquidation_bonus"`
	MinHealthFactor      *big.Int `json:"min_health_factor"`
}
