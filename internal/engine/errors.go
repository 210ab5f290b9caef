package engine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

var (
	// ErrNeedsMoreThanZero rejects zero or negative amounts on every
	// operation, even where zero would be a no-op.
	ErrNeedsMoreThanZero = errors.New("engine: amount must be more than zero")

	// ErrReentrantCall rejects a mutating call made from within an
	// in-progress mutating operation.
	ErrReentrantCall = errors.New("engine: reentrant call")
)

// LengthMismatchError reports construction with unequal collateral and feed
// lists.
type LengthMismatchError struct {
	Assets int
	Feeds  int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("engine: %d collateral assets but %d price feeds", e.Assets, e.Feeds)
}

// TokenNotAllowedError reports an unconfigured collateral asset. The check is
// by identity, before any transfer is attempted.
type TokenNotAllowedError struct {
	Asset string
}

func (e *TokenNotAllowedError) Error() string {
	return fmt.Sprintf("engine: token %s is not an accepted collateral asset", e.Asset)
}

// HealthFactorBrokenError reports a post-operation health factor below the
// minimum. Ratio is the computed wad-scale factor so callers can diagnose
// margin.
type HealthFactorBrokenError struct {
	Account uuid.UUID
	Ratio   *big.Int
}

func (e *HealthFactorBrokenError) Error() string {
	return fmt.Sprintf("engine: health factor broken for %s: %s", e.Account, e.Ratio)
}

// HealthFactorOkError rejects liquidating an already-healthy position.
type HealthFactorOkError struct {
	Account uuid.UUID
	Ratio   *big.Int
}

func (e *HealthFactorOkError) Error() string {
	return fmt.Sprintf("engine: position %s is healthy (factor %s), not liquidatable", e.Account, e.Ratio)
}

// HealthFactorNotImprovedError rejects a liquidation that did not strictly
// raise the target's health factor.
type HealthFactorNotImprovedError struct {
	Account uuid.UUID
	Before  *big.Int
	After   *big.Int
}

func (e *HealthFactorNotImprovedError) Error() string {
	return fmt.Sprintf("engine: liquidation of %s did not improve health factor (%s -> %s)", e.Account, e.Before, e.After)
}

// TransferFailedError surfaces a collateral or synthetic transfer reported as
// failed by the collaborator. Never masked, never retried.
type TransferFailedError struct {
	Asset  string
	From   uuid.UUID
	To     uuid.UUID
	Amount *big.Int
	Cause  error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("engine: transfer of %s %s from %s to %s failed: %v", e.Amount, e.Asset, e.From, e.To, e.Cause)
}

func (e *TransferFailedError) Unwrap() error { return e.Cause }

// MintFailedError surfaces a synthetic mint reported as failed.
type MintFailedError struct {
	Account uuid.UUID
	Amount  *big.Int
	Cause   error
}

func (e *MintFailedError) Error() string {
	return fmt.Sprintf("engine: mint of %s to %s failed: %v", e.Amount, e.Account, e.Cause)
}

func (e *MintFailedError) Unwrap() error { return e.Cause }

// BurnFailedError surfaces a synthetic burn reported as failed.
type BurnFailedError struct {
	Account uuid.UUID
	Amount  *big.Int
	Cause   error
}

func (e *BurnFailedError) Error() string {
	return fmt.Sprintf("engine: burn of %s held by %s failed: %v", e.Amount, e.Account, e.Cause)
}

func (e *BurnFailedError) Unwrap() error { return e.Cause }
