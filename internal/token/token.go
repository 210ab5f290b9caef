// Package token defines the narrow asset-movement capabilities the engine
// consumes. The engine never inspects collaborator bookkeeping; it only moves
// value and treats a reported failure as a terminal abort of the operation.
package token

import (
	"math/big"

	"github.com/google/uuid"
)

// Token is the generic transferable-asset capability for collateral assets.
type Token interface {
	// Symbol identifies the asset.
	Symbol() string
	// Decimals is the asset's native decimal precision.
	Decimals() uint
	// Transfer moves amount from one account to another. A non-nil error
	// means the transfer did not happen.
	Transfer(from, to uuid.UUID, amount *big.Int) error
}

// Synthetic is the mint/burn/transfer capability of the synthetic asset. The
// synthetic unit is always 18-decimal.
type Synthetic interface {
	// Symbol identifies the synthetic asset.
	Symbol() string
	// Mint creates amount units in the given account.
	Mint(to uuid.UUID, amount *big.Int) error
	// Burn destroys amount units held by the given account. It fails when
	// the balance is insufficient or the amount is not positive.
	Burn(from uuid.UUID, amount *big.Int) error
	// Transfer moves amount between accounts, same contract as Token.
	Transfer(from, to uuid.UUID, amount *big.Int) error
}
