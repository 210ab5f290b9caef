// Package event defines the typed records emitted after every applied engine
// operation. Events are published outward and appended to the operation log;
// they are never consumed back by the engine.
package event

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Type discriminator for event payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeCollateralDeposited
	TypeDebtMinted
	TypeCollateralRedeemed
	TypeDebtBurned
	TypePositionLiquidated
)

func (t Type) String() string {
	switch t {
	case TypeCollateralDeposited:
		return "CollateralDeposited"
	case TypeDebtMinted:
		return "DebtMinted"
	case TypeCollateralRedeemed:
		return "CollateralRedeemed"
	case TypeDebtBurned:
		return "DebtBurned"
	case TypePositionLiquidated:
		return "PositionLiquidated"
	default:
		return "Unknown"
	}
}

// Event is the interface all operation events implement.
type Event interface {
	// IdempotencyKey is the stable dedup key for downstream consumers.
	IdempotencyKey() string
	// EventType returns the discriminator.
	EventType() Type
	// AccountID is the position whose state the event describes.
	AccountID() uuid.UUID
}

type CollateralDeposited struct {
	OperationID uuid.UUID `json:"operation_id"`
	Account     uuid.UUID `json:"account"`
	Asset       string    `json:"asset"`
	Amount      *big.Int  `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *CollateralDeposited) IdempotencyKey() string { return e.OperationID.String() }
func (e *CollateralDeposited) EventType() Type        { return TypeCollateralDeposited }
func (e *CollateralDeposited) AccountID() uuid.UUID   { return e.Account }

type DebtMinted struct {
	OperationID  uuid.UUID `json:"operation_id"`
	Account      uuid.UUID `json:"account"`
	Amount       *big.Int  `json:"amount"`
	HealthFactor *big.Int  `json:"health_factor"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *DebtMinted) IdempotencyKey() string { return e.OperationID.String() }
func (e *DebtMinted) EventType() Type        { return TypeDebtMinted }
func (e *DebtMinted) AccountID() uuid.UUID   { return e.Account }

type CollateralRedeemed struct {
	OperationID uuid.UUID `json:"operation_id"`
	Account     uuid.UUID `json:"account"`
	Asset       string    `json:"asset"`
	Amount      *big.Int  `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *CollateralRedeemed) IdempotencyKey() string { return e.OperationID.String() }
func (e *CollateralRedeemed) EventType() Type        { return TypeCollateralRedeemed }
func (e *CollateralRedeemed) AccountID() uuid.UUID   { return e.Account }

type DebtBurned struct {
	OperationID uuid.UUID `json:"operation_id"`
	Account     uuid.UUID `json:"account"`
	Amount      *big.Int  `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *DebtBurned) IdempotencyKey() string { return e.OperationID.String() }
func (e *DebtBurned) EventType() Type        { return TypeDebtBurned }
func (e *DebtBurned) AccountID() uuid.UUID   { return e.Account }

type PositionLiquidated struct {
	OperationID        uuid.UUID `json:"operation_id"`
	Borrower           uuid.UUID `json:"borrower"`
	Liquidator         uuid.UUID `json:"liquidator"`
	Asset              string    `json:"asset"`
	DebtCovered        *big.Int  `json:"debt_covered"`
	CollateralSeized   *big.Int  `json:"collateral_seized"`
	HealthFactorBefore *big.Int  `json:"health_factor_before"`
	HealthFactorAfter  *big.Int  `json:"health_factor_after"`
	Timestamp          time.Time `json:"timestamp"`
}

func (e *PositionLiquidated) IdempotencyKey() string { return e.OperationID.String() }
func (e *PositionLiquidated) EventType() Type        { return TypePositionLiquidated }
func (e *PositionLiquidated) AccountID() uuid.UUID   { return e.Borrower }
