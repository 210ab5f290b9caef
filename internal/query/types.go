package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PositionResponse is one account's live position. Amounts are decimal
// strings: collateral at asset-native precision, USD values and the health
// factor at 18-decimal fixed point.
type PositionResponse struct {
	Account       uuid.UUID         `json:"account"`
	Collateral    map[string]string `json:"collateral"`
	CollateralUsd string            `json:"collateral_usd"`
	Debt          string            `json:"debt"`
	HealthFactor  string            `json:"health_factor"`
	Liquidatable  bool              `json:"liquidatable"`
}

// OperationRecord is one row of the durable operation log.
type OperationRecord struct {
	OperationID uuid.UUID       `json:"operation_id"`
	EventType   string          `json:"event_type"`
	Account     uuid.UUID       `json:"account"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
