package ingestion

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"SynthLedger/internal/event"
)

func TestEnvelopeCarriesRoutingFields(t *testing.T) {
	evt := &event.DebtMinted{
		OperationID: uuid.New(),
		Account:     uuid.New(),
		Amount:      big.NewInt(1000),
		Timestamp:   time.Now().UTC(),
	}

	data, err := json.Marshal(envelope{
		EventType:      evt.EventType().String(),
		IdempotencyKey: evt.IdempotencyKey(),
		Account:        evt.AccountID().String(),
		Payload:        evt,
		PublishedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	var decoded struct {
		EventType      string          `json:"event_type"`
		IdempotencyKey string          `json:"idempotency_key"`
		Account        string          `json:"account"`
		Payload        json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "DebtMinted", decoded.EventType)
	require.Equal(t, evt.OperationID.String(), decoded.IdempotencyKey)
	require.Equal(t, evt.Account.String(), decoded.Account)

	var payload event.DebtMinted
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	require.Equal(t, "1000", payload.Amount.String())
}

func TestEventSubjects(t *testing.T) {
	evt := &event.PositionLiquidated{OperationID: uuid.New()}
	require.Equal(t, "synth.ledger.events.PositionLiquidated",
		EventSubjectPrefix+evt.EventType().String())
}
