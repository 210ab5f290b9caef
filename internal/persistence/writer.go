// Package persistence writes the durable operation log and position
// snapshots to Postgres. The log is append-only and idempotent on
// operation_id; the in-memory ledger remains the authority, Postgres is the
// audit trail and the recovery source.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/event"
)

// OperationRow is one row of synth_ledger.operations.
type OperationRow struct {
	OperationID uuid.UUID
	EventType   string
	Account     uuid.UUID
	Payload     []byte
	OccurredAt  time.Time
}

// RowFromEvent flattens a typed engine event into its log row.
func RowFromEvent(evt event.Event) (OperationRow, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return OperationRow{}, fmt.Errorf("marshal payload: %w", err)
	}

	id, err := uuid.Parse(evt.IdempotencyKey())
	if err != nil {
		return OperationRow{}, fmt.Errorf("parse operation id: %w", err)
	}

	return OperationRow{
		OperationID: id,
		EventType:   evt.EventType().String(),
		Account:     evt.AccountID(),
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}, nil
}

// OperationLogWriter batch-inserts operation rows using multi-row INSERT.
// ON CONFLICT DO NOTHING makes replays after a crash harmless.
type OperationLogWriter struct {
	db *sql.DB
}

func NewOperationLogWriter(db *sql.DB) *OperationLogWriter {
	return &OperationLogWriter{db: db}
}

// WriteBatch inserts the rows inside the given transaction.
func (w *OperationLogWriter) WriteBatch(ctx context.Context, tx *sql.Tx, rows []OperationRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO synth_ledger.operations
		(operation_id, event_type, account, payload, occurred_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)
	for i, r := range rows {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, r.OperationID, r.EventType, r.Account, r.Payload, r.OccurredAt)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (operation_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
