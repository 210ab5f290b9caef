// Package query serves read-only views: live positions straight from the
// engine and operation history from the Postgres log.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/engine"
	"SynthLedger/internal/event"
)

// EngineReader is the live read surface the service needs from the engine.
type EngineReader interface {
	AccountInformation(account uuid.UUID) (debt, collateralUsd *big.Int, err error)
	HealthFactor(account uuid.UUID) (*big.Int, error)
	CollateralBalanceOf(account uuid.UUID, asset string) *big.Int
	DebtOf(account uuid.UUID) *big.Int
	ConfiguredAssets() []string
	EngineConstants() engine.Constants
}

// Service answers position and history queries. The db may be nil; history
// queries then fail with ErrNoHistory.
type Service struct {
	engine EngineReader
	db     *sql.DB
}

// ErrNoHistory rejects history queries when no operation log is configured.
var ErrNoHistory = fmt.Errorf("query: operation log not configured")

func NewService(engine EngineReader, db *sql.DB) *Service {
	return &Service{engine: engine, db: db}
}

// Position assembles one account's live position, valued at current oracle
// prices. Oracle failures propagate; a position cannot be priced blind.
func (s *Service) Position(account uuid.UUID) (*PositionResponse, error) {
	debt, collateralUsd, err := s.engine.AccountInformation(account)
	if err != nil {
		return nil, err
	}

	ratio := engine.ComputeHealthFactor(debt, collateralUsd)

	resp := &PositionResponse{
		Account:       account,
		Collateral:    make(map[string]string),
		CollateralUsd: collateralUsd.String(),
		Debt:          debt.String(),
		HealthFactor:  ratio.String(),
		Liquidatable:  ratio.Cmp(engine.MinHealthFactor) < 0,
	}
	for _, asset := range s.engine.ConfiguredAssets() {
		if held := s.engine.CollateralBalanceOf(account, asset); held.Sign() > 0 {
			resp.Collateral[asset] = held.String()
		}
	}
	return resp, nil
}

// Constants reports the engine's risk parameters.
func (s *Service) Constants() engine.Constants {
	return s.engine.EngineConstants()
}

// Operations returns an account's history, newest first, with cursor
// pagination on occurred_at.
func (s *Service) Operations(ctx context.Context, account uuid.UUID, limit int, before *time.Time) ([]OperationRecord, error) {
	if s.db == nil {
		return nil, ErrNoHistory
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT operation_id, event_type, account, payload, occurred_at
		FROM synth_ledger.operations
		WHERE account = $1
	`
	args := []interface{}{account}
	argIdx := 2

	if before != nil {
		query += fmt.Sprintf(" AND occurred_at < $%d", argIdx)
		args = append(args, *before)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	return s.scanRecords(ctx, query, args...)
}

// Liquidations returns recent liquidation events across all accounts.
func (s *Service) Liquidations(ctx context.Context, limit int) ([]OperationRecord, error) {
	if s.db == nil {
		return nil, ErrNoHistory
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	return s.scanRecords(ctx, `
		SELECT operation_id, event_type, account, payload, occurred_at
		FROM synth_ledger.operations
		WHERE event_type = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, event.TypePositionLiquidated.String(), limit)
}

func (s *Service) scanRecords(ctx context.Context, query string, args ...interface{}) ([]OperationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OperationRecord
	for rows.Next() {
		var r OperationRecord
		if err := rows.Scan(&r.OperationID, &r.EventType, &r.Account, &r.Payload, &r.OccurredAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
