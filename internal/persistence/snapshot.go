package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// PositionSnapshot is one account's serialized position. Amounts travel as
// decimal strings so arbitrary-precision values survive JSON.
type PositionSnapshot struct {
	Account    uuid.UUID         `json:"account"`
	Collateral map[string]string `json:"collateral"`
	Debt       string            `json:"debt"`
}

// SnapshotData is the full position book at a point in time.
type SnapshotData struct {
	Positions []PositionSnapshot `json:"positions"`
	TakenAt   time.Time          `json:"taken_at"`
}

// PositionSource is the read surface a snapshot is captured from.
type PositionSource interface {
	Accounts() []uuid.UUID
	ConfiguredAssets() []string
	CollateralBalanceOf(account uuid.UUID, asset string) *big.Int
	DebtOf(account uuid.UUID) *big.Int
}

// CaptureSnapshot reads every position out of the source. Zero-balance
// entries are skipped.
func CaptureSnapshot(src PositionSource) *SnapshotData {
	assets := src.ConfiguredAssets()
	snap := &SnapshotData{TakenAt: time.Now().UTC()}

	for _, account := range src.Accounts() {
		pos := PositionSnapshot{
			Account:    account,
			Collateral: make(map[string]string),
			Debt:       src.DebtOf(account).String(),
		}
		empty := pos.Debt == "0"
		for _, asset := range assets {
			if held := src.CollateralBalanceOf(account, asset); held.Sign() > 0 {
				pos.Collateral[asset] = held.String()
				empty = false
			}
		}
		if empty {
			continue
		}
		snap.Positions = append(snap.Positions, pos)
	}
	return snap
}

// SnapshotManager saves and loads position snapshots.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// Save persists one snapshot.
func (sm *SnapshotManager) Save(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO synth_ledger.snapshots (snapshot_id, data, size_bytes, taken_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), data, len(data), snap.TakenAt)
	return err
}

// LoadLatest returns the most recent snapshot, or nil when none exists.
func (sm *SnapshotManager) LoadLatest(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM synth_ledger.snapshots
		ORDER BY taken_at DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Prune deletes snapshots older than the retention window, keeping at least
// the most recent one.
func (sm *SnapshotManager) Prune(ctx context.Context, retain time.Duration) error {
	_, err := sm.db.ExecContext(ctx, `
		DELETE FROM synth_ledger.snapshots
		WHERE taken_at < $1
		  AND snapshot_id <> (
			SELECT snapshot_id FROM synth_ledger.snapshots
			ORDER BY taken_at DESC LIMIT 1
		  )
	`, time.Now().UTC().Add(-retain))
	return err
}
