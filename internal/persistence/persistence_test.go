package persistence

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"SynthLedger/internal/event"
	"SynthLedger/internal/testutil"
)

func TestRowFromEvent(t *testing.T) {
	evt := &event.CollateralDeposited{
		OperationID: uuid.New(),
		Account:     uuid.New(),
		Asset:       "WETH",
		Amount:      big.NewInt(1_000_000),
		Timestamp:   time.Now().UTC(),
	}

	row, err := RowFromEvent(evt)
	require.NoError(t, err)
	require.Equal(t, evt.OperationID, row.OperationID)
	require.Equal(t, "CollateralDeposited", row.EventType)
	require.Equal(t, evt.Account, row.Account)
	require.Contains(t, string(row.Payload), `"asset":"WETH"`)
	require.False(t, row.OccurredAt.IsZero())
}

type staticSource struct {
	accounts   []uuid.UUID
	assets     []string
	collateral map[uuid.UUID]map[string]*big.Int
	debt       map[uuid.UUID]*big.Int
}

func (s *staticSource) Accounts() []uuid.UUID      { return s.accounts }
func (s *staticSource) ConfiguredAssets() []string { return s.assets }

func (s *staticSource) CollateralBalanceOf(account uuid.UUID, asset string) *big.Int {
	if held, ok := s.collateral[account][asset]; ok {
		return held
	}
	return new(big.Int)
}

func (s *staticSource) DebtOf(account uuid.UUID) *big.Int {
	if d, ok := s.debt[account]; ok {
		return d
	}
	return new(big.Int)
}

func TestCaptureSnapshotSkipsEmptyPositions(t *testing.T) {
	funded := uuid.New()
	empty := uuid.New()
	debtOnly := uuid.New()

	src := &staticSource{
		accounts: []uuid.UUID{funded, empty, debtOnly},
		assets:   []string{"WETH", "WBTC"},
		collateral: map[uuid.UUID]map[string]*big.Int{
			funded: {"WETH": big.NewInt(500)},
		},
		debt: map[uuid.UUID]*big.Int{
			funded:   big.NewInt(100),
			debtOnly: big.NewInt(42),
		},
	}

	snap := CaptureSnapshot(src)
	require.Len(t, snap.Positions, 2)

	byAccount := make(map[uuid.UUID]PositionSnapshot)
	for _, pos := range snap.Positions {
		byAccount[pos.Account] = pos
	}
	require.Equal(t, "500", byAccount[funded].Collateral["WETH"])
	require.NotContains(t, byAccount[funded].Collateral, "WBTC")
	require.Equal(t, "100", byAccount[funded].Debt)
	require.Equal(t, "42", byAccount[debtOnly].Debt)
	require.NotContains(t, byAccount, empty)
}

func TestResetFlushTimerDrainsFiredTimer(t *testing.T) {
	timer := time.NewTimer(0)
	time.Sleep(10 * time.Millisecond)

	resetFlushTimer(timer, 60*time.Millisecond)

	select {
	case <-timer.C:
		t.Fatal("timer fired immediately after reset")
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-timer.C:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timer did not fire after the reset interval")
	}
}

func TestOperationLogRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx))

	account := uuid.New()
	rows := []OperationRow{
		{OperationID: uuid.New(), EventType: "CollateralDeposited", Account: account,
			Payload: []byte(`{"asset":"WETH"}`), OccurredAt: time.Now().UTC()},
		{OperationID: uuid.New(), EventType: "DebtMinted", Account: account,
			Payload: []byte(`{"amount":"100"}`), OccurredAt: time.Now().UTC()},
	}

	writer := NewOperationLogWriter(db)
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, writer.WriteBatch(ctx, tx, rows))
	require.NoError(t, tx.Commit())

	// Replaying the same batch must be a no-op.
	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, writer.WriteBatch(ctx, tx, rows))
	require.NoError(t, tx.Commit())

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM synth_ledger.operations WHERE account = $1`, account).Scan(&count))
	require.Equal(t, 2, count)
}

func TestSnapshotSaveAndLoad(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx))

	sm := NewSnapshotManager(db)

	none, err := sm.LoadLatest(ctx)
	require.NoError(t, err)
	require.Nil(t, none)

	account := uuid.New()
	first := &SnapshotData{
		Positions: []PositionSnapshot{{
			Account:    account,
			Collateral: map[string]string{"WETH": "1000000000000000000"},
			Debt:       "500",
		}},
		TakenAt: time.Now().UTC().Add(-time.Minute),
	}
	second := &SnapshotData{TakenAt: time.Now().UTC()}

	require.NoError(t, sm.Save(ctx, first))
	require.NoError(t, sm.Save(ctx, second))

	latest, err := sm.LoadLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Empty(t, latest.Positions)

	require.NoError(t, sm.Prune(ctx, 0))

	latest, err = sm.LoadLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
}
