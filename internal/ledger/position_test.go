package ledger_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/ledger"
)

func TestPositionBook_InitialBalancesZero(t *testing.T) {
	book := ledger.NewPositionBook()
	account := uuid.New()

	if book.CollateralOf(account, "WETH").Sign() != 0 {
		t.Error("initial collateral should be zero")
	}
	if book.DebtOf(account).Sign() != 0 {
		t.Error("initial debt should be zero")
	}
}

func TestTx_CreditDebit(t *testing.T) {
	book := ledger.NewPositionBook()
	account := uuid.New()

	tx := book.Begin()
	tx.Credit(account, "WETH", big.NewInt(10))
	if err := tx.Debit(account, "WETH", big.NewInt(4)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	tx.Commit()

	if got := book.CollateralOf(account, "WETH"); got.Cmp(big.NewInt(6)) != 0 {
		t.Errorf("collateral = %s, want 6", got)
	}
}

func TestTx_DebitUnderflow(t *testing.T) {
	book := ledger.NewPositionBook()
	account := uuid.New()

	tx := book.Begin()
	tx.Credit(account, "WETH", big.NewInt(5))

	err := tx.Debit(account, "WETH", big.NewInt(6))
	var insufficient *ledger.InsufficientCollateralError
	if !errors.As(err, &insufficient) {
		t.Fatalf("want InsufficientCollateralError, got %v", err)
	}
	if insufficient.Have.Cmp(big.NewInt(5)) != 0 || insufficient.Want.Cmp(big.NewInt(6)) != 0 {
		t.Errorf("error detail: have=%s want=%s", insufficient.Have, insufficient.Want)
	}
}

func TestTx_DebtUnderflow(t *testing.T) {
	book := ledger.NewPositionBook()
	account := uuid.New()

	tx := book.Begin()
	tx.IncreaseDebt(account, big.NewInt(100))

	err := tx.DecreaseDebt(account, big.NewInt(101))
	var insufficient *ledger.InsufficientDebtError
	if !errors.As(err, &insufficient) {
		t.Fatalf("want InsufficientDebtError, got %v", err)
	}
}

func TestTx_RollbackRestoresExactState(t *testing.T) {
	book := ledger.NewPositionBook()
	account := uuid.New()

	seed := book.Begin()
	seed.Credit(account, "WETH", big.NewInt(10))
	seed.IncreaseDebt(account, big.NewInt(100))
	seed.Commit()

	tx := book.Begin()
	tx.Credit(account, "WETH", big.NewInt(3))
	if err := tx.Debit(account, "WETH", big.NewInt(7)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	tx.IncreaseDebt(account, big.NewInt(50))
	if err := tx.DecreaseDebt(account, big.NewInt(20)); err != nil {
		t.Fatalf("decrease debt: %v", err)
	}
	tx.Rollback()

	if got := book.CollateralOf(account, "WETH"); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("collateral after rollback = %s, want 10", got)
	}
	if got := book.DebtOf(account); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("debt after rollback = %s, want 100", got)
	}
}

func TestTx_RollbackAfterCommitIsNoop(t *testing.T) {
	book := ledger.NewPositionBook()
	account := uuid.New()

	tx := book.Begin()
	tx.Credit(account, "WETH", big.NewInt(10))
	tx.Commit()
	tx.Rollback()

	if got := book.CollateralOf(account, "WETH"); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("collateral = %s, want 10", got)
	}
}

func TestPositionBook_AccountsStableOrder(t *testing.T) {
	book := ledger.NewPositionBook()
	for i := 0; i < 5; i++ {
		tx := book.Begin()
		tx.Credit(uuid.New(), "WETH", big.NewInt(1))
		tx.Commit()
	}

	first := book.Accounts()
	second := book.Accounts()
	if len(first) != 5 {
		t.Fatalf("want 5 accounts, got %d", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("Accounts() order should be stable")
		}
	}
}

func TestPositionBook_CopiesDoNotAlias(t *testing.T) {
	book := ledger.NewPositionBook()
	account := uuid.New()

	tx := book.Begin()
	tx.Credit(account, "WETH", big.NewInt(10))
	tx.Commit()

	got := book.CollateralOf(account, "WETH")
	got.SetInt64(999)

	if book.CollateralOf(account, "WETH").Cmp(big.NewInt(10)) != 0 {
		t.Error("CollateralOf must return a copy")
	}
}
