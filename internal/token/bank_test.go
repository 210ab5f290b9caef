package token

import (
	"math/big"
	"testing"

	"github.com/google/uuid"
)

func TestBankMintBurnSupply(t *testing.T) {
	bank := NewBank("sUSD", 18)
	account := uuid.New()

	if err := bank.Mint(account, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := bank.BalanceOf(account); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("balance = %s, want 500", got)
	}
	if got := bank.TotalSupply(); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("supply = %s, want 500", got)
	}

	if err := bank.Burn(account, big.NewInt(200)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := bank.BalanceOf(account); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("balance after burn = %s, want 300", got)
	}
	if got := bank.TotalSupply(); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("supply after burn = %s, want 300", got)
	}
}

func TestBankTransfer(t *testing.T) {
	bank := NewBank("WETH", 18)
	from, to := uuid.New(), uuid.New()

	if err := bank.Mint(from, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := bank.Transfer(from, to, big.NewInt(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := bank.BalanceOf(from); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("from balance = %s, want 40", got)
	}
	if got := bank.BalanceOf(to); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("to balance = %s, want 60", got)
	}
}

func TestBankRejectsOverdraft(t *testing.T) {
	bank := NewBank("WETH", 18)
	from, to := uuid.New(), uuid.New()

	if err := bank.Transfer(from, to, big.NewInt(1)); err == nil {
		t.Fatal("expected transfer from empty account to fail")
	}
	if err := bank.Burn(from, big.NewInt(1)); err == nil {
		t.Fatal("expected burn from empty account to fail")
	}
}

func TestBankRejectsNonPositiveAmounts(t *testing.T) {
	bank := NewBank("WETH", 18)
	a, b := uuid.New(), uuid.New()

	if err := bank.Mint(a, big.NewInt(0)); err == nil {
		t.Fatal("expected zero mint to fail")
	}
	if err := bank.Mint(a, nil); err == nil {
		t.Fatal("expected nil mint to fail")
	}
	if err := bank.Transfer(a, b, big.NewInt(-5)); err == nil {
		t.Fatal("expected negative transfer to fail")
	}
}

func TestBankBalanceCopyDoesNotAlias(t *testing.T) {
	bank := NewBank("WETH", 18)
	account := uuid.New()
	bank.Mint(account, big.NewInt(10))

	got := bank.BalanceOf(account)
	got.SetInt64(999)

	if fresh := bank.BalanceOf(account); fresh.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("internal balance mutated through returned copy: %s", fresh)
	}
}
