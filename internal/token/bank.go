package token

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

// Bank is an in-memory token used as the injected collaborator in tests and
// local mode. It implements both Token and Synthetic.
type Bank struct {
	symbol   string
	decimals uint

	mu       sync.Mutex
	balances map[uuid.UUID]*big.Int
	supply   *big.Int
}

func NewBank(symbol string, decimals uint) *Bank {
	return &Bank{
		symbol:   symbol,
		decimals: decimals,
		balances: make(map[uuid.UUID]*big.Int),
		supply:   new(big.Int),
	}
}

func (b *Bank) Symbol() string {
	return b.symbol
}

func (b *Bank) Decimals() uint {
	return b.decimals
}

// BalanceOf returns the recorded balance, zero for unknown accounts.
func (b *Bank) BalanceOf(account uuid.UUID) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalSupply returns the outstanding minted supply.
func (b *Bank) TotalSupply() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.supply)
}

func (b *Bank) Mint(to uuid.UUID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token %s: mint amount must be positive", b.symbol)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(to, amount)
	b.supply.Add(b.supply, amount)
	return nil
}

func (b *Bank) Burn(from uuid.UUID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token %s: burn amount must be positive", b.symbol)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(from, amount); err != nil {
		return err
	}
	b.supply.Sub(b.supply, amount)
	return nil
}

func (b *Bank) Transfer(from, to uuid.UUID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token %s: transfer amount must be positive", b.symbol)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.debit(from, amount); err != nil {
		return err
	}
	b.credit(to, amount)
	return nil
}

func (b *Bank) credit(account uuid.UUID, amount *big.Int) {
	bal, ok := b.balances[account]
	if !ok {
		bal = new(big.Int)
		b.balances[account] = bal
	}
	bal.Add(bal, amount)
}

func (b *Bank) debit(account uuid.UUID, amount *big.Int) error {
	bal, ok := b.balances[account]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("token %s: account %s has insufficient balance", b.symbol, account)
	}
	bal.Sub(bal, amount)
	return nil
}
