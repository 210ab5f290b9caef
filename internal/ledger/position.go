// Package ledger owns per-account position state: collateral balances per
// asset and a single minted-debt balance. All mutation flows through a Tx so
// the orchestrator can discard every change of a failed operation. The book
// has no lock of its own; the orchestrator serializes access.
package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
)

// InsufficientCollateralError reports a debit that would underflow.
type InsufficientCollateralError struct {
	Account uuid.UUID
	Asset   string
	Have    *big.Int
	Want    *big.Int
}

func (e *InsufficientCollateralError) Error() string {
	return fmt.Sprintf("ledger: account %s has %s %s collateral, needs %s", e.Account, e.Have, e.Asset, e.Want)
}

// InsufficientDebtError reports a debt decrease that would underflow.
type InsufficientDebtError struct {
	Account uuid.UUID
	Have    *big.Int
	Want    *big.Int
}

func (e *InsufficientDebtError) Error() string {
	return fmt.Sprintf("ledger: account %s has %s debt, cannot repay %s", e.Account, e.Have, e.Want)
}

// Position is one account's state. Collateral amounts are asset-native
// precision; debt is 18-decimal.
type Position struct {
	Collateral map[string]*big.Int
	Debt       *big.Int
}

func newPosition() *Position {
	return &Position{
		Collateral: make(map[string]*big.Int),
		Debt:       new(big.Int),
	}
}

// PositionBook is the collection of all positions, keyed by account identity.
// Accounts are created implicitly on first credit and never destroyed; a
// zero-balance entry is economically inert.
type PositionBook struct {
	positions map[uuid.UUID]*Position
}

func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[uuid.UUID]*Position)}
}

func (b *PositionBook) position(account uuid.UUID) *Position {
	pos, ok := b.positions[account]
	if !ok {
		pos = newPosition()
		b.positions[account] = pos
	}
	return pos
}

// CollateralOf returns the recorded collateral balance, zero when absent.
func (b *PositionBook) CollateralOf(account uuid.UUID, asset string) *big.Int {
	if pos, ok := b.positions[account]; ok {
		if bal, ok := pos.Collateral[asset]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return new(big.Int)
}

// DebtOf returns the recorded minted-debt balance, zero when absent.
func (b *PositionBook) DebtOf(account uuid.UUID) *big.Int {
	if pos, ok := b.positions[account]; ok {
		return new(big.Int).Set(pos.Debt)
	}
	return new(big.Int)
}

// Accounts returns all known account identities in stable order.
func (b *PositionBook) Accounts() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(b.positions))
	for id := range b.positions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Begin opens a transaction over the book. Mutations apply immediately;
// Rollback undoes them in reverse order.
func (b *PositionBook) Begin() *Tx {
	return &Tx{book: b}
}

// Tx records an undo log for the mutations of one operation.
type Tx struct {
	book *PositionBook
	undo []func()
	done bool
}

// Credit adds collateral to an account.
func (t *Tx) Credit(account uuid.UUID, asset string, amount *big.Int) {
	pos := t.book.position(account)
	bal, ok := pos.Collateral[asset]
	if !ok {
		bal = new(big.Int)
		pos.Collateral[asset] = bal
	}
	bal.Add(bal, amount)

	amt := new(big.Int).Set(amount)
	t.undo = append(t.undo, func() { bal.Sub(bal, amt) })
}

// Debit removes collateral from an account, failing on underflow.
func (t *Tx) Debit(account uuid.UUID, asset string, amount *big.Int) error {
	pos := t.book.position(account)
	bal, ok := pos.Collateral[asset]
	if !ok || bal.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have.Set(bal)
		}
		return &InsufficientCollateralError{
			Account: account,
			Asset:   asset,
			Have:    have,
			Want:    new(big.Int).Set(amount),
		}
	}
	bal.Sub(bal, amount)

	amt := new(big.Int).Set(amount)
	t.undo = append(t.undo, func() { bal.Add(bal, amt) })
	return nil
}

// IncreaseDebt raises an account's minted-debt balance.
func (t *Tx) IncreaseDebt(account uuid.UUID, amount *big.Int) {
	pos := t.book.position(account)
	pos.Debt.Add(pos.Debt, amount)

	amt := new(big.Int).Set(amount)
	t.undo = append(t.undo, func() { pos.Debt.Sub(pos.Debt, amt) })
}

// DecreaseDebt lowers an account's minted-debt balance, failing on underflow.
func (t *Tx) DecreaseDebt(account uuid.UUID, amount *big.Int) error {
	pos := t.book.position(account)
	if pos.Debt.Cmp(amount) < 0 {
		return &InsufficientDebtError{
			Account: account,
			Have:    new(big.Int).Set(pos.Debt),
			Want:    new(big.Int).Set(amount),
		}
	}
	pos.Debt.Sub(pos.Debt, amount)

	amt := new(big.Int).Set(amount)
	t.undo = append(t.undo, func() { pos.Debt.Add(pos.Debt, amt) })
	return nil
}

// Rollback undoes every mutation of the transaction in reverse order. Safe to
// call after Commit; it then does nothing.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
}

// Commit discards the undo log, making the mutations final.
func (t *Tx) Commit() {
	t.done = true
	t.undo = nil
}
