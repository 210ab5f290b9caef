package engine

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/token"
)

// Operation names for metrics and logs.
const (
	opDeposit        = "deposit_collateral"
	opMint           = "mint"
	opDepositAndMint = "deposit_and_mint"
	opRedeem         = "redeem_collateral"
	opRedeemAndBurn  = "redeem_and_burn"
	opBurn           = "burn"
	opLiquidate      = "liquidate"
)

// ErrDuplicateAsset rejects construction with the same collateral symbol
// configured twice.
var ErrDuplicateAsset = errors.New("engine: duplicate collateral asset")

// Engine is the orchestrator over the position ledger. Mutating operations
// are guarded against reentrancy and fully atomic: any failure discards every
// ledger mutation of the operation. The engine has no internal queueing; the
// transport layer serializes independent callers.
type Engine struct {
	guard reentrancyGuard

	// stateMu lets snapshot capture and query reads run against a
	// consistent book while an operation is in flight. Mutating
	// operations hold the write lock; public reads hold the read lock.
	// Internal helpers rely on the caller's lock.
	stateMu sync.RWMutex

	book   *ledger.PositionBook
	assets []CollateralAsset
	byName map[string]*CollateralAsset
	synth  token.Synthetic
	oracle *oracle.Adapter
	vault  uuid.UUID

	logger  zerolog.Logger
	metrics *observability.Metrics
	events  chan<- event.Event
}

// New assembles an engine from its collaborators. It fails with
// *LengthMismatchError when the collateral and feed lists differ in size.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Collateral) != len(cfg.Feeds) {
		return nil, &LengthMismatchError{Assets: len(cfg.Collateral), Feeds: len(cfg.Feeds)}
	}
	if cfg.Synth == nil {
		return nil, errors.New("engine: synthetic token is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("engine: oracle adapter is required")
	}

	e := &Engine{
		book:    ledger.NewPositionBook(),
		assets:  make([]CollateralAsset, 0, len(cfg.Collateral)),
		byName:  make(map[string]*CollateralAsset, len(cfg.Collateral)),
		synth:   cfg.Synth,
		oracle:  cfg.Oracle,
		vault:   cfg.Vault,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		events:  cfg.Events,
	}

	for i, tok := range cfg.Collateral {
		sym := tok.Symbol()
		if _, exists := e.byName[sym]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, sym)
		}
		e.assets = append(e.assets, CollateralAsset{Token: tok, FeedID: cfg.Feeds[i]})
		e.byName[sym] = &e.assets[len(e.assets)-1]
	}

	return e, nil
}

// DepositCollateral locks collateral for the caller. Collateral-only
// positions are never unhealthy, so no post-check is needed.
func (e *Engine) DepositCollateral(caller uuid.UUID, asset string, amount *big.Int) error {
	start := time.Now()
	if err := e.guard.enter(); err != nil {
		e.rejected(opDeposit, err)
		return err
	}
	defer e.guard.exit()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	cfg, err := e.allowedAsset(asset)
	if err != nil {
		e.rejected(opDeposit, err)
		return err
	}
	if !fixedpoint.IsPositive(amount) {
		e.rejected(opDeposit, ErrNeedsMoreThanZero)
		return ErrNeedsMoreThanZero
	}

	tx := e.book.Begin()
	tx.Credit(caller, asset, amount)

	if terr := cfg.Token.Transfer(caller, e.vault, amount); terr != nil {
		tx.Rollback()
		err := &TransferFailedError{Asset: asset, From: caller, To: e.vault, Amount: fixedpoint.Clone(amount), Cause: terr}
		e.rejected(opDeposit, err)
		return err
	}
	tx.Commit()

	e.applied(opDeposit, start)
	e.logger.Info().Str("op", opDeposit).Stringer("account", caller).Str("asset", asset).Str("amount", amount.String()).Msg("collateral deposited")
	e.emit(&event.CollateralDeposited{
		OperationID: uuid.New(),
		Account:     caller,
		Asset:       asset,
		Amount:      fixedpoint.Clone(amount),
		Timestamp:   time.Now(),
	})
	return nil
}

// Mint creates synthetic units against the caller's collateral. The debt
// increase is rejected if it would break the caller's health factor.
func (e *Engine) Mint(caller uuid.UUID, amount *big.Int) error {
	start := time.Now()
	if err := e.guard.enter(); err != nil {
		e.rejected(opMint, err)
		return err
	}
	defer e.guard.exit()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if !fixedpoint.IsPositive(amount) {
		e.rejected(opMint, ErrNeedsMoreThanZero)
		return ErrNeedsMoreThanZero
	}

	tx := e.book.Begin()
	tx.IncreaseDebt(caller, amount)

	ratio, err := e.checkHealth(caller)
	if err != nil {
		tx.Rollback()
		e.rejected(opMint, err)
		return err
	}

	if merr := e.synth.Mint(caller, amount); merr != nil {
		tx.Rollback()
		err := &MintFailedError{Account: caller, Amount: fixedpoint.Clone(amount), Cause: merr}
		e.rejected(opMint, err)
		return err
	}
	tx.Commit()

	e.applied(opMint, start)
	e.logger.Info().Str("op", opMint).Stringer("account", caller).Str("amount", amount.String()).Str("health_factor", ratio.String()).Msg("debt minted")
	e.emit(&event.DebtMinted{
		OperationID:  uuid.New(),
		Account:      caller,
		Amount:       fixedpoint.Clone(amount),
		HealthFactor: ratio,
		Timestamp:    time.Now(),
	})
	return nil
}

// DepositCollateralAndMint performs a deposit and a mint as one atomic
// operation under a single guard acquisition.
func (e *Engine) DepositCollateralAndMint(caller uuid.UUID, asset string, collateralAmount, mintAmount *big.Int) error {
	start := time.Now()
	if err := e.guard.enter(); err != nil {
		e.rejected(opDepositAndMint, err)
		return err
	}
	defer e.guard.exit()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	cfg, err := e.allowedAsset(asset)
	if err != nil {
		e.rejected(opDepositAndMint, err)
		return err
	}
	if !fixedpoint.IsPositive(collateralAmount) || !fixedpoint.IsPositive(mintAmount) {
		e.rejected(opDepositAndMint, ErrNeedsMoreThanZero)
		return ErrNeedsMoreThanZero
	}

	tx := e.book.Begin()
	tx.Credit(caller, asset, collateralAmount)
	tx.IncreaseDebt(caller, mintAmount)

	ratio, err := e.checkHealth(caller)
	if err != nil {
		tx.Rollback()
		e.rejected(opDepositAndMint, err)
		return err
	}

	// External movements last, so a ledger-level rejection never moves
	// value. The collateral pull precedes the mint; if the mint fails the
	// pull is compensated.
	if terr := cfg.Token.Transfer(caller, e.vault, collateralAmount); terr != nil {
		tx.Rollback()
		err := &TransferFailedError{Asset: asset, From: caller, To: e.vault, Amount: fixedpoint.Clone(collateralAmount), Cause: terr}
		e.rejected(opDepositAndMint, err)
		return err
	}
	if merr := e.synth.Mint(caller, mintAmount); merr != nil {
		if cerr := cfg.Token.Transfer(e.vault, caller, collateralAmount); cerr != nil {
			e.logger.Error().Err(cerr).Stringer("account", caller).Str("asset", asset).Msg("compensating collateral return failed")
		}
		tx.Rollback()
		err := &MintFailedError{Account: caller, Amount: fixedpoint.Clone(mintAmount), Cause: merr}
		e.rejected(opDepositAndMint, err)
		return err
	}
	tx.Commit()

	e.applied(opDepositAndMint, start)
	e.logger.Info().Str("op", opDepositAndMint).Stringer("account", caller).Str("asset", asset).
		Str("collateral", collateralAmount.String()).Str("minted", mintAmount.String()).
		Str("health_factor", ratio.String()).Msg("collateral deposited and debt minted")
	now := time.Now()
	e.emit(&event.CollateralDeposited{OperationID: uuid.New(), Account: caller, Asset: asset, Amount: fixedpoint.Clone(collateralAmount), Timestamp: now})
	e.emit(&event.DebtMinted{OperationID: uuid.New(), Account: caller, Amount: fixedpoint.Clone(mintAmount), HealthFactor: ratio, Timestamp: now})
	return nil
}

// RedeemCollateral releases collateral back to the caller, rejecting a
// redemption that would break the caller's own health factor.
func (e *Engine) RedeemCollateral(caller uuid.UUID, asset string, amount *big.Int) error {
	start := time.Now()
	if err := e.guard.enter(); err != nil {
		e.rejected(opRedeem, err)
		return err
	}
	defer e.guard.exit()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	cfg, err := e.allowedAsset(asset)
	if err != nil {
		e.rejected(opRedeem, err)
		return err
	}
	if !fixedpoint.IsPositive(amount) {
		e.rejected(opRedeem, ErrNeedsMoreThanZero)
		return ErrNeedsMoreThanZero
	}

	tx := e.book.Begin()
	if derr := tx.Debit(caller, asset, amount); derr != nil {
		tx.Rollback()
		e.rejected(opRedeem, derr)
		return derr
	}

	if _, herr := e.checkHealth(caller); herr != nil {
		tx.Rollback()
		e.rejected(opRedeem, herr)
		return herr
	}

	if terr := cfg.Token.Transfer(e.vault, caller, amount); terr != nil {
		tx.Rollback()
		err := &TransferFailedError{Asset: asset, From: e.vault, To: caller, Amount: fixedpoint.Clone(amount), Cause: terr}
		e.rejected(opRedeem, err)
		return err
	}
	tx.Commit()

	e.applied(opRedeem, start)
	e.logger.Info().Str("op", opRedeem).Stringer("account", caller).Str("asset", asset).Str("amount", amount.String()).Msg("collateral redeemed")
	e.emit(&event.CollateralRedeemed{
		OperationID: uuid.New(),
		Account:     caller,
		Asset:       asset,
		Amount:      fixedpoint.Clone(amount),
		Timestamp:   time.Now(),
	})
	return nil
}

// Burn repays debt by destroying synthetic units pulled from the caller.
// Burning only improves health, so no post-check is needed.
func (e *Engine) Burn(caller uuid.UUID, amount *big.Int) error {
	start := time.Now()
	if err := e.guard.enter(); err != nil {
		e.rejected(opBurn, err)
		return err
	}
	defer e.guard.exit()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if !fixedpoint.IsPositive(amount) {
		e.rejected(opBurn, ErrNeedsMoreThanZero)
		return ErrNeedsMoreThanZero
	}

	tx := e.book.Begin()
	if derr := tx.DecreaseDebt(caller, amount); derr != nil {
		tx.Rollback()
		e.rejected(opBurn, derr)
		return derr
	}

	if err := e.pullAndBurn(caller, amount); err != nil {
		tx.Rollback()
		e.rejected(opBurn, err)
		return err
	}
	tx.Commit()

	e.applied(opBurn, start)
	e.logger.Info().Str("op", opBurn).Stringer("account", caller).Str("amount", amount.String()).Msg("debt burned")
	e.emit(&event.DebtBurned{
		OperationID: uuid.New(),
		Account:     caller,
		Amount:      fixedpoint.Clone(amount),
		Timestamp:   time.Now(),
	})
	return nil
}

// RedeemCollateralAndBurn burns debt first, then redeems collateral, as one
// atomic operation.
func (e *Engine) RedeemCollateralAndBurn(caller uuid.UUID, asset string, collateralAmount, burnAmount *big.Int) error {
	start := time.Now()
	if err := e.guard.enter(); err != nil {
		e.rejected(opRedeemAndBurn, err)
		return err
	}
	defer e.guard.exit()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	cfg, err := e.allowedAsset(asset)
	if err != nil {
		e.rejected(opRedeemAndBurn, err)
		return err
	}
	if !fixedpoint.IsPositive(collateralAmount) || !fixedpoint.IsPositive(burnAmount) {
		e.rejected(opRedeemAndBurn, ErrNeedsMoreThanZero)
		return ErrNeedsMoreThanZero
	}

	tx := e.book.Begin()
	if derr := tx.DecreaseDebt(caller, burnAmount); derr != nil {
		tx.Rollback()
		e.rejected(opRedeemAndBurn, derr)
		return derr
	}
	if derr := tx.Debit(caller, asset, collateralAmount); derr != nil {
		tx.Rollback()
		e.rejected(opRedeemAndBurn, derr)
		return derr
	}

	if _, herr := e.checkHealth(caller); herr != nil {
		tx.Rollback()
		e.rejected(opRedeemAndBurn, herr)
		return herr
	}

	if berr := e.pullAndBurn(caller, burnAmount); berr != nil {
		tx.Rollback()
		e.rejected(opRedeemAndBurn, berr)
		return berr
	}
	if terr := cfg.Token.Transfer(e.vault, caller, collateralAmount); terr != nil {
		// The burn already happened; restore the caller's synthetic units
		// before discarding the ledger mutations.
		if cerr := e.synth.Mint(caller, burnAmount); cerr != nil {
			e.logger.Error().Err(cerr).Stringer("account", caller).Msg("compensating synthetic re-mint failed")
		}
		tx.Rollback()
		err := &TransferFailedError{Asset: asset, From: e.vault, To: caller, Amount: fixedpoint.Clone(collateralAmount), Cause: terr}
		e.rejected(opRedeemAndBurn, err)
		return err
	}
	tx.Commit()

	e.applied(opRedeemAndBurn, start)
	e.logger.Info().Str("op", opRedeemAndBurn).Stringer("account", caller).Str("asset", asset).
		Str("collateral", collateralAmount.String()).Str("burned", burnAmount.String()).Msg("collateral redeemed and debt burned")
	now := time.Now()
	e.emit(&event.DebtBurned{OperationID: uuid.New(), Account: caller, Amount: fixedpoint.Clone(burnAmount), Timestamp: now})
	e.emit(&event.CollateralRedeemed{OperationID: uuid.New(), Account: caller, Asset: asset, Amount: fixedpoint.Clone(collateralAmount), Timestamp: now})
	return nil
}

// Liquidate lets a liquidator repay part of an unhealthy account's debt in
// exchange for the USD-equivalent collateral plus the liquidation bonus.
// The repayment must strictly improve the account's health factor.
func (e *Engine) Liquidate(liquidator, account uuid.UUID, asset string, debtToCover *big.Int) error {
	start := time.Now()
	if err := e.guard.enter(); err != nil {
		e.rejected(opLiquidate, err)
		return err
	}
	defer e.guard.exit()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	cfg, err := e.allowedAsset(asset)
	if err != nil {
		e.rejected(opLiquidate, err)
		return err
	}
	if !fixedpoint.IsPositive(debtToCover) {
		e.rejected(opLiquidate, ErrNeedsMoreThanZero)
		return ErrNeedsMoreThanZero
	}

	startingRatio, err := e.healthFactorOf(account)
	if err != nil {
		e.rejected(opLiquidate, err)
		return err
	}
	if startingRatio.Cmp(MinHealthFactor) >= 0 {
		err := &HealthFactorOkError{Account: account, Ratio: startingRatio}
		e.rejected(opLiquidate, err)
		return err
	}

	// Seize the debt's worth of collateral plus the bonus, capped at the
	// account's recorded balance. Truncating division throughout: rounding
	// never favors the liquidator.
	tokenAmount, err := e.tokenAmountFromUsd(cfg, debtToCover)
	if err != nil {
		e.rejected(opLiquidate, err)
		return err
	}
	seize := new(big.Int).Add(tokenAmount, fixedpoint.Percent(tokenAmount, LiquidationBonus))
	if held := e.book.CollateralOf(account, asset); seize.Cmp(held) > 0 {
		seize = held
	}

	tx := e.book.Begin()
	if derr := tx.Debit(account, asset, seize); derr != nil {
		tx.Rollback()
		e.rejected(opLiquidate, derr)
		return derr
	}
	if derr := tx.DecreaseDebt(account, debtToCover); derr != nil {
		tx.Rollback()
		e.rejected(opLiquidate, derr)
		return derr
	}

	endingRatio, err := e.healthFactorOf(account)
	if err != nil {
		tx.Rollback()
		e.rejected(opLiquidate, err)
		return err
	}
	if endingRatio.Cmp(startingRatio) <= 0 {
		tx.Rollback()
		err := &HealthFactorNotImprovedError{Account: account, Before: startingRatio, After: endingRatio}
		e.rejected(opLiquidate, err)
		return err
	}

	// The liquidator's own position must still be healthy.
	if _, herr := e.checkHealth(liquidator); herr != nil {
		tx.Rollback()
		e.rejected(opLiquidate, herr)
		return herr
	}

	if berr := e.pullAndBurn(liquidator, debtToCover); berr != nil {
		tx.Rollback()
		e.rejected(opLiquidate, berr)
		return berr
	}
	if terr := cfg.Token.Transfer(e.vault, liquidator, seize); terr != nil {
		if cerr := e.synth.Mint(liquidator, debtToCover); cerr != nil {
			e.logger.Error().Err(cerr).Stringer("account", liquidator).Msg("compensating synthetic re-mint failed")
		}
		tx.Rollback()
		err := &TransferFailedError{Asset: asset, From: e.vault, To: liquidator, Amount: seize, Cause: terr}
		e.rejected(opLiquidate, err)
		return err
	}
	tx.Commit()

	e.applied(opLiquidate, start)
	if e.metrics != nil {
		e.metrics.LiquidationsCompleted.WithLabelValues(asset).Inc()
	}
	e.logger.Info().Str("op", opLiquidate).
		Stringer("account", account).Stringer("liquidator", liquidator).
		Str("asset", asset).Str("debt_covered", debtToCover.String()).Str("seized", seize.String()).
		Str("health_factor_before", startingRatio.String()).Str("health_factor_after", endingRatio.String()).
		Msg("position liquidated")
	e.emit(&event.PositionLiquidated{
		OperationID:        uuid.New(),
		Borrower:           account,
		Liquidator:         liquidator,
		Asset:              asset,
		DebtCovered:        fixedpoint.Clone(debtToCover),
		CollateralSeized:   seize,
		HealthFactorBefore: startingRatio,
		HealthFactorAfter:  endingRatio,
		Timestamp:          time.Now(),
	})
	return nil
}

// RestorePosition seeds one account's position from a snapshot. Intended for
// process start, before the engine serves operations; it bypasses health
// checks and moves no tokens.
func (e *Engine) RestorePosition(account uuid.UUID, collateral map[string]*big.Int, debt *big.Int) error {
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.exit()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	tx := e.book.Begin()
	for asset, amount := range collateral {
		if _, err := e.allowedAsset(asset); err != nil {
			tx.Rollback()
			return err
		}
		if amount == nil || amount.Sign() < 0 {
			tx.Rollback()
			return fmt.Errorf("engine: negative snapshot balance for %s %s", account, asset)
		}
		tx.Credit(account, asset, amount)
	}
	if fixedpoint.IsPositive(debt) {
		tx.IncreaseDebt(account, debt)
	}
	tx.Commit()
	return nil
}

// pullAndBurn moves synthetic units from the payer to the vault and destroys
// them, compensating the pull when the burn fails.
func (e *Engine) pullAndBurn(payer uuid.UUID, amount *big.Int) error {
	if terr := e.synth.Transfer(payer, e.vault, amount); terr != nil {
		return &TransferFailedError{Asset: e.synth.Symbol(), From: payer, To: e.vault, Amount: fixedpoint.Clone(amount), Cause: terr}
	}
	if berr := e.synth.Burn(e.vault, amount); berr != nil {
		if cerr := e.synth.Transfer(e.vault, payer, amount); cerr != nil {
			e.logger.Error().Err(cerr).Stringer("account", payer).Msg("compensating synthetic return failed")
		}
		return &BurnFailedError{Account: payer, Amount: fixedpoint.Clone(amount), Cause: berr}
	}
	return nil
}

// checkHealth recomputes the account's health factor from current ledger and
// oracle state and fails with *HealthFactorBrokenError below the minimum.
func (e *Engine) checkHealth(account uuid.UUID) (*big.Int, error) {
	ratio, err := e.healthFactorOf(account)
	if err != nil {
		return nil, err
	}
	if ratio.Cmp(MinHealthFactor) < 0 {
		return nil, &HealthFactorBrokenError{Account: account, Ratio: ratio}
	}
	return ratio, nil
}

func (e *Engine) allowedAsset(asset string) (*CollateralAsset, error) {
	cfg, ok := e.byName[asset]
	if !ok {
		return nil, &TokenNotAllowedError{Asset: asset}
	}
	return cfg, nil
}

// emit hands the applied-operation event to the consumer. The send blocks so
// the operation log receives every applied operation; the consumer splits off
// the best-effort outbound publish path and drops only there.
func (e *Engine) emit(evt event.Event) {
	if e.events == nil {
		return
	}
	e.events <- evt
}

func (e *Engine) applied(op string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (e *Engine) rejected(op string, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpsRejected.WithLabelValues(op, rejectReason(err)).Inc()
	if op == opLiquidate {
		switch reason := rejectReason(err); reason {
		case "health_factor_ok", "health_factor_not_improved":
			e.metrics.LiquidationsRejected.WithLabelValues(reason).Inc()
		default:
			e.metrics.LiquidationsRejected.WithLabelValues("other").Inc()
		}
	}
}

// rejectReason maps an operation error to a bounded metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNeedsMoreThanZero):
		return "needs_more_than_zero"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant_call"
	}

	var (
		notAllowed   *TokenNotAllowedError
		broken       *HealthFactorBrokenError
		healthy      *HealthFactorOkError
		notImproved  *HealthFactorNotImprovedError
		transfer     *TransferFailedError
		mint         *MintFailedError
		burn         *BurnFailedError
		insufficient *ledger.InsufficientCollateralError
		debt         *ledger.InsufficientDebtError
		stale        *oracle.StalePriceError
		invalid      *oracle.InvalidPriceError
	)
	switch {
	case errors.As(err, &notAllowed):
		return "token_not_allowed"
	case errors.As(err, &broken):
		return "health_factor_broken"
	case errors.As(err, &healthy):
		return "health_factor_ok"
	case errors.As(err, &notImproved):
		return "health_factor_not_improved"
	case errors.As(err, &transfer):
		return "transfer_failed"
	case errors.As(err, &mint):
		return "mint_failed"
	case errors.As(err, &burn):
		return "burn_failed"
	case errors.As(err, &insufficient):
		return "insufficient_collateral"
	case errors.As(err, &debt):
		return "insufficient_debt"
	case errors.As(err, &stale), errors.As(err, &invalid), errors.Is(err, oracle.ErrUnknownFeed):
		return "oracle"
	default:
		return "other"
	}
}
