package engine

import (
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/fixedpoint"
	"SynthLedger/internal/oracle"
)

// ComputeHealthFactor derives the collateralization ratio from a debt balance
// and a total collateral valuation, both 18-decimal. An account with no debt
// has the maximum representable health factor. Only half of the collateral
// value counts toward the ratio, so a healthy position is at least 200%
// collateralized.
func ComputeHealthFactor(debt, collateralUsd *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(MaxHealthFactor)
	}
	adjusted := fixedpoint.Percent(collateralUsd, LiquidationThreshold)
	return fixedpoint.MulDiv(adjusted, fixedpoint.Wad, debt)
}

// usdValue converts a native-precision token amount to an 18-decimal USD
// value at the feed's current price.
//
//	usd = price * amount * 1e18 / 10^(feedDecimals + assetDecimals)
func (e *Engine) usdValue(cfg *CollateralAsset, amount *big.Int) (*big.Int, error) {
	round, err := e.readPrice(cfg.FeedID)
	if err != nil {
		return nil, err
	}
	scale := fixedpoint.Pow10(round.Decimals + cfg.Token.Decimals())
	return fixedpoint.MulDiv(round.Price, new(big.Int).Mul(amount, fixedpoint.Wad), scale), nil
}

// tokenAmountFromUsd converts an 18-decimal USD value to a native-precision
// token amount at the feed's current price. The inverse of usdValue, with
// truncation toward zero.
func (e *Engine) tokenAmountFromUsd(cfg *CollateralAsset, usdWad *big.Int) (*big.Int, error) {
	round, err := e.readPrice(cfg.FeedID)
	if err != nil {
		return nil, err
	}
	scale := fixedpoint.Pow10(cfg.Token.Decimals() + round.Decimals)
	return fixedpoint.MulDiv(usdWad, scale, new(big.Int).Mul(round.Price, fixedpoint.Wad)), nil
}

// collateralValueOf sums the USD value of every configured asset the account
// holds. Every holding is valued with a fresh oracle read; a single stale or
// invalid feed fails the whole valuation.
func (e *Engine) collateralValueOf(account uuid.UUID) (*big.Int, error) {
	total := new(big.Int)
	for i := range e.assets {
		cfg := &e.assets[i]
		held := e.book.CollateralOf(account, cfg.Token.Symbol())
		if held.Sign() == 0 {
			continue
		}
		usd, err := e.usdValue(cfg, held)
		if err != nil {
			return nil, err
		}
		total.Add(total, usd)
	}
	return total, nil
}

// healthFactorOf computes the account's current ratio from live ledger and
// oracle state.
func (e *Engine) healthFactorOf(account uuid.UUID) (*big.Int, error) {
	collateralUsd, err := e.collateralValueOf(account)
	if err != nil {
		return nil, err
	}
	return ComputeHealthFactor(e.book.DebtOf(account), collateralUsd), nil
}

func (e *Engine) readPrice(feedID string) (oracle.RoundData, error) {
	round, err := e.oracle.ReadPrice(feedID)
	if e.metrics == nil {
		return round, err
	}
	if err != nil {
		var (
			stale   *oracle.StalePriceError
			invalid *oracle.InvalidPriceError
		)
		reason := "source"
		switch {
		case errors.As(err, &stale):
			reason = "stale"
		case errors.As(err, &invalid):
			reason = "invalid"
		}
		e.metrics.OracleReadFailures.WithLabelValues(feedID, reason).Inc()
		return round, err
	}
	e.metrics.OraclePriceAge.WithLabelValues(feedID).Set(time.Since(round.UpdatedAt).Seconds())
	return round, err
}

// AccountInformation reports an account's minted debt and total collateral
// valuation, both 18-decimal.
func (e *Engine) AccountInformation(account uuid.UUID) (debt, collateralUsd *big.Int, err error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	collateralUsd, err = e.collateralValueOf(account)
	if err != nil {
		return nil, nil, err
	}
	return e.book.DebtOf(account), collateralUsd, nil
}

// HealthFactor reports an account's current collateralization ratio.
func (e *Engine) HealthFactor(account uuid.UUID) (*big.Int, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.healthFactorOf(account)
}

// UsdValue prices a native-precision amount of a configured asset in
// 18-decimal USD.
func (e *Engine) UsdValue(asset string, amount *big.Int) (*big.Int, error) {
	cfg, err := e.allowedAsset(asset)
	if err != nil {
		return nil, err
	}
	return e.usdValue(cfg, amount)
}

// TokenAmountFromUsd converts an 18-decimal USD value into a native-precision
// amount of a configured asset.
func (e *Engine) TokenAmountFromUsd(asset string, usdWad *big.Int) (*big.Int, error) {
	cfg, err := e.allowedAsset(asset)
	if err != nil {
		return nil, err
	}
	return e.tokenAmountFromUsd(cfg, usdWad)
}

// CollateralBalanceOf reports the recorded collateral balance for one asset.
func (e *Engine) CollateralBalanceOf(account uuid.UUID, asset string) *big.Int {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.book.CollateralOf(account, asset)
}

// DebtOf reports the recorded minted-debt balance.
func (e *Engine) DebtOf(account uuid.UUID) *big.Int {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.book.DebtOf(account)
}

// ConfiguredAssets lists the accepted collateral symbols in configuration
// order.
func (e *Engine) ConfiguredAssets() []string {
	out := make([]string, len(e.assets))
	for i := range e.assets {
		out[i] = e.assets[i].Token.Symbol()
	}
	return out
}

// FeedFor returns the price-feed identifier of a configured asset.
func (e *Engine) FeedFor(asset string) (string, error) {
	cfg, err := e.allowedAsset(asset)
	if err != nil {
		return "", err
	}
	return cfg.FeedID, nil
}

// Accounts lists every account the ledger has seen, in stable order.
func (e *Engine) Accounts() []uuid.UUID {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.book.Accounts()
}

// EngineConstants reports the protocol parameters.
func (e *Engine) EngineConstants() Constants {
	return Constants{
		Precision:            new(big.Int).Set(fixedpoint.Wad),
		LiquidationThreshold: LiquidationThreshold,
		LiquidationPrecision: LiquidationPrecision,
		LiquidationBonus:     LiquidationBonus,
		MinHealthFactor:      new(big.Int).Set(MinHealthFactor),
	}
}
