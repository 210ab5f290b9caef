package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// setPrice moves the feed's spot price, keeping the reading fresh.
func (f *fixture) setPrice(usd int64) {
	f.feed.Set(ethFeed, e8(usd), 8, time.Now())
}

func TestLiquidateHealthyPositionRejected(t *testing.T) {
	f := newFixture(t)
	borrower, liquidator := uuid.New(), uuid.New()
	f.fund(borrower, wad(2))
	require.NoError(t, f.eng.DepositCollateralAndMint(borrower, "WETH", wad(2), wad(1000)))

	var healthy *HealthFactorOkError
	require.ErrorAs(t, f.eng.Liquidate(liquidator, borrower, "WETH", wad(100)), &healthy)
	require.Equal(t, borrower, healthy.Account)
	require.Equal(t, wad(2), f.eng.CollateralBalanceOf(borrower, "WETH"))
}

func TestLiquidatePartialWithBonus(t *testing.T) {
	f := newFixture(t)
	borrower, liquidator := uuid.New(), uuid.New()

	f.fund(borrower, wad(1))
	require.NoError(t, f.eng.DepositCollateralAndMint(borrower, "WETH", wad(1), wad(900)))

	// The liquidator keeps a comfortable position of their own to fund
	// the repayment.
	f.fund(liquidator, wad(10))
	require.NoError(t, f.eng.DepositCollateralAndMint(liquidator, "WETH", wad(10), wad(500)))

	// At $1600 the borrower's ratio is 800/900.
	f.setPrice(1600)
	before, err := f.eng.HealthFactor(borrower)
	require.NoError(t, err)
	require.Equal(t, -1, before.Cmp(MinHealthFactor))

	require.NoError(t, f.eng.Liquidate(liquidator, borrower, "WETH", wad(500)))

	// 500 debt at $1600 is 0.3125 WETH, plus the 10% bonus.
	seized, _ := new(big.Int).SetString("343750000000000000", 10)
	require.Equal(t, seized, f.weth.BalanceOf(liquidator))
	require.Equal(t, new(big.Int).Sub(wad(1), seized), f.eng.CollateralBalanceOf(borrower, "WETH"))
	require.Equal(t, wad(400), f.eng.DebtOf(borrower))

	// Repayment destroyed the covered synthetic units.
	require.Zero(t, f.synth.BalanceOf(liquidator).Sign())
	require.Equal(t, wad(900), f.synth.TotalSupply())

	after, err := f.eng.HealthFactor(borrower)
	require.NoError(t, err)
	require.Equal(t, 1, after.Cmp(before))
}

func TestLiquidateSeizureCappedAtBalance(t *testing.T) {
	f := newFixture(t)
	borrower, liquidator := uuid.New(), uuid.New()

	f.fund(borrower, wad(1))
	require.NoError(t, f.eng.DepositCollateralAndMint(borrower, "WETH", wad(1), wad(1000)))

	f.fund(liquidator, wad(10))
	require.NoError(t, f.eng.DepositCollateralAndMint(liquidator, "WETH", wad(10), wad(1000)))

	// At $1000 the borrower holds exactly the debt's worth of collateral;
	// the 10% bonus cannot be paid in full and the seizure caps at the
	// recorded balance.
	f.setPrice(1000)
	require.NoError(t, f.eng.Liquidate(liquidator, borrower, "WETH", wad(1000)))

	require.Equal(t, wad(1), f.weth.BalanceOf(liquidator))
	require.Zero(t, f.eng.CollateralBalanceOf(borrower, "WETH").Sign())
	require.Zero(t, f.eng.DebtOf(borrower).Sign())

	ratio, err := f.eng.HealthFactor(borrower)
	require.NoError(t, err)
	require.Equal(t, MaxHealthFactor, ratio)
}

func TestLiquidateRequiresStrictImprovement(t *testing.T) {
	f := newFixture(t)
	borrower, liquidator := uuid.New(), uuid.New()

	f.fund(borrower, wad(1))
	require.NoError(t, f.eng.DepositCollateralAndMint(borrower, "WETH", wad(1), wad(1000)))

	f.fund(liquidator, wad(10))
	require.NoError(t, f.eng.DepositCollateralAndMint(liquidator, "WETH", wad(10), wad(1000)))

	// Covering half the debt at $1000 seizes more value than it repays,
	// dropping the ratio from 0.5 to 0.45.
	f.setPrice(1000)
	var notImproved *HealthFactorNotImprovedError
	require.ErrorAs(t, f.eng.Liquidate(liquidator, borrower, "WETH", wad(500)), &notImproved)
	require.Equal(t, borrower, notImproved.Account)
	require.Equal(t, 1, notImproved.Before.Cmp(notImproved.After))

	// The rejection restored every balance.
	require.Equal(t, wad(1), f.eng.CollateralBalanceOf(borrower, "WETH"))
	require.Equal(t, wad(1000), f.eng.DebtOf(borrower))
	require.Equal(t, wad(1000), f.synth.BalanceOf(liquidator))
}

func TestLiquidateRejectsUnhealthyLiquidator(t *testing.T) {
	f := newFixture(t)
	borrower, liquidator := uuid.New(), uuid.New()

	f.fund(borrower, wad(1))
	require.NoError(t, f.eng.DepositCollateralAndMint(borrower, "WETH", wad(1), wad(1000)))

	// The liquidator's own position is just as underwater.
	f.fund(liquidator, wad(1))
	require.NoError(t, f.eng.DepositCollateralAndMint(liquidator, "WETH", wad(1), wad(1000)))

	f.setPrice(1000)
	var broken *HealthFactorBrokenError
	require.ErrorAs(t, f.eng.Liquidate(liquidator, borrower, "WETH", wad(1000)), &broken)
	require.Equal(t, liquidator, broken.Account)

	require.Equal(t, wad(1000), f.eng.DebtOf(borrower))
	require.Equal(t, wad(1), f.eng.CollateralBalanceOf(borrower, "WETH"))
}

func TestLiquidateRejectsZeroCover(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.eng.Liquidate(uuid.New(), uuid.New(), "WETH", new(big.Int)), ErrNeedsMoreThanZero)
}

func TestLiquidateEngineSolvency(t *testing.T) {
	f := newFixture(t)
	borrower, liquidator := uuid.New(), uuid.New()

	f.fund(borrower, wad(1))
	require.NoError(t, f.eng.DepositCollateralAndMint(borrower, "WETH", wad(1), wad(900)))
	f.fund(liquidator, wad(10))
	require.NoError(t, f.eng.DepositCollateralAndMint(liquidator, "WETH", wad(10), wad(500)))

	f.setPrice(1600)
	require.NoError(t, f.eng.Liquidate(liquidator, borrower, "WETH", wad(500)))

	// The vault holds exactly the sum of recorded collateral balances.
	recorded := new(big.Int)
	for _, account := range f.eng.Accounts() {
		recorded.Add(recorded, f.eng.CollateralBalanceOf(account, "WETH"))
	}
	require.Equal(t, recorded, f.weth.BalanceOf(f.vault))

	// Outstanding synthetic supply matches the sum of recorded debt.
	debt := new(big.Int)
	for _, account := range f.eng.Accounts() {
		debt.Add(debt, f.eng.DebtOf(account))
	}
	require.Equal(t, debt, f.synth.TotalSupply())
}
