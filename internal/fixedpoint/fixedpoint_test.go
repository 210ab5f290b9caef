package fixedpoint_test

import (
	"math/big"
	"testing"

	"SynthLedger/internal/fixedpoint"
)

func TestMulDiv_Truncates(t *testing.T) {
	// 7*3/2 = 10.5 -> 10
	got := fixedpoint.MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("got %s, want 10", got)
	}
}

func TestMulDiv_NoIntermediateOverflow(t *testing.T) {
	// (2^63)*(2^63)/(2^63) overflows int64 mid-computation but not big.Int.
	a := new(big.Int).Lsh(big.NewInt(1), 63)
	got := fixedpoint.MulDiv(a, a, a)
	if got.Cmp(a) != 0 {
		t.Errorf("got %s, want %s", got, a)
	}
}

func TestMulDivUp_RoundsAwayFromZero(t *testing.T) {
	got := fixedpoint.MulDivUp(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if got.Cmp(big.NewInt(11)) != 0 {
		t.Errorf("got %s, want 11", got)
	}

	exact := fixedpoint.MulDivUp(big.NewInt(4), big.NewInt(3), big.NewInt(2))
	if exact.Cmp(big.NewInt(6)) != 0 {
		t.Errorf("exact division should not round up: got %s", exact)
	}
}

func TestPercent(t *testing.T) {
	got := fixedpoint.Percent(big.NewInt(200), 50)
	if got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("50%% of 200: got %s, want 100", got)
	}

	// 10% of 15 truncates to 1
	got = fixedpoint.Percent(big.NewInt(15), 10)
	if got.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("10%% of 15: got %s, want 1", got)
	}
}

func TestRescale(t *testing.T) {
	// 8-decimal feed value widened to 18 decimals
	got := fixedpoint.Rescale(big.NewInt(2000_00000000), 8, 18)
	want, _ := new(big.Int).SetString("2000000000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}

	// Narrowing truncates
	got = fixedpoint.Rescale(big.NewInt(19), 1, 0)
	if got.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("got %s, want 1", got)
	}

	// Same scale returns a copy, not the same pointer
	in := big.NewInt(42)
	out := fixedpoint.Rescale(in, 6, 6)
	if out == in {
		t.Error("Rescale must not alias its input")
	}
}

func TestWadConstant(t *testing.T) {
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	if fixedpoint.Wad.Cmp(want) != 0 {
		t.Errorf("Wad = %s, want 1e18", fixedpoint.Wad)
	}
}

func TestClone_NilIsZero(t *testing.T) {
	if fixedpoint.Clone(nil).Sign() != 0 {
		t.Error("Clone(nil) should be zero")
	}
}
