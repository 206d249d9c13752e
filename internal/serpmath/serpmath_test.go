package serpmath_test

import (
	"SerpLedger/internal/serpmath"
	"errors"
	"math/big"
	"testing"
)

func TestCheckedAddSigned_Underflow(t *testing.T) {
	_, err := serpmath.CheckedAddSigned(big.NewInt(100), big.NewInt(-101))
	if !errors.Is(err, serpmath.ErrUnderflow) {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
}

func TestCheckedAddSigned_Overflow(t *testing.T) {
	_, err := serpmath.CheckedAddSigned(serpmath.MaxBalance(), big.NewInt(1))
	if !errors.Is(err, serpmath.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestCheckedAddSigned_Applies(t *testing.T) {
	got, err := serpmath.CheckedAddSigned(big.NewInt(500), big.NewInt(-300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 200 {
		t.Errorf("got %v, want 200", got)
	}
}

func TestCheckedAdd_AtCeiling(t *testing.T) {
	got, err := serpmath.CheckedAdd(serpmath.SaturatingSub(serpmath.MaxBalance(), big.NewInt(1)), big.NewInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(serpmath.MaxBalance()) != 0 {
		t.Error("sum should reach the ceiling exactly")
	}
}

func TestSaturatingMul_Clamps(t *testing.T) {
	got := serpmath.SaturatingMul(serpmath.MaxBalance(), big.NewInt(2))
	if got.Cmp(serpmath.MaxBalance()) != 0 {
		t.Error("product should clamp to the balance ceiling")
	}
}

func TestSupplyChange_TruncatesBelowTwoX(t *testing.T) {
	// floor(110/100) - 1 == 0: a 10% deviation produces no change.
	got := serpmath.SupplyChange(big.NewInt(110), big.NewInt(100), big.NewInt(1_000_000))
	if got.Sign() != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestSupplyChange_ExactMultiples(t *testing.T) {
	// floor(300/100) - 1 == 2
	got := serpmath.SupplyChange(big.NewInt(300), big.NewInt(100), big.NewInt(1_000))
	if got.Int64() != 2_000 {
		t.Errorf("got %v, want 2000", got)
	}
}

func TestSupplyChange_ZeroDenominator(t *testing.T) {
	got := serpmath.SupplyChange(big.NewInt(100), big.NewInt(0), big.NewInt(1_000))
	if got.Sign() != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestTenthsShare(t *testing.T) {
	amount := big.NewInt(1000)
	if got := serpmath.TenthsShare(amount, 3); got.Int64() != 300 {
		t.Errorf("3 tenths of 1000: got %v, want 300", got)
	}
	if got := serpmath.TenthsShare(amount, 6); got.Int64() != 600 {
		t.Errorf("6 tenths of 1000: got %v, want 600", got)
	}
	if got := serpmath.TenthsShare(amount, 1); got.Int64() != 100 {
		t.Errorf("1 tenth of 1000: got %v, want 100", got)
	}
}

func TestTenthsShare_FloorsBeforeMultiply(t *testing.T) {
	// 3 * floor(1005/10) = 300, not floor(3*1005/10) = 301.
	if got := serpmath.TenthsShare(big.NewInt(1005), 3); got.Int64() != 300 {
		t.Errorf("got %v, want 300", got)
	}
}

func TestSplitLots_ExactPartition(t *testing.T) {
	lots := serpmath.SplitLots(big.NewInt(25), big.NewInt(10), 10)
	want := []int64{10, 10, 5}
	if len(lots) != len(want) {
		t.Fatalf("got %d lots, want %d", len(lots), len(want))
	}
	sum := new(big.Int)
	for i, lot := range lots {
		if lot.Int64() != want[i] {
			t.Errorf("lot %d: got %v, want %d", i, lot, want[i])
		}
		sum.Add(sum, lot)
	}
	if sum.Int64() != 25 {
		t.Errorf("lots sum to %v, want 25", sum)
	}
}

func TestSplitLots_CapFoldsIntoFinalLot(t *testing.T) {
	lots := serpmath.SplitLots(big.NewInt(100), big.NewInt(10), 5)
	want := []int64{10, 10, 10, 10, 60}
	if len(lots) != len(want) {
		t.Fatalf("got %d lots, want %d", len(lots), len(want))
	}
	for i, lot := range lots {
		if lot.Int64() != want[i] {
			t.Errorf("lot %d: got %v, want %d", i, lot, want[i])
		}
	}
}

func TestSplitLots_SingleLot(t *testing.T) {
	lots := serpmath.SplitLots(big.NewInt(7), big.NewInt(10), 10)
	if len(lots) != 1 || lots[0].Int64() != 7 {
		t.Errorf("got %v, want [7]", lots)
	}
}

func TestSplitLots_ZeroMaxMeansNoSplitting(t *testing.T) {
	lots := serpmath.SplitLots(big.NewInt(100), big.NewInt(10), 0)
	if len(lots) != 1 || lots[0].Int64() != 100 {
		t.Errorf("got %v, want [100]", lots)
	}
}

func TestSplitProportional(t *testing.T) {
	weights := []*big.Int{big.NewInt(10), big.NewInt(10), big.NewInt(5)}
	parts := serpmath.SplitProportional(big.NewInt(25), weights, big.NewInt(25))
	want := []int64{10, 10, 5}
	for i, part := range parts {
		if part.Int64() != want[i] {
			t.Errorf("part %d: got %v, want %d", i, part, want[i])
		}
	}
}
