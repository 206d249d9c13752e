package state_test

import (
	"errors"
	"math/big"
	"testing"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/ledger"
	"SerpLedger/internal/serpmath"
	"SerpLedger/internal/state"

	"github.com/google/uuid"
)

var (
	setr = currency.Token(currency.SETR)
	eurj = currency.Token(currency.SETEUR)
)

func newFixture(t *testing.T) (*ledger.Store, *state.Ledger, ledger.AccountID) {
	t.Helper()
	store := ledger.NewStore()
	positions := state.NewLedger(store, setr)
	alice := ledger.UserAccount(uuid.New())
	if err := store.Deposit(setr, alice, big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}
	if err := store.Deposit(eurj, alice, big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}
	return store, positions, alice
}

func TestAdjustPosition_OpensPosition(t *testing.T) {
	store, positions, alice := newFixture(t)

	if err := positions.AdjustPosition(alice, eurj, big.NewInt(500), big.NewInt(300)); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	pos := positions.Position(eurj, alice)
	if pos.Reserve.Int64() != 500 || pos.Standard.Int64() != 300 {
		t.Errorf("position: got {%v %v}, want {500 300}", pos.Reserve, pos.Standard)
	}
	total := positions.TotalPositions(eurj)
	if total.Reserve.Int64() != 500 || total.Standard.Int64() != 300 {
		t.Errorf("totals: got {%v %v}, want {500 300}", total.Reserve, total.Standard)
	}

	// Collateral moved into the module account; issued debt minted to alice.
	if got := store.FreeBalance(setr, alice); got.Int64() != 500 {
		t.Errorf("alice SETR: got %v, want 500", got)
	}
	if got := store.FreeBalance(setr, positions.ModuleAccount()); got.Int64() != 500 {
		t.Errorf("module SETR: got %v, want 500", got)
	}
	if got := store.FreeBalance(eurj, alice); got.Int64() != 1300 {
		t.Errorf("alice SETEUR: got %v, want 1300", got)
	}
}

func TestAdjustPosition_SumOfDeltas(t *testing.T) {
	_, positions, alice := newFixture(t)

	deltas := [][2]int64{{200, 200}, {-100, -100}, {300, 50}}
	var wantReserve, wantStandard int64
	for _, d := range deltas {
		if err := positions.AdjustPosition(alice, eurj, big.NewInt(d[0]), big.NewInt(d[1])); err != nil {
			t.Fatalf("adjust %v: %v", d, err)
		}
		wantReserve += d[0]
		wantStandard += d[1]
	}

	pos := positions.Position(eurj, alice)
	if pos.Reserve.Int64() != wantReserve || pos.Standard.Int64() != wantStandard {
		t.Errorf("position: got {%v %v}, want {%d %d}", pos.Reserve, pos.Standard, wantReserve, wantStandard)
	}
}

func TestAdjustPosition_UnderflowIsNoop(t *testing.T) {
	store, positions, alice := newFixture(t)
	if err := positions.AdjustPosition(alice, eurj, big.NewInt(100), big.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	aliceSETR := store.FreeBalance(setr, alice)
	aliceEURJ := store.FreeBalance(eurj, alice)

	err := positions.AdjustPosition(alice, eurj, big.NewInt(-200), big.NewInt(0))
	if !errors.Is(err, serpmath.ErrUnderflow) {
		t.Fatalf("got %v, want ErrUnderflow", err)
	}

	// Failed call is a no-op on records and balances.
	pos := positions.Position(eurj, alice)
	if pos.Reserve.Int64() != 100 || pos.Standard.Int64() != 100 {
		t.Errorf("position mutated by failed adjust: {%v %v}", pos.Reserve, pos.Standard)
	}
	if got := store.FreeBalance(setr, alice); got.Cmp(aliceSETR) != 0 {
		t.Errorf("SETR balance mutated by failed adjust: %v", got)
	}
	if got := store.FreeBalance(eurj, alice); got.Cmp(aliceEURJ) != 0 {
		t.Errorf("SETEUR balance mutated by failed adjust: %v", got)
	}
}

func TestAdjustPosition_StandardUnderflow(t *testing.T) {
	_, positions, alice := newFixture(t)
	err := positions.AdjustPosition(alice, eurj, big.NewInt(0), big.NewInt(-100))
	if !errors.Is(err, serpmath.ErrUnderflow) {
		t.Errorf("got %v, want ErrUnderflow", err)
	}
}

func TestAdjustPosition_BurnFailureUnwindsReserve(t *testing.T) {
	store := ledger.NewStore()
	positions := state.NewLedger(store, setr)
	alice := ledger.UserAccount(uuid.New())
	if err := store.Deposit(setr, alice, big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}
	if err := positions.AdjustPosition(alice, eurj, big.NewInt(500), big.NewInt(300)); err != nil {
		t.Fatal(err)
	}
	// Spend the issued stable currency so the repayment burn cannot cover.
	if err := store.Withdraw(eurj, alice, big.NewInt(250)); err != nil {
		t.Fatal(err)
	}

	err := positions.AdjustPosition(alice, eurj, big.NewInt(-500), big.NewInt(-300))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	// The reserve leg must have been unwound.
	if got := store.FreeBalance(setr, positions.ModuleAccount()); got.Int64() != 500 {
		t.Errorf("module SETR after unwind: got %v, want 500", got)
	}
	pos := positions.Position(eurj, alice)
	if pos.Reserve.Int64() != 500 || pos.Standard.Int64() != 300 {
		t.Errorf("position after failed adjust: {%v %v}", pos.Reserve, pos.Standard)
	}
}

func TestUpdatePosition_RecordsOnly(t *testing.T) {
	store, positions, alice := newFixture(t)
	before := store.FreeBalance(setr, alice)

	if err := positions.UpdatePosition(alice, eurj, big.NewInt(3000), big.NewInt(2000)); err != nil {
		t.Fatalf("update: %v", err)
	}

	pos := positions.Position(eurj, alice)
	if pos.Reserve.Int64() != 3000 || pos.Standard.Int64() != 2000 {
		t.Errorf("position: got {%v %v}", pos.Reserve, pos.Standard)
	}
	if got := store.FreeBalance(setr, alice); got.Cmp(before) != 0 {
		t.Error("update_position must not move balances")
	}
}

func TestPosition_DeletedAtZero(t *testing.T) {
	_, positions, alice := newFixture(t)

	refs0 := positions.Consumers(alice)
	if err := positions.UpdatePosition(alice, eurj, big.NewInt(3000), big.NewInt(2000)); err != nil {
		t.Fatal(err)
	}
	if !positions.HasPosition(eurj, alice) {
		t.Fatal("record should exist")
	}
	if got := positions.Consumers(alice); got != refs0+1 {
		t.Errorf("consumers after open: got %d, want %d", got, refs0+1)
	}

	if err := positions.UpdatePosition(alice, eurj, big.NewInt(-3000), big.NewInt(-2000)); err != nil {
		t.Fatal(err)
	}
	if positions.HasPosition(eurj, alice) {
		t.Error("zero/zero record must be deleted")
	}
	if got := positions.Consumers(alice); got != refs0 {
		t.Errorf("consumers after close: got %d, want %d", got, refs0)
	}
}

func TestTotals_MatchSumOfPositions(t *testing.T) {
	store := ledger.NewStore()
	positions := state.NewLedger(store, setr)
	accounts := make([]ledger.AccountID, 4)
	for i := range accounts {
		accounts[i] = ledger.UserAccount(uuid.New())
	}

	adjustments := []struct {
		who               int
		reserve, standard int64
	}{
		{0, 400, 500}, {1, 100, 600}, {2, 250, 0}, {3, 0, 75},
		{0, -150, -200}, {2, -250, 0},
	}
	for _, a := range adjustments {
		if err := positions.UpdatePosition(accounts[a.who], eurj, big.NewInt(a.reserve), big.NewInt(a.standard)); err != nil {
			t.Fatalf("update %+v: %v", a, err)
		}
	}

	sumReserve, sumStandard := new(big.Int), new(big.Int)
	for _, who := range accounts {
		pos := positions.Position(eurj, who)
		sumReserve.Add(sumReserve, pos.Reserve)
		sumStandard.Add(sumStandard, pos.Standard)
	}
	total := positions.TotalPositions(eurj)
	if total.Reserve.Cmp(sumReserve) != 0 || total.Standard.Cmp(sumStandard) != 0 {
		t.Errorf("totals {%v %v} != sum {%v %v}", total.Reserve, total.Standard, sumReserve, sumStandard)
	}
}

func TestTransferPosition_MergesAndDeletes(t *testing.T) {
	_, positions, alice := newFixture(t)
	bob := ledger.UserAccount(uuid.New())

	if err := positions.UpdatePosition(alice, eurj, big.NewInt(400), big.NewInt(500)); err != nil {
		t.Fatal(err)
	}
	if err := positions.UpdatePosition(bob, eurj, big.NewInt(100), big.NewInt(600)); err != nil {
		t.Fatal(err)
	}

	if err := positions.TransferPosition(alice, bob, eurj); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if positions.HasPosition(eurj, alice) {
		t.Error("source record must be deleted")
	}
	got := positions.Position(eurj, bob)
	if got.Reserve.Int64() != 500 || got.Standard.Int64() != 1100 {
		t.Errorf("merged position: got {%v %v}, want {500 1100}", got.Reserve, got.Standard)
	}
	total := positions.TotalPositions(eurj)
	if total.Reserve.Int64() != 500 || total.Standard.Int64() != 1100 {
		t.Errorf("totals after transfer: got {%v %v}", total.Reserve, total.Standard)
	}
}

func TestTransferPosition_NoSource(t *testing.T) {
	_, positions, alice := newFixture(t)
	bob := ledger.UserAccount(uuid.New())
	if err := positions.TransferPosition(alice, bob, eurj); !errors.Is(err, state.ErrNoPosition) {
		t.Errorf("got %v, want ErrNoPosition", err)
	}
}

func TestAdjustPosition_RejectsNonStable(t *testing.T) {
	_, positions, alice := newFixture(t)
	dnar := currency.Token(currency.DNAR)
	if err := positions.AdjustPosition(alice, dnar, big.NewInt(10), big.NewInt(0)); !errors.Is(err, state.ErrInvalidCurrency) {
		t.Errorf("got %v, want ErrInvalidCurrency", err)
	}
}

func TestAdjustPosition_ReserveMovesJournalTagged(t *testing.T) {
	store, positions, alice := newFixture(t)
	var reserveTypes []ledger.JournalType
	store.SetRecorder(func(j ledger.Journal) {
		if j.Type == ledger.JournalTypeReserveDeposit || j.Type == ledger.JournalTypeReserveWithdraw {
			reserveTypes = append(reserveTypes, j.Type)
		}
	})

	if err := positions.AdjustPosition(alice, eurj, big.NewInt(500), big.NewInt(300)); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if err := positions.AdjustPosition(alice, eurj, big.NewInt(-200), big.NewInt(-100)); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	want := []ledger.JournalType{ledger.JournalTypeReserveDeposit, ledger.JournalTypeReserveWithdraw}
	if len(reserveTypes) != len(want) {
		t.Fatalf("reserve journals: got %d, want %d", len(reserveTypes), len(want))
	}
	for i, jt := range want {
		if reserveTypes[i] != jt {
			t.Errorf("reserve journal %d: got %v, want %v", i, reserveTypes[i], jt)
		}
	}
}
