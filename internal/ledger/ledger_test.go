package ledger_test

import (
	"errors"
	"math/big"
	"testing"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/ledger"
	"SerpLedger/internal/serpmath"

	"github.com/google/uuid"
)

var (
	setr = currency.Token(currency.SETR)
	dnar = currency.Token(currency.DNAR)
)

func TestStore_DepositIncreasesIssuance(t *testing.T) {
	s := ledger.NewStore()
	alice := ledger.UserAccount(uuid.New())

	if err := s.Deposit(setr, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := s.FreeBalance(setr, alice); got.Int64() != 1000 {
		t.Errorf("balance: got %v, want 1000", got)
	}
	if got := s.TotalIssuance(setr); got.Int64() != 1000 {
		t.Errorf("issuance: got %v, want 1000", got)
	}
}

func TestStore_WithdrawBurns(t *testing.T) {
	s := ledger.NewStore()
	alice := ledger.UserAccount(uuid.New())
	if err := s.Deposit(setr, alice, big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}

	if err := s.Withdraw(setr, alice, big.NewInt(400)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := s.FreeBalance(setr, alice); got.Int64() != 600 {
		t.Errorf("balance: got %v, want 600", got)
	}
	if got := s.TotalIssuance(setr); got.Int64() != 600 {
		t.Errorf("issuance: got %v, want 600", got)
	}
}

func TestStore_WithdrawInsufficient(t *testing.T) {
	s := ledger.NewStore()
	alice := ledger.UserAccount(uuid.New())
	if err := s.Deposit(setr, alice, big.NewInt(100)); err != nil {
		t.Fatal(err)
	}

	err := s.Withdraw(setr, alice, big.NewInt(101))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if got := s.FreeBalance(setr, alice); got.Int64() != 100 {
		t.Errorf("failed withdraw must not move funds, balance %v", got)
	}
}

func TestStore_TransferConserves(t *testing.T) {
	s := ledger.NewStore()
	alice := ledger.UserAccount(uuid.New())
	bob := ledger.UserAccount(uuid.New())
	if err := s.Deposit(dnar, alice, big.NewInt(500)); err != nil {
		t.Fatal(err)
	}

	if err := s.Transfer(dnar, alice, bob, big.NewInt(200)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := s.FreeBalance(dnar, alice); got.Int64() != 300 {
		t.Errorf("alice: got %v, want 300", got)
	}
	if got := s.FreeBalance(dnar, bob); got.Int64() != 200 {
		t.Errorf("bob: got %v, want 200", got)
	}
	if got := s.TotalIssuance(dnar); got.Int64() != 500 {
		t.Errorf("transfer must not change issuance: got %v", got)
	}

	if err := ledger.NewInvariantValidator(s).ValidateConservation(); err != nil {
		t.Errorf("conservation: %v", err)
	}
}

func TestStore_TransferInsufficientIsNoop(t *testing.T) {
	s := ledger.NewStore()
	alice := ledger.UserAccount(uuid.New())
	bob := ledger.UserAccount(uuid.New())
	if err := s.Deposit(setr, alice, big.NewInt(50)); err != nil {
		t.Fatal(err)
	}

	if err := s.Transfer(setr, alice, bob, big.NewInt(51)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if got := s.FreeBalance(setr, bob); got.Sign() != 0 {
		t.Errorf("bob should have nothing, got %v", got)
	}
}

func TestStore_MintOverflowRejected(t *testing.T) {
	s := ledger.NewStore()
	alice := ledger.UserAccount(uuid.New())
	if err := s.Deposit(setr, alice, serpmath.MaxBalance()); err != nil {
		t.Fatal(err)
	}

	if err := s.Deposit(setr, alice, big.NewInt(1)); !errors.Is(err, serpmath.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestStore_RecorderSeesJournals(t *testing.T) {
	s := ledger.NewStore()
	var seen []ledger.Journal
	s.SetRecorder(func(j ledger.Journal) { seen = append(seen, j) })
	s.SetEventRef("evt-1")

	alice := ledger.UserAccount(uuid.New())
	if err := s.Deposit(setr, alice, big.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	if err := s.Withdraw(setr, alice, big.NewInt(4)); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 2 {
		t.Fatalf("got %d journals, want 2", len(seen))
	}
	if seen[0].Type != ledger.JournalTypeMint || seen[1].Type != ledger.JournalTypeBurn {
		t.Errorf("journal types: got %v, %v", seen[0].Type, seen[1].Type)
	}
	if seen[0].EventRef != "evt-1" {
		t.Errorf("event ref: got %q", seen[0].EventRef)
	}
	if seen[1].Sequence != seen[0].Sequence+1 {
		t.Errorf("sequences must be monotonic: %d then %d", seen[0].Sequence, seen[1].Sequence)
	}
}

func TestStore_TaggedOverridesJournalType(t *testing.T) {
	s := ledger.NewStore()
	var seen []ledger.Journal
	s.SetRecorder(func(j ledger.Journal) { seen = append(seen, j) })

	alice := ledger.UserAccount(uuid.New())
	err := s.Tagged(ledger.JournalTypeReserveDeposit, func() error {
		if err := s.Deposit(setr, alice, big.NewInt(10)); err != nil {
			return err
		}
		// Innermost tag wins for nested scopes.
		return s.Tagged(ledger.JournalTypeSwap, func() error {
			return s.Deposit(setr, alice, big.NewInt(5))
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	// The enclosing tag is restored once the scope returns.
	if err := s.Withdraw(setr, alice, big.NewInt(1)); err != nil {
		t.Fatal(err)
	}

	want := []ledger.JournalType{
		ledger.JournalTypeReserveDeposit,
		ledger.JournalTypeSwap,
		ledger.JournalTypeBurn,
	}
	if len(seen) != len(want) {
		t.Fatalf("got %d journals, want %d", len(seen), len(want))
	}
	for i, jt := range want {
		if seen[i].Type != jt {
			t.Errorf("journal %d: got %v, want %v", i, seen[i].Type, jt)
		}
	}
}

func TestStore_ZeroAmountIsNoop(t *testing.T) {
	s := ledger.NewStore()
	var count int
	s.SetRecorder(func(ledger.Journal) { count++ })

	alice := ledger.UserAccount(uuid.New())
	if err := s.Deposit(setr, alice, big.NewInt(0)); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Error("zero deposit must not journal")
	}
}
