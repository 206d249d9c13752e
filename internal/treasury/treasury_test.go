package treasury_test

import (
	"errors"
	"math/big"
	"testing"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/ledger"
	"SerpLedger/internal/serpmath"
	"SerpLedger/internal/treasury"

	"github.com/google/uuid"
)

var (
	dnar = currency.Token(currency.DNAR)
	setr = currency.Token(currency.SETR)
	eurj = currency.Token(currency.SETEUR)
)

type auctionLot struct {
	receiver ledger.AccountID
	currency currency.ID
	amount   *big.Int
	target   *big.Int
}

// fakeAuction records the lots it is handed and can be told to fail on
// the nth NewReserveLot call.
type fakeAuction struct {
	lots     []auctionLot
	serplus  []*big.Int
	standard []*big.Int

	reserveInAuction  map[currency.ID]*big.Int
	serplusInAuction  *big.Int
	standardInAuction *big.Int

	failOnLot int // 1-based, 0 means never
}

func newFakeAuction() *fakeAuction {
	return &fakeAuction{
		reserveInAuction:  make(map[currency.ID]*big.Int),
		serplusInAuction:  big.NewInt(0),
		standardInAuction: big.NewInt(0),
	}
}

var errAuctionRefused = errors.New("auction refused")

func (a *fakeAuction) NewReserveLot(receiver ledger.AccountID, c currency.ID, amount, target *big.Int) error {
	if a.failOnLot > 0 && len(a.lots)+1 == a.failOnLot {
		return errAuctionRefused
	}
	a.lots = append(a.lots, auctionLot{receiver, c, amount, target})
	return nil
}

func (a *fakeAuction) NewSerplusAuction(amount *big.Int) error {
	a.serplus = append(a.serplus, amount)
	return nil
}

func (a *fakeAuction) NewStandardAuction(amount *big.Int) error {
	a.standard = append(a.standard, amount)
	return nil
}

func (a *fakeAuction) TotalReserveInAuction(c currency.ID) *big.Int {
	if v, ok := a.reserveInAuction[c]; ok {
		return v
	}
	return big.NewInt(0)
}

func (a *fakeAuction) TotalSerplusInAuction() *big.Int  { return a.serplusInAuction }
func (a *fakeAuction) TotalStandardInAuction() *big.Int { return a.standardInAuction }

func newTreasury(t *testing.T) (*ledger.Store, *treasury.Treasury, *fakeAuction) {
	t.Helper()
	store := ledger.NewStore()
	auction := newFakeAuction()
	return store, treasury.NewTreasury(store, auction, setr, 10), auction
}

func TestOnSystemSurplus_GrowsPool(t *testing.T) {
	_, tr, _ := newTreasury(t)
	if err := tr.OnSystemSurplus(big.NewInt(200)); err != nil {
		t.Fatal(err)
	}
	if got := tr.SurplusPool(); got.Int64() != 200 {
		t.Errorf("surplus pool: got %v, want 200", got)
	}
}

func TestOnSystemStandard_Overflow(t *testing.T) {
	_, tr, _ := newTreasury(t)
	if err := tr.OnSystemStandard(serpmath.MaxBalance()); err != nil {
		t.Fatal(err)
	}
	if err := tr.OnSystemStandard(big.NewInt(1)); !errors.Is(err, treasury.ErrStandardPoolOverflow) {
		t.Errorf("got %v, want ErrStandardPoolOverflow", err)
	}
}

func TestOffset_BurnsMinOfPools(t *testing.T) {
	store, tr, _ := newTreasury(t)
	if err := tr.OnSystemStandard(big.NewInt(300)); err != nil {
		t.Fatal(err)
	}
	if err := tr.OnSystemSurplus(big.NewInt(200)); err != nil {
		t.Fatal(err)
	}

	burned, err := tr.OffsetStandardAndSurplus()
	if err != nil {
		t.Fatalf("offset: %v", err)
	}
	if burned.Int64() != 200 {
		t.Errorf("burned: got %v, want 200", burned)
	}
	if got := tr.StandardPool(); got.Int64() != 100 {
		t.Errorf("standard pool: got %v, want 100", got)
	}
	if got := tr.SurplusPool(); got.Int64() != 0 {
		t.Errorf("surplus pool: got %v, want 0", got)
	}
	if got := store.TotalIssuance(setr); got.Int64() != 0 {
		t.Errorf("issuance after burn: got %v, want 0", got)
	}

	// Second invocation with an empty surplus pool is a no-op.
	burned, err = tr.OffsetStandardAndSurplus()
	if err != nil {
		t.Fatalf("second offset: %v", err)
	}
	if burned.Sign() != 0 {
		t.Errorf("second offset burned %v, want 0", burned)
	}
	if got := tr.StandardPool(); got.Int64() != 100 {
		t.Errorf("standard pool after no-op: got %v, want 100", got)
	}
}

func TestTotalReserves_NetsInAuction(t *testing.T) {
	store, tr, auction := newTreasury(t)
	if err := store.Deposit(dnar, tr.Account(), big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}
	auction.reserveInAuction[dnar] = big.NewInt(400)

	if got := tr.TotalReserves(dnar); got.Int64() != 1000 {
		t.Errorf("total reserves: got %v, want 1000", got)
	}
	if got := tr.TotalReservesNotInAuction(dnar); got.Int64() != 600 {
		t.Errorf("free reserves: got %v, want 600", got)
	}
}

func TestDepositAndWithdrawReserve(t *testing.T) {
	store, tr, _ := newTreasury(t)
	user := ledger.UserAccount(uuid.New())
	if err := store.Deposit(dnar, user, big.NewInt(500)); err != nil {
		t.Fatal(err)
	}

	if err := tr.DepositReserve(user, dnar, big.NewInt(300)); err != nil {
		t.Fatalf("deposit reserve: %v", err)
	}
	if got := tr.TotalReserves(dnar); got.Int64() != 300 {
		t.Errorf("treasury reserve: got %v, want 300", got)
	}
	if err := tr.WithdrawReserve(user, dnar, big.NewInt(100)); err != nil {
		t.Fatalf("withdraw reserve: %v", err)
	}
	if got := store.FreeBalance(dnar, user); got.Int64() != 300 {
		t.Errorf("user balance: got %v, want 300", got)
	}
}

func TestAuctionSerplus_GatedOnPool(t *testing.T) {
	_, tr, auction := newTreasury(t)
	if err := tr.OnSystemSurplus(big.NewInt(500)); err != nil {
		t.Fatal(err)
	}
	auction.serplusInAuction = big.NewInt(400)

	if err := tr.AuctionSerplus(big.NewInt(200)); !errors.Is(err, treasury.ErrSurplusPoolNotEnough) {
		t.Errorf("got %v, want ErrSurplusPoolNotEnough", err)
	}
	if err := tr.AuctionSerplus(big.NewInt(100)); err != nil {
		t.Fatalf("auction serplus: %v", err)
	}
	if len(auction.serplus) != 1 || auction.serplus[0].Int64() != 100 {
		t.Errorf("serplus auctions: got %v", auction.serplus)
	}
}

func TestAuctionStandard_GatedOnPool(t *testing.T) {
	_, tr, auction := newTreasury(t)
	if err := tr.OnSystemStandard(big.NewInt(300)); err != nil {
		t.Fatal(err)
	}

	if err := tr.AuctionStandard(big.NewInt(400)); !errors.Is(err, treasury.ErrStandardPoolNotEnough) {
		t.Errorf("got %v, want ErrStandardPoolNotEnough", err)
	}
	if err := tr.AuctionStandard(big.NewInt(300)); err != nil {
		t.Fatalf("auction standard: %v", err)
	}
	if len(auction.standard) != 1 {
		t.Errorf("standard auctions: got %v", auction.standard)
	}
}

func TestCreateAuctionLots_SplitsWithRemainder(t *testing.T) {
	store, tr, auction := newTreasury(t)
	receiver := ledger.UserAccount(uuid.New())
	if err := store.Deposit(dnar, tr.Account(), big.NewInt(25)); err != nil {
		t.Fatal(err)
	}
	tr.SetExpectedAuctionLotSize(dnar, big.NewInt(10))

	if err := tr.CreateAuctionLots(dnar, big.NewInt(25), big.NewInt(25), receiver, true); err != nil {
		t.Fatalf("create lots: %v", err)
	}
	want := []int64{10, 10, 5}
	if len(auction.lots) != len(want) {
		t.Fatalf("got %d lots, want %d", len(auction.lots), len(want))
	}
	for i, lot := range auction.lots {
		if lot.amount.Int64() != want[i] {
			t.Errorf("lot %d amount: got %v, want %d", i, lot.amount, want[i])
		}
		if lot.target.Int64() != want[i] {
			t.Errorf("lot %d target: got %v, want %d", i, lot.target, want[i])
		}
		if lot.receiver != receiver {
			t.Errorf("lot %d receiver: got %v", i, lot.receiver)
		}
	}
}

func TestCreateAuctionLots_SingleLotWhenNoSplit(t *testing.T) {
	store, tr, auction := newTreasury(t)
	receiver := ledger.UserAccount(uuid.New())
	if err := store.Deposit(dnar, tr.Account(), big.NewInt(25)); err != nil {
		t.Fatal(err)
	}
	tr.SetExpectedAuctionLotSize(dnar, big.NewInt(10))

	if err := tr.CreateAuctionLots(dnar, big.NewInt(25), big.NewInt(25), receiver, false); err != nil {
		t.Fatalf("create lots: %v", err)
	}
	if len(auction.lots) != 1 || auction.lots[0].amount.Int64() != 25 {
		t.Errorf("lots: got %+v, want one lot of 25", auction.lots)
	}
}

func TestCreateAuctionLots_ReserveNotEnough(t *testing.T) {
	store, tr, auction := newTreasury(t)
	receiver := ledger.UserAccount(uuid.New())
	if err := store.Deposit(dnar, tr.Account(), big.NewInt(25)); err != nil {
		t.Fatal(err)
	}
	auction.reserveInAuction[dnar] = big.NewInt(10)

	err := tr.CreateAuctionLots(dnar, big.NewInt(20), big.NewInt(20), receiver, true)
	if !errors.Is(err, treasury.ErrReserveNotEnough) {
		t.Errorf("got %v, want ErrReserveNotEnough", err)
	}
	if len(auction.lots) != 0 {
		t.Errorf("no lot should be created, got %d", len(auction.lots))
	}
}

func TestCreateAuctionLots_FailFast(t *testing.T) {
	store, tr, auction := newTreasury(t)
	receiver := ledger.UserAccount(uuid.New())
	if err := store.Deposit(dnar, tr.Account(), big.NewInt(25)); err != nil {
		t.Fatal(err)
	}
	tr.SetExpectedAuctionLotSize(dnar, big.NewInt(10))
	auction.failOnLot = 2

	err := tr.CreateAuctionLots(dnar, big.NewInt(25), big.NewInt(25), receiver, true)
	if !errors.Is(err, errAuctionRefused) {
		t.Errorf("got %v, want errAuctionRefused", err)
	}
	if len(auction.lots) != 1 {
		t.Errorf("lot creation must stop at the failure: got %d lots", len(auction.lots))
	}
}

func TestOffset_JournalsAsOffset(t *testing.T) {
	store, tr, _ := newTreasury(t)
	if err := tr.OnSystemStandard(big.NewInt(300)); err != nil {
		t.Fatal(err)
	}
	if err := tr.OnSystemSurplus(big.NewInt(200)); err != nil {
		t.Fatal(err)
	}
	var types []ledger.JournalType
	store.SetRecorder(func(j ledger.Journal) { types = append(types, j.Type) })

	if _, err := tr.OffsetStandardAndSurplus(); err != nil {
		t.Fatalf("offset: %v", err)
	}

	if len(types) != 1 || types[0] != ledger.JournalTypeOffset {
		t.Errorf("journal types: got %v, want [%v]", types, ledger.JournalTypeOffset)
	}
}

func TestReserveCustody_JournalsTagged(t *testing.T) {
	store, tr, _ := newTreasury(t)
	who := ledger.UserAccount(uuid.New())
	if err := store.Deposit(dnar, who, big.NewInt(500)); err != nil {
		t.Fatal(err)
	}
	var types []ledger.JournalType
	store.SetRecorder(func(j ledger.Journal) { types = append(types, j.Type) })

	if err := tr.DepositReserve(who, dnar, big.NewInt(300)); err != nil {
		t.Fatal(err)
	}
	if err := tr.WithdrawReserve(who, dnar, big.NewInt(100)); err != nil {
		t.Fatal(err)
	}

	want := []ledger.JournalType{ledger.JournalTypeReserveDeposit, ledger.JournalTypeReserveWithdraw}
	if len(types) != len(want) {
		t.Fatalf("got %d journals, want %d", len(types), len(want))
	}
	for i, jt := range want {
		if types[i] != jt {
			t.Errorf("journal %d: got %v, want %v", i, types[i], jt)
		}
	}
}
