package treasury

import (
	"fmt"
	"math/big"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/ledger"
	"SerpLedger/internal/serpmath"
)

// AuctionHandler is the external auction subsystem the treasury hands
// lots to. Implementations report in-flight totals so pool reads can net
// out amounts already locked in auctions.
type AuctionHandler interface {
	NewReserveLot(refundReceiver ledger.AccountID, c currency.ID, amount, target *big.Int) error
	NewSerplusAuction(amount *big.Int) error
	NewStandardAuction(amount *big.Int) error

	TotalReserveInAuction(c currency.ID) *big.Int
	TotalSerplusInAuction() *big.Int
	TotalStandardInAuction() *big.Int
}

// Treasury holds the system surplus and bad-debt pools. Surplus lives as
// an ordinary ledger balance on the treasury account; standard is a
// counter of bad debt awaiting offset. The treasury is the sole economic
// controller of its account but never mutates balances except through
// the currency ledger's own primitives.
type Treasury struct {
	currencies ledger.MultiCurrency
	auction    AuctionHandler
	account    ledger.AccountID
	stable     currency.ID

	standardPool    *big.Int
	expectedLotSize map[currency.ID]*big.Int
	maxAuctionLots  uint64
}

func NewTreasury(currencies ledger.MultiCurrency, auction AuctionHandler, stable currency.ID, maxAuctionLots uint64) *Treasury {
	return &Treasury{
		currencies:      currencies,
		auction:         auction,
		account:         ledger.TreasuryAccount,
		stable:          stable,
		standardPool:    serpmath.Zero(),
		expectedLotSize: make(map[currency.ID]*big.Int),
		maxAuctionLots:  maxAuctionLots,
	}
}

func (t *Treasury) Account() ledger.AccountID { return t.account }

func (t *Treasury) StableCurrency() currency.ID { return t.stable }

// SurplusPool is the treasury's free stable-currency balance.
func (t *Treasury) SurplusPool() *big.Int {
	return t.currencies.FreeBalance(t.stable, t.account)
}

// StandardPool is the accumulated bad debt awaiting offset.
func (t *Treasury) StandardPool() *big.Int {
	return serpmath.Clone(t.standardPool)
}

// TotalReserves is the treasury's holding of one reserve currency.
func (t *Treasury) TotalReserves(c currency.ID) *big.Int {
	return t.currencies.FreeBalance(c, t.account)
}

// TotalReservesNotInAuction nets out reserve already locked in in-flight
// auctions.
func (t *Treasury) TotalReservesNotInAuction(c currency.ID) *big.Int {
	return serpmath.SaturatingSub(t.TotalReserves(c), t.auction.TotalReserveInAuction(c))
}

// OnSystemStandard records bad debt handed over by the position layer.
func (t *Treasury) OnSystemStandard(amount *big.Int) error {
	next, err := serpmath.CheckedAdd(t.standardPool, amount)
	if err != nil {
		return fmt.Errorf("%w: pool %v + %v", ErrStandardPoolOverflow, t.standardPool, amount)
	}
	t.standardPool = next
	return nil
}

// OnSystemSurplus mints surplus stable currency straight to the treasury.
func (t *Treasury) OnSystemSurplus(amount *big.Int) error {
	return t.currencies.Deposit(t.stable, t.account, amount)
}

// DepositSerplus moves stable currency from an external account into the
// surplus pool.
func (t *Treasury) DepositSerplus(from ledger.AccountID, amount *big.Int) error {
	return t.currencies.Transfer(t.stable, from, t.account, amount)
}

// DepositReserve takes reserve collateral into treasury custody.
func (t *Treasury) DepositReserve(from ledger.AccountID, c currency.ID, amount *big.Int) error {
	return t.currencies.Tagged(ledger.JournalTypeReserveDeposit, func() error {
		return t.currencies.Transfer(c, from, t.account, amount)
	})
}

// WithdrawReserve releases reserve collateral from treasury custody.
func (t *Treasury) WithdrawReserve(to ledger.AccountID, c currency.ID, amount *big.Int) error {
	return t.currencies.Tagged(ledger.JournalTypeReserveWithdraw, func() error {
		return t.currencies.Transfer(c, t.account, to, amount)
	})
}

// OffsetStandardAndSurplus nets bad debt against surplus at the end of a
// cycle: burn min(standard, surplus) stable currency from the treasury
// and reduce the standard pool by the same amount. Bounded by
// construction, so the burn cannot fail a solvency check.
func (t *Treasury) OffsetStandardAndSurplus() (*big.Int, error) {
	offset := serpmath.Min(t.standardPool, t.SurplusPool())
	if serpmath.IsZero(offset) {
		return serpmath.Zero(), nil
	}
	err := t.currencies.Tagged(ledger.JournalTypeOffset, func() error {
		return t.currencies.Withdraw(t.stable, t.account, offset)
	})
	if err != nil {
		return nil, fmt.Errorf("offset burn: %w", err)
	}
	t.standardPool = new(big.Int).Sub(t.standardPool, offset)
	return offset, nil
}

// ExpectedAuctionLotSize returns the per-currency lot splitting policy,
// zero when unset.
func (t *Treasury) ExpectedAuctionLotSize(c currency.ID) *big.Int {
	if size, ok := t.expectedLotSize[c]; ok {
		return serpmath.Clone(size)
	}
	return serpmath.Zero()
}

func (t *Treasury) SetExpectedAuctionLotSize(c currency.ID, size *big.Int) {
	t.expectedLotSize[c] = serpmath.Clone(size)
}

// PoolSnapshot captures the treasury's counter state for persistence.
// Surplus is not part of it: surplus is an ordinary ledger balance and
// travels with the balance snapshot.
type PoolSnapshot struct {
	StandardPool     *big.Int
	ExpectedLotSizes map[currency.ID]*big.Int
}

func (t *Treasury) SnapshotPools() PoolSnapshot {
	sizes := make(map[currency.ID]*big.Int, len(t.expectedLotSize))
	for c, size := range t.expectedLotSize {
		sizes[c] = serpmath.Clone(size)
	}
	return PoolSnapshot{StandardPool: serpmath.Clone(t.standardPool), ExpectedLotSizes: sizes}
}

func (t *Treasury) RestorePools(snap PoolSnapshot) {
	t.standardPool = serpmath.Clone(snap.StandardPool)
	t.expectedLotSize = make(map[currency.ID]*big.Int, len(snap.ExpectedLotSizes))
	for c, size := range snap.ExpectedLotSizes {
		t.expectedLotSize[c] = serpmath.Clone(size)
	}
}

// AuctionSerplus starts a surplus auction, gated on the pool net of
// surplus already in auction.
func (t *Treasury) AuctionSerplus(amount *big.Int) error {
	committed, err := serpmath.CheckedAdd(t.auction.TotalSerplusInAuction(), amount)
	if err != nil || committed.Cmp(t.SurplusPool()) > 0 {
		return fmt.Errorf("%w: want %v, pool %v", ErrSurplusPoolNotEnough, amount, t.SurplusPool())
	}
	return t.auction.NewSerplusAuction(amount)
}

// AuctionStandard starts a standard (debt) auction, gated on the pool
// net of standard already in auction.
func (t *Treasury) AuctionStandard(amount *big.Int) error {
	committed, err := serpmath.CheckedAdd(t.auction.TotalStandardInAuction(), amount)
	if err != nil || committed.Cmp(t.standardPool) > 0 {
		return fmt.Errorf("%w: want %v, pool %v", ErrStandardPoolNotEnough, amount, t.standardPool)
	}
	return t.auction.NewStandardAuction(amount)
}
