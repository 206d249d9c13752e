package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/ledger"
	"SerpLedger/internal/serpmath"
)

var (
	ErrNoPosition      = errors.New("no position to transfer")
	ErrInvalidCurrency = errors.New("currency is not a recognized stable currency")
)

// PositionKey identifies one position record.
type PositionKey struct {
	Currency currency.ID
	Account  ledger.AccountID
}

// ConvertBalance maps position units to ledger amounts. Deployments can
// install a conversion curve; the default is identity.
type ConvertBalance func(*big.Int) *big.Int

func identity(v *big.Int) *big.Int { return serpmath.Clone(v) }

// Ledger owns every position record and the per-currency totals. All
// mutation goes through AdjustPosition / UpdatePosition / TransferPosition;
// totals and the sum of positions per currency always agree. Not
// thread-safe: owned by the deterministic core.
type Ledger struct {
	currencyLedger  ledger.MultiCurrency
	reserveCurrency currency.ID
	moduleAccount   ledger.AccountID

	convertReserve  ConvertBalance
	convertStandard ConvertBalance

	positions map[PositionKey]*Position
	totals    map[currency.ID]*Position
	consumers map[ledger.AccountID]int
}

func NewLedger(currencyLedger ledger.MultiCurrency, reserveCurrency currency.ID) *Ledger {
	return &Ledger{
		currencyLedger:  currencyLedger,
		reserveCurrency: reserveCurrency,
		moduleAccount:   ledger.SettmintAccount,
		convertReserve:  identity,
		convertStandard: identity,
		positions:       make(map[PositionKey]*Position),
		totals:          make(map[currency.ID]*Position),
		consumers:       make(map[ledger.AccountID]int),
	}
}

// SetConverts installs reserve/standard conversion hooks. nil keeps identity.
func (l *Ledger) SetConverts(reserve, standard ConvertBalance) {
	if reserve != nil {
		l.convertReserve = reserve
	}
	if standard != nil {
		l.convertStandard = standard
	}
}

// ModuleAccount returns the ledger account holding position collateral.
func (l *Ledger) ModuleAccount() ledger.AccountID { return l.moduleAccount }

// Position returns a copy of the record for (c, who); zero if absent.
func (l *Ledger) Position(c currency.ID, who ledger.AccountID) Position {
	return l.positions[PositionKey{Currency: c, Account: who}].Clone()
}

// HasPosition reports whether a record exists for (c, who).
func (l *Ledger) HasPosition(c currency.ID, who ledger.AccountID) bool {
	_, ok := l.positions[PositionKey{Currency: c, Account: who}]
	return ok
}

// TotalPositions returns a copy of the per-currency aggregate.
func (l *Ledger) TotalPositions(c currency.ID) Position {
	return l.totals[c].Clone()
}

// Consumers returns the liveness reference count of an account. An account
// with zero consumers is reapable.
func (l *Ledger) Consumers(a ledger.AccountID) int { return l.consumers[a] }

// TotalReserve returns the collateral held by the module account.
func (l *Ledger) TotalReserve() *big.Int {
	return l.currencyLedger.FreeBalance(l.reserveCurrency, l.moduleAccount)
}

// UpdatePosition applies signed deltas to the position record and the
// totals without touching ledger balances. Fails with Underflow/Overflow
// before any mutation if either resulting field leaves the balance range.
func (l *Ledger) UpdatePosition(who ledger.AccountID, c currency.ID, reserveDelta, standardDelta *big.Int) error {
	if !c.IsStable() {
		return fmt.Errorf("%w: %v", ErrInvalidCurrency, c)
	}
	key := PositionKey{Currency: c, Account: who}
	pos, existed := l.positions[key]
	if !existed {
		pos = newPosition()
	}
	total, hasTotal := l.totals[c]
	if !hasTotal {
		total = newPosition()
	}

	newReserve, err := serpmath.CheckedAddSigned(pos.Reserve, reserveDelta)
	if err != nil {
		return fmt.Errorf("position reserve: %w", err)
	}
	newStandard, err := serpmath.CheckedAddSigned(pos.Standard, standardDelta)
	if err != nil {
		return fmt.Errorf("position standard: %w", err)
	}
	newTotalReserve, err := serpmath.CheckedAddSigned(total.Reserve, reserveDelta)
	if err != nil {
		return fmt.Errorf("total reserve: %w", err)
	}
	newTotalStandard, err := serpmath.CheckedAddSigned(total.Standard, standardDelta)
	if err != nil {
		return fmt.Errorf("total standard: %w", err)
	}

	pos.Reserve, pos.Standard = newReserve, newStandard
	total.Reserve, total.Standard = newTotalReserve, newTotalStandard
	l.totals[c] = total

	switch {
	case pos.IsZero():
		if existed {
			delete(l.positions, key)
			l.decConsumers(who)
		}
	case !existed:
		l.positions[key] = pos
		l.consumers[who]++
	}
	return nil
}

func (l *Ledger) decConsumers(a ledger.AccountID) {
	if l.consumers[a] > 1 {
		l.consumers[a]--
		return
	}
	delete(l.consumers, a)
}

// AdjustPosition applies signed deltas and moves the matching funds:
// positive reserve deltas pull collateral from the caller into the module
// account (negative push it back), and standard deltas mint the stable
// currency to the caller (negative burn it back). All-or-nothing: a
// failing step unwinds whatever the call itself already moved.
func (l *Ledger) AdjustPosition(who ledger.AccountID, c currency.ID, reserveDelta, standardDelta *big.Int) error {
	if !c.IsStable() {
		return fmt.Errorf("%w: %v", ErrInvalidCurrency, c)
	}
	// Dry-run the record math first so arithmetic failures never move funds.
	if err := l.checkAdjustment(who, c, reserveDelta, standardDelta); err != nil {
		return err
	}

	reserveMove := l.convertReserve(new(big.Int).Abs(reserveDelta))
	standardMove := l.convertStandard(new(big.Int).Abs(standardDelta))

	undoReserve, err := l.moveReserve(who, reserveDelta.Sign(), reserveMove)
	if err != nil {
		return err
	}
	if err := l.moveStandard(who, c, standardDelta.Sign(), standardMove); err != nil {
		undoReserve()
		return err
	}

	// Post-validation this cannot fail.
	if err := l.UpdatePosition(who, c, reserveDelta, standardDelta); err != nil {
		return fmt.Errorf("position update after fund movement: %w", err)
	}
	return nil
}

func (l *Ledger) checkAdjustment(who ledger.AccountID, c currency.ID, reserveDelta, standardDelta *big.Int) error {
	key := PositionKey{Currency: c, Account: who}
	pos := l.positions[key]
	if pos == nil {
		pos = newPosition()
	}
	total := l.totals[c]
	if total == nil {
		total = newPosition()
	}
	if _, err := serpmath.CheckedAddSigned(pos.Reserve, reserveDelta); err != nil {
		return fmt.Errorf("position reserve: %w", err)
	}
	if _, err := serpmath.CheckedAddSigned(pos.Standard, standardDelta); err != nil {
		return fmt.Errorf("position standard: %w", err)
	}
	if _, err := serpmath.CheckedAddSigned(total.Reserve, reserveDelta); err != nil {
		return fmt.Errorf("total reserve: %w", err)
	}
	if _, err := serpmath.CheckedAddSigned(total.Standard, standardDelta); err != nil {
		return fmt.Errorf("total standard: %w", err)
	}
	return nil
}

// moveReserve transfers collateral and returns an unwind closure.
func (l *Ledger) moveReserve(who ledger.AccountID, sign int, amount *big.Int) (func(), error) {
	noop := func() {}
	if sign == 0 || amount.Sign() == 0 {
		return noop, nil
	}
	if sign > 0 {
		err := l.currencyLedger.Tagged(ledger.JournalTypeReserveDeposit, func() error {
			return l.currencyLedger.Transfer(l.reserveCurrency, who, l.moduleAccount, amount)
		})
		if err != nil {
			return noop, err
		}
		return func() {
			// Restores a transfer that just succeeded; cannot fail.
			_ = l.currencyLedger.Tagged(ledger.JournalTypeReserveWithdraw, func() error {
				return l.currencyLedger.Transfer(l.reserveCurrency, l.moduleAccount, who, amount)
			})
		}, nil
	}
	err := l.currencyLedger.Tagged(ledger.JournalTypeReserveWithdraw, func() error {
		return l.currencyLedger.Transfer(l.reserveCurrency, l.moduleAccount, who, amount)
	})
	if err != nil {
		return noop, err
	}
	return func() {
		_ = l.currencyLedger.Tagged(ledger.JournalTypeReserveDeposit, func() error {
			return l.currencyLedger.Transfer(l.reserveCurrency, who, l.moduleAccount, amount)
		})
	}, nil
}

// moveStandard mints newly issued debt to the caller or burns a repayment.
func (l *Ledger) moveStandard(who ledger.AccountID, c currency.ID, sign int, amount *big.Int) error {
	if sign == 0 || amount.Sign() == 0 {
		return nil
	}
	if sign > 0 {
		return l.currencyLedger.Deposit(c, who, amount)
	}
	return l.currencyLedger.Withdraw(c, who, amount)
}

// TransferPosition merges from's record for c onto to's record field-wise,
// then deletes from's record. Atomic: both records update or neither.
func (l *Ledger) TransferPosition(from, to ledger.AccountID, c currency.ID) error {
	if !c.IsStable() {
		return fmt.Errorf("%w: %v", ErrInvalidCurrency, c)
	}
	fromKey := PositionKey{Currency: c, Account: from}
	src, ok := l.positions[fromKey]
	if !ok {
		return fmt.Errorf("%w: %s has no %s position", ErrNoPosition, from, c)
	}
	dst := l.positions[PositionKey{Currency: c, Account: to}]
	if dst == nil {
		dst = newPosition()
	}

	// Both merged fields must stay inside the balance range before any
	// record changes.
	if _, err := serpmath.CheckedAdd(dst.Reserve, src.Reserve); err != nil {
		return fmt.Errorf("merged reserve: %w", err)
	}
	if _, err := serpmath.CheckedAdd(dst.Standard, src.Standard); err != nil {
		return fmt.Errorf("merged standard: %w", err)
	}

	reserve, standard := serpmath.Clone(src.Reserve), serpmath.Clone(src.Standard)
	if err := l.UpdatePosition(from, c, new(big.Int).Neg(reserve), new(big.Int).Neg(standard)); err != nil {
		return err
	}
	if err := l.UpdatePosition(to, c, reserve, standard); err != nil {
		// Checked above; restore from to keep the pair atomic regardless.
		_ = l.UpdatePosition(from, c, reserve, standard)
		return err
	}
	return nil
}

// SnapshotPositions returns all records in deterministic key order.
func (l *Ledger) SnapshotPositions() []PositionRecord {
	records := make([]PositionRecord, 0, len(l.positions))
	for key, pos := range l.positions {
		records = append(records, PositionRecord{Key: key, Position: pos.Clone()})
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Key, records[j].Key
		if a.Currency != b.Currency {
			return a.Currency.String() < b.Currency.String()
		}
		return a.Account.String() < b.Account.String()
	})
	return records
}

// PositionRecord pairs a key with a copied position for snapshots.
type PositionRecord struct {
	Key      PositionKey
	Position Position
}

// RestorePositions reinstalls records from a snapshot, rebuilding the
// totals and consumer counts from scratch.
func (l *Ledger) RestorePositions(records []PositionRecord) {
	l.positions = make(map[PositionKey]*Position, len(records))
	l.totals = make(map[currency.ID]*Position)
	l.consumers = make(map[ledger.AccountID]int)
	for _, r := range records {
		pos := r.Position.Clone()
		l.positions[r.Key] = &pos
		total := l.totals[r.Key.Currency]
		if total == nil {
			total = newPosition()
			l.totals[r.Key.Currency] = total
		}
		total.Reserve.Add(total.Reserve, pos.Reserve)
		total.Standard.Add(total.Standard, pos.Standard)
		l.consumers[r.Key.Account]++
	}
}
