package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/serpmath"

	"github.com/google/uuid"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrNegativeAmount      = errors.New("negative amount")
)

// MultiCurrency is the currency ledger contract consumed by the position
// ledger, the treasury, and the DEX. Deposit mints, Withdraw burns,
// Transfer conserves.
type MultiCurrency interface {
	Deposit(c currency.ID, to AccountID, amount *big.Int) error
	Withdraw(c currency.ID, from AccountID, amount *big.Int) error
	Transfer(c currency.ID, from, to AccountID, amount *big.Int) error
	TotalIssuance(c currency.ID) *big.Int
	FreeBalance(c currency.ID, a AccountID) *big.Int

	// Tagged runs fn with every journal it produces typed jt instead of
	// the default mint/burn/transfer classification. Nested calls keep
	// the innermost tag, so a swap inside a contraction still journals
	// its legs as a swap.
	Tagged(jt JournalType, fn func() error) error
}

type balanceKey struct {
	Account  AccountID
	Currency currency.ID
}

// Store is the in-memory multi-currency balance store. Every mutation is a
// double-entry journal against the balance map, so the ledger stays
// zero-sum per currency (issuance lives as the negative balance of the
// external issuance account). Not thread-safe: owned by the single-threaded
// deterministic core.
type Store struct {
	balances map[balanceKey]*big.Int
	sequence int64
	eventRef string
	tag      JournalType
	tagged   bool
	recorder func(Journal)
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		balances: make(map[balanceKey]*big.Int),
		now:      time.Now,
	}
}

// SetRecorder installs a sink receiving every applied journal.
func (s *Store) SetRecorder(rec func(Journal)) { s.recorder = rec }

// SetEventRef tags subsequent journals with the originating event key.
func (s *Store) SetEventRef(ref string) { s.eventRef = ref }

// SetClock overrides the journal timestamp source (tests).
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Tagged runs fn with every journal it applies typed jt. The previous
// tag is restored on return, so the innermost scope wins.
func (s *Store) Tagged(jt JournalType, fn func() error) error {
	prevTag, prevSet := s.tag, s.tagged
	s.tag, s.tagged = jt, true
	err := fn()
	s.tag, s.tagged = prevTag, prevSet
	return err
}

func (s *Store) balance(key balanceKey) *big.Int {
	if b, ok := s.balances[key]; ok {
		return b
	}
	return serpmath.Zero()
}

func (s *Store) apply(j Journal) {
	debitKey := balanceKey{Account: j.Debit, Currency: j.Currency}
	creditKey := balanceKey{Account: j.Credit, Currency: j.Currency}
	s.balances[debitKey] = new(big.Int).Add(s.balance(debitKey), j.Amount)
	s.balances[creditKey] = new(big.Int).Sub(s.balance(creditKey), j.Amount)
	if s.recorder != nil {
		s.recorder(j)
	}
}

func (s *Store) journal(jt JournalType, c currency.ID, debit, credit AccountID, amount *big.Int) Journal {
	if s.tagged {
		jt = s.tag
	}
	s.sequence++
	return Journal{
		JournalID: uuid.New(),
		EventRef:  s.eventRef,
		Sequence:  s.sequence,
		Debit:     debit,
		Credit:    credit,
		Currency:  c,
		Amount:    serpmath.Clone(amount),
		Type:      jt,
		Timestamp: s.now().UnixMicro(),
	}
}

func checkAmount(c currency.ID, amount *big.Int) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidCurrency, c)
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Deposit mints amount of c to the account.
func (s *Store) Deposit(c currency.ID, to AccountID, amount *big.Int) error {
	if err := checkAmount(c, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if _, err := serpmath.CheckedAdd(s.TotalIssuance(c), amount); err != nil {
		return fmt.Errorf("mint %v %s: %w", amount, c, err)
	}
	s.apply(s.journal(JournalTypeMint, c, to, issuanceAccount, amount))
	return nil
}

// Withdraw burns amount of c from the account.
func (s *Store) Withdraw(c currency.ID, from AccountID, amount *big.Int) error {
	if err := checkAmount(c, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if s.FreeBalance(c, from).Cmp(amount) < 0 {
		return fmt.Errorf("withdraw %v %s from %s: %w", amount, c, from, ErrInsufficientBalance)
	}
	s.apply(s.journal(JournalTypeBurn, c, issuanceAccount, from, amount))
	return nil
}

// Transfer moves amount of c between accounts.
func (s *Store) Transfer(c currency.ID, from, to AccountID, amount *big.Int) error {
	if err := checkAmount(c, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if s.FreeBalance(c, from).Cmp(amount) < 0 {
		return fmt.Errorf("transfer %v %s from %s: %w", amount, c, from, ErrInsufficientBalance)
	}
	s.apply(s.journal(JournalTypeTransfer, c, to, from, amount))
	return nil
}

// TotalIssuance returns the total minted supply of c.
func (s *Store) TotalIssuance(c currency.ID) *big.Int {
	b := s.balance(balanceKey{Account: issuanceAccount, Currency: c})
	return new(big.Int).Neg(b)
}

// FreeBalance returns the account's balance of c.
func (s *Store) FreeBalance(c currency.ID, a AccountID) *big.Int {
	return serpmath.Clone(s.balance(balanceKey{Account: a, Currency: c}))
}

// Restore replaces all balances from a snapshot and resets the journal
// sequence counter.
func (s *Store) Restore(balances map[AccountID]map[currency.ID]*big.Int, journalSequence int64) {
	s.balances = make(map[balanceKey]*big.Int)
	for account, byCurrency := range balances {
		for c, bal := range byCurrency {
			if bal.Sign() == 0 {
				continue
			}
			s.balances[balanceKey{Account: account, Currency: c}] = serpmath.Clone(bal)
		}
	}
	s.sequence = journalSequence
}

// JournalSequence returns the last assigned journal sequence.
func (s *Store) JournalSequence() int64 { return s.sequence }

// Snapshot returns a copy of all balances for hashing and persistence.
func (s *Store) Snapshot() map[AccountID]map[currency.ID]*big.Int {
	out := make(map[AccountID]map[currency.ID]*big.Int)
	for key, bal := range s.balances {
		if bal.Sign() == 0 {
			continue
		}
		m, ok := out[key.Account]
		if !ok {
			m = make(map[currency.ID]*big.Int)
			out[key.Account] = m
		}
		m[key.Currency] = serpmath.Clone(bal)
	}
	return out
}
