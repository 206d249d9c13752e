package ledger

import (
	"fmt"
	"math/big"

	"SerpLedger/internal/currency"

	"github.com/google/uuid"
)

// JournalType labels the purpose of a journal entry.
type JournalType int32

const (
	JournalTypeMint JournalType = iota
	JournalTypeBurn
	JournalTypeTransfer
	JournalTypeReserveDeposit
	JournalTypeReserveWithdraw
	JournalTypeSwap
	JournalTypeOffset
	JournalTypeSerpExpansion
	JournalTypeSerpContraction
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeMint:
		return "mint"
	case JournalTypeBurn:
		return "burn"
	case JournalTypeTransfer:
		return "transfer"
	case JournalTypeReserveDeposit:
		return "reserve_deposit"
	case JournalTypeReserveWithdraw:
		return "reserve_withdraw"
	case JournalTypeSwap:
		return "swap"
	case JournalTypeOffset:
		return "offset"
	case JournalTypeSerpExpansion:
		return "serp_expansion"
	case JournalTypeSerpContraction:
		return "serp_contraction"
	default:
		return "unknown"
	}
}

// Journal is one double-entry movement: the debit account gains Amount of
// Currency, the credit account loses it. Mints debit the receiver and
// credit the external issuance boundary; burns do the reverse.
type Journal struct {
	JournalID uuid.UUID
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Debit     AccountID
	Credit    AccountID
	Currency  currency.ID
	Amount    *big.Int
	Type      JournalType
	Timestamp int64
}

// Batch groups the journals produced by one logical operation.
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate checks structural soundness: positive amounts, valid currencies,
// distinct debit/credit accounts.
func (b *Batch) Validate() error {
	for i, j := range b.Journals {
		if j.Amount == nil || j.Amount.Sign() <= 0 {
			return fmt.Errorf("journal %d: non-positive amount", i)
		}
		if !j.Currency.Valid() {
			return fmt.Errorf("journal %d: invalid currency %v", i, j.Currency)
		}
		if j.Debit == j.Credit {
			return fmt.Errorf("journal %d: debit and credit are the same account %v", i, j.Debit)
		}
	}
	return nil
}
