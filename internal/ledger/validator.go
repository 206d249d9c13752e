package ledger

import (
	"fmt"
	"math/big"

	"SerpLedger/internal/currency"
)

// InvariantValidator checks ledger invariants after mutation.
type InvariantValidator struct {
	store *Store
}

func NewInvariantValidator(store *Store) *InvariantValidator {
	return &InvariantValidator{store: store}
}

// ValidateConservation verifies the ledger is zero-sum per currency: every
// unit held by an account is matched by the issuance boundary.
func (v *InvariantValidator) ValidateConservation() error {
	totals := make(map[currency.ID]*big.Int)
	for key, bal := range v.store.balances {
		t, ok := totals[key.Currency]
		if !ok {
			t = new(big.Int)
			totals[key.Currency] = t
		}
		t.Add(t, bal)
	}
	for c, total := range totals {
		if total.Sign() != 0 {
			return fmt.Errorf("conservation broken for %s: net %v", c, total)
		}
	}
	return nil
}

// ValidateNonNegative verifies no account other than the issuance boundary
// holds a negative balance.
func (v *InvariantValidator) ValidateNonNegative() error {
	for key, bal := range v.store.balances {
		if key.Account == issuanceAccount {
			continue
		}
		if bal.Sign() < 0 {
			return fmt.Errorf("account %s has negative %s balance: %v", key.Account, key.Currency, bal)
		}
	}
	return nil
}

// ValidateAccountNonNegative checks a single account balance.
func (v *InvariantValidator) ValidateAccountNonNegative(c currency.ID, a AccountID) error {
	if bal := v.store.FreeBalance(c, a); bal.Sign() < 0 {
		return fmt.Errorf("account %s has negative %s balance: %v", a, c, bal)
	}
	return nil
}
