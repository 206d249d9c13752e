package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope is the top-level account namespace.
type AccountScope uint8

const (
	ScopeUser AccountScope = iota
	ScopeSystem
	ScopeExternal
)

// AccountID identifies a balance owner. User accounts carry a UUID; system
// and external accounts carry a stable name. The struct is comparable and
// used directly as a map key.
type AccountID struct {
	Scope AccountScope
	User  uuid.UUID
	Name  string
}

// UserAccount builds an account id for an end user.
func UserAccount(id uuid.UUID) AccountID {
	return AccountID{Scope: ScopeUser, User: id}
}

// SystemAccount builds an account id for a named module-owned account.
func SystemAccount(name string) AccountID {
	return AccountID{Scope: ScopeSystem, Name: name}
}

// Well-known system accounts. The treasury account is the sole economic
// controller of serplus and seized reserves; the settmint account holds
// position collateral.
var (
	TreasuryAccount   = SystemAccount("serp/treasury")
	SettmintAccount   = SystemAccount("serp/settmint")
	RewardPoolAccount = SystemAccount("serp/settpay")
	CharityAccount    = SystemAccount("serp/charity")
	DexAccount        = SystemAccount("serp/dex")

	// issuanceAccount is the external mint/burn boundary. Its (negative)
	// balance per currency is the total issuance, keeping the ledger
	// zero-sum.
	issuanceAccount = AccountID{Scope: ScopeExternal, Name: "issuance"}
)

func (a AccountID) String() string {
	switch a.Scope {
	case ScopeUser:
		return fmt.Sprintf("user:%s", a.User)
	case ScopeSystem:
		return fmt.Sprintf("system:%s", a.Name)
	case ScopeExternal:
		return fmt.Sprintf("external:%s", a.Name)
	}
	return "unknown"
}

// IsUser reports whether the account belongs to an end user.
func (a AccountID) IsUser() bool { return a.Scope == ScopeUser }

// ParseAccount is the inverse of String. It is used when rebuilding
// balances from persisted snapshots.
func ParseAccount(s string) (AccountID, error) {
	scope, rest, ok := strings.Cut(s, ":")
	if !ok {
		return AccountID{}, fmt.Errorf("malformed account %q", s)
	}
	switch scope {
	case "user":
		id, err := uuid.Parse(rest)
		if err != nil {
			return AccountID{}, fmt.Errorf("malformed user account %q: %w", s, err)
		}
		return UserAccount(id), nil
	case "system":
		return SystemAccount(rest), nil
	case "external":
		return AccountID{Scope: ScopeExternal, Name: rest}, nil
	}
	return AccountID{}, fmt.Errorf("unknown account scope %q", scope)
}
