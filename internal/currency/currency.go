package currency

import (
	"fmt"
	"strings"
)

// TokenSymbol identifies a concrete token in the currency space.
type TokenSymbol uint8

const (
	// DNAR is the native reserve token bought back and burned on expansion.
	DNAR TokenSymbol = iota
	// DRAM is the dexer (DEX incentive) token.
	DRAM
	// SETR is the reserve-peg stable currency backing all positions.
	SETR
	SETUSD
	SETEUR
	SETGBP
	SETCHF
	SETSAR
	// RENBTC is a bridged asset wrapper.
	RENBTC
)

var tokenNames = map[TokenSymbol]string{
	DNAR:   "DNAR",
	DRAM:   "DRAM",
	SETR:   "SETR",
	SETUSD: "SETUSD",
	SETEUR: "SETEUR",
	SETGBP: "SETGBP",
	SETCHF: "SETCHF",
	SETSAR: "SETSAR",
	RENBTC: "RENBTC",
}

var tokenDecimals = map[TokenSymbol]uint8{
	DNAR:   10,
	DRAM:   10,
	SETR:   10,
	SETUSD: 10,
	SETEUR: 10,
	SETGBP: 10,
	SETCHF: 10,
	SETSAR: 10,
	RENBTC: 8,
}

func (s TokenSymbol) String() string {
	if name, ok := tokenNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TokenSymbol(%d)", uint8(s))
}

// Valid reports whether the symbol is part of the recognized token set.
func (s TokenSymbol) Valid() bool {
	_, ok := tokenNames[s]
	return ok
}

// Kind discriminates the currency identifier variants.
type Kind uint8

const (
	KindToken Kind = iota
	KindDexShare
)

// ID is the closed currency identifier: either a single token or a
// DEX-share pair. The zero value is Token(DNAR).
type ID struct {
	kind  Kind
	base  TokenSymbol
	quote TokenSymbol // DexShare only
}

// Token builds a plain token currency id.
func Token(sym TokenSymbol) ID {
	return ID{kind: KindToken, base: sym}
}

// DexShare builds a DEX liquidity-share currency id for the (base, quote) pair.
func DexShare(base, quote TokenSymbol) ID {
	return ID{kind: KindDexShare, base: base, quote: quote}
}

func (id ID) Kind() Kind { return id.kind }

func (id ID) IsToken() bool    { return id.kind == KindToken }
func (id ID) IsDexShare() bool { return id.kind == KindDexShare }

// TokenSymbol returns the underlying symbol of a plain token id.
func (id ID) TokenSymbol() (TokenSymbol, bool) {
	if id.kind != KindToken {
		return 0, false
	}
	return id.base, true
}

// DexSharePair returns the pair of a DEX-share id.
func (id ID) DexSharePair() (base, quote TokenSymbol, ok bool) {
	if id.kind != KindDexShare {
		return 0, 0, false
	}
	return id.base, id.quote, true
}

// Valid reports whether every symbol referenced by the id is recognized.
func (id ID) Valid() bool {
	switch id.kind {
	case KindToken:
		return id.base.Valid()
	case KindDexShare:
		return id.base.Valid() && id.quote.Valid()
	}
	return false
}

func (id ID) String() string {
	switch id.kind {
	case KindToken:
		return id.base.String()
	case KindDexShare:
		return fmt.Sprintf("LP-%s-%s", id.base, id.quote)
	}
	return "Invalid"
}

// Decimals returns the decimal places of the currency. DEX shares use the
// base token's decimals.
func (id ID) Decimals() (uint8, bool) {
	d, ok := tokenDecimals[id.base]
	return d, ok
}

// Parse resolves a symbol string ("SETUSD", "LP-DNAR-SETR") into an ID.
func Parse(s string) (ID, error) {
	if rest, ok := strings.CutPrefix(s, "LP-"); ok {
		parts := strings.SplitN(rest, "-", 2)
		if len(parts) != 2 {
			return ID{}, fmt.Errorf("malformed dex share currency %q", s)
		}
		base, err := parseToken(parts[0])
		if err != nil {
			return ID{}, err
		}
		quote, err := parseToken(parts[1])
		if err != nil {
			return ID{}, err
		}
		return DexShare(base, quote), nil
	}
	sym, err := parseToken(s)
	if err != nil {
		return ID{}, err
	}
	return Token(sym), nil
}

func parseToken(s string) (TokenSymbol, error) {
	for sym, name := range tokenNames {
		if name == s {
			return sym, nil
		}
	}
	return 0, fmt.Errorf("unknown token symbol %q", s)
}

// Stable currency set. SETR is the reserve-peg currency; the rest are
// fiat-pegged stable currencies.
var stableSet = map[ID]struct{}{
	Token(SETR):   {},
	Token(SETUSD): {},
	Token(SETEUR): {},
	Token(SETGBP): {},
	Token(SETCHF): {},
	Token(SETSAR): {},
}

// IsStable reports whether the id belongs to the recognized stable-currency set.
func (id ID) IsStable() bool {
	_, ok := stableSet[id]
	return ok
}

// StableCurrencies returns the stabilized currency list in pass order:
// the reserve-peg currency first, then the fiat-pegged set.
func StableCurrencies() []ID {
	return []ID{
		Token(SETR),
		Token(SETUSD),
		Token(SETEUR),
		Token(SETGBP),
		Token(SETCHF),
		Token(SETSAR),
	}
}
