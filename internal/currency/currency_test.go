package currency_test

import (
	"SerpLedger/internal/currency"
	"testing"
)

func TestParse_Token(t *testing.T) {
	id, err := currency.Parse("SETUSD")
	if err != nil {
		t.Fatalf("parse SETUSD: %v", err)
	}
	if id != currency.Token(currency.SETUSD) {
		t.Errorf("got %v, want Token(SETUSD)", id)
	}
}

func TestParse_DexShare(t *testing.T) {
	id, err := currency.Parse("LP-DNAR-SETR")
	if err != nil {
		t.Fatalf("parse LP-DNAR-SETR: %v", err)
	}
	base, quote, ok := id.DexSharePair()
	if !ok {
		t.Fatal("expected a dex share id")
	}
	if base != currency.DNAR || quote != currency.SETR {
		t.Errorf("got pair (%v, %v), want (DNAR, SETR)", base, quote)
	}
	if id.String() != "LP-DNAR-SETR" {
		t.Errorf("round trip: got %q", id.String())
	}
}

func TestParse_Unknown(t *testing.T) {
	if _, err := currency.Parse("DOGE"); err == nil {
		t.Error("DOGE should not parse")
	}
	if _, err := currency.Parse("LP-DNAR"); err == nil {
		t.Error("malformed dex share should not parse")
	}
}

func TestIsStable(t *testing.T) {
	if !currency.Token(currency.SETR).IsStable() {
		t.Error("SETR is a stable currency")
	}
	if !currency.Token(currency.SETEUR).IsStable() {
		t.Error("SETEUR is a stable currency")
	}
	if currency.Token(currency.DNAR).IsStable() {
		t.Error("DNAR is the native token, not a stable currency")
	}
	if currency.DexShare(currency.SETUSD, currency.DNAR).IsStable() {
		t.Error("dex shares are never stable currencies")
	}
}

func TestStableCurrencies_ReserveFirst(t *testing.T) {
	list := currency.StableCurrencies()
	if len(list) == 0 {
		t.Fatal("stable currency list is empty")
	}
	if list[0] != currency.Token(currency.SETR) {
		t.Errorf("reserve-peg currency must lead the pass order, got %v", list[0])
	}
	for _, id := range list {
		if !id.IsStable() {
			t.Errorf("%v in pass list but not stable", id)
		}
	}
}

func TestDexShare_Valid(t *testing.T) {
	if !currency.DexShare(currency.DRAM, currency.SETR).Valid() {
		t.Error("known pair should be valid")
	}
	if currency.Token(currency.TokenSymbol(200)).Valid() {
		t.Error("unknown symbol should be invalid")
	}
}
