package main

import (
	"testing"

	"SerpLedger/internal/currency"
)

func TestParseMinimumSupplies(t *testing.T) {
	floors, err := parseMinimumSupplies("SETR=1000000, SETUSD=500000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(floors) != 2 {
		t.Fatalf("got %d floors, want 2", len(floors))
	}
	if got := floors[currency.Token(currency.SETR)]; got == nil || got.Int64() != 1_000_000 {
		t.Errorf("SETR floor: got %v, want 1000000", got)
	}
	if got := floors[currency.Token(currency.SETUSD)]; got == nil || got.Int64() != 500_000 {
		t.Errorf("SETUSD floor: got %v, want 500000", got)
	}
}

func TestParseMinimumSupplies_Empty(t *testing.T) {
	floors, err := parseMinimumSupplies("")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(floors) != 0 {
		t.Errorf("got %d floors, want 0", len(floors))
	}
}

func TestParseMinimumSupplies_Rejects(t *testing.T) {
	for _, raw := range []string{
		"SETR",           // missing amount
		"NOPE=100",       // unknown currency
		"SETR=-5",        // negative
		"SETR=1.5",       // not an integer
		"SETR=100,SETUSD", // one bad pair poisons the whole config
	} {
		if _, err := parseMinimumSupplies(raw); err == nil {
			t.Errorf("%q: expected error", raw)
		}
	}
}
