package event

import "math/big"

// MarketPriceUpdate carries a market price observation for one currency.
// Prices use the oracle fixed-point scale.
type MarketPriceUpdate struct {
	CurrencyID     string
	Price          *big.Int
	PriceSequence  int64
	PriceTimestamp int64 // Microseconds since epoch, from the feed
}

func (m *MarketPriceUpdate) IdempotencyKey() string {
	return "market-price:" + m.CurrencyID + ":" + itoa(m.PriceSequence)
}

func (m *MarketPriceUpdate) EventType() EventType {
	return EventTypeMarketPriceUpdate
}

func (m *MarketPriceUpdate) Currency() *string {
	c := m.CurrencyID
	return &c
}

func (m *MarketPriceUpdate) SourceSequence() int64 {
	return m.PriceSequence
}

// PegPriceUpdate carries the peg target price for one stable currency.
type PegPriceUpdate struct {
	CurrencyID     string
	Price          *big.Int
	PriceSequence  int64
	PriceTimestamp int64
}

func (p *PegPriceUpdate) IdempotencyKey() string {
	return "peg-price:" + p.CurrencyID + ":" + itoa(p.PriceSequence)
}

func (p *PegPriceUpdate) EventType() EventType {
	return EventTypePegPriceUpdate
}

func (p *PegPriceUpdate) Currency() *string {
	c := p.CurrencyID
	return &c
}

func (p *PegPriceUpdate) SourceSequence() int64 {
	return p.PriceSequence
}
