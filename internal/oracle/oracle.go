package oracle

import (
	"math/big"
	"sync"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/serpmath"
)

// PriceScale is the fixed-point scale of all oracle prices (18 decimals).
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PriceProvider is the oracle contract consumed by the elasticity engine.
// A false second return means the feed has no usable price.
type PriceProvider interface {
	MarketPrice(c currency.ID) (*big.Int, bool)
	PegPrice(c currency.ID) (*big.Int, bool)
	RelativePrice(a, b currency.ID) (*big.Int, bool)
}

type pricePoint struct {
	price    *big.Int
	sequence int64
}

// FeedCache holds the latest market and peg prices per currency, updated
// from feed events. Stale updates (sequence not advancing) are ignored so
// replays and duplicated deliveries are idempotent. Reads can come from the
// query surface concurrently with core-loop writes, hence the lock.
type FeedCache struct {
	mu     sync.RWMutex
	market map[currency.ID]pricePoint
	peg    map[currency.ID]pricePoint
}

func NewFeedCache() *FeedCache {
	return &FeedCache{
		market: make(map[currency.ID]pricePoint),
		peg:    make(map[currency.ID]pricePoint),
	}
}

// SetMarketPrice records a market price observation. Returns false if the
// update was stale and dropped.
func (f *FeedCache) SetMarketPrice(c currency.ID, price *big.Int, sequence int64) bool {
	return f.set(f.market, c, price, sequence)
}

// SetPegPrice records a peg (policy target) price.
func (f *FeedCache) SetPegPrice(c currency.ID, price *big.Int, sequence int64) bool {
	return f.set(f.peg, c, price, sequence)
}

func (f *FeedCache) set(m map[currency.ID]pricePoint, c currency.ID, price *big.Int, sequence int64) bool {
	if price == nil || price.Sign() <= 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := m[c]; ok && sequence <= cur.sequence {
		return false
	}
	m[c] = pricePoint{price: serpmath.Clone(price), sequence: sequence}
	return true
}

func (f *FeedCache) MarketPrice(c currency.ID) (*big.Int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.market[c]
	if !ok {
		return nil, false
	}
	return serpmath.Clone(p.price), true
}

func (f *FeedCache) PegPrice(c currency.ID) (*big.Int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.peg[c]
	if !ok {
		return nil, false
	}
	return serpmath.Clone(p.price), true
}

// RelativePrice returns price(a)/price(b) at PriceScale.
func (f *FeedCache) RelativePrice(a, b currency.ID) (*big.Int, bool) {
	pa, ok := f.MarketPrice(a)
	if !ok {
		return nil, false
	}
	pb, ok := f.MarketPrice(b)
	if !ok || pb.Sign() == 0 {
		return nil, false
	}
	rel := new(big.Int).Mul(pa, PriceScale)
	return rel.Quo(rel, pb), true
}
