package dex

import (
	"fmt"
	"math/big"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/ledger"
	"SerpLedger/internal/serpmath"
)

type pairKey struct {
	a, b currency.ID
}

func orderedPair(x, y currency.ID) (pairKey, bool) {
	if x.String() < y.String() {
		return pairKey{a: x, b: y}, false
	}
	return pairKey{a: y, b: x}, true
}

type pool struct {
	reserveA *big.Int // reserves of pairKey.a
	reserveB *big.Int
}

// AMM is a constant-product exchange backing the Manager interface. Pool
// reserves are mirrored by balances of the DEX system account in the
// currency ledger, so swaps conserve supply. Not thread-safe: owned by the
// deterministic core.
type AMM struct {
	store   ledger.MultiCurrency
	account ledger.AccountID
	pools   map[pairKey]*pool
}

func NewAMM(store ledger.MultiCurrency) *AMM {
	return &AMM{
		store:   store,
		account: ledger.DexAccount,
		pools:   make(map[pairKey]*pool),
	}
}

// AddLiquidity funds a pool from the provider's balances.
func (d *AMM) AddLiquidity(provider ledger.AccountID, x, y currency.ID, amountX, amountY *big.Int) error {
	if x == y {
		return fmt.Errorf("%w: identical currencies", ErrInvalidSwapPath)
	}
	if err := d.store.Transfer(x, provider, d.account, amountX); err != nil {
		return err
	}
	if err := d.store.Transfer(y, provider, d.account, amountY); err != nil {
		_ = d.store.Transfer(x, d.account, provider, amountX)
		return err
	}
	key, swapped := orderedPair(x, y)
	p, ok := d.pools[key]
	if !ok {
		p = &pool{reserveA: serpmath.Zero(), reserveB: serpmath.Zero()}
		d.pools[key] = p
	}
	if swapped {
		amountX, amountY = amountY, amountX
	}
	p.reserveA.Add(p.reserveA, amountX)
	p.reserveB.Add(p.reserveB, amountY)
	return nil
}

func (d *AMM) reserves(in, out currency.ID) (reserveIn, reserveOut *big.Int, ok bool) {
	key, swapped := orderedPair(in, out)
	p, exists := d.pools[key]
	if !exists {
		return nil, nil, false
	}
	if swapped {
		return p.reserveB, p.reserveA, true
	}
	return p.reserveA, p.reserveB, true
}

// impactBps approximates the price impact of consuming amountIn against
// reserveIn, in basis points.
func impactBps(amountIn, reserveIn *big.Int) *big.Int {
	denom := new(big.Int).Add(reserveIn, amountIn)
	if denom.Sign() == 0 {
		return big.NewInt(10_000)
	}
	num := new(big.Int).Mul(amountIn, big.NewInt(10_000))
	return num.Quo(num, denom)
}

// amountOut = in * reserveOut / (reserveIn + in), floor.
func amountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	num := new(big.Int).Mul(amountIn, reserveOut)
	den := new(big.Int).Add(reserveIn, amountIn)
	if den.Sign() == 0 {
		return serpmath.Zero()
	}
	return num.Quo(num, den)
}

// amountIn = ceil(target * reserveIn / (reserveOut - target)).
func amountIn(target, reserveIn, reserveOut *big.Int) (*big.Int, bool) {
	if target.Cmp(reserveOut) >= 0 {
		return nil, false
	}
	num := new(big.Int).Mul(target, reserveIn)
	den := new(big.Int).Sub(reserveOut, target)
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q, true
}

func (d *AMM) quoteTarget(path []currency.ID, supplyAmount *big.Int, maxSlippageBps uint32) (*big.Int, bool) {
	if len(path) < 2 || supplyAmount.Sign() <= 0 {
		return nil, false
	}
	amount := serpmath.Clone(supplyAmount)
	for i := 0; i+1 < len(path); i++ {
		reserveIn, reserveOut, ok := d.reserves(path[i], path[i+1])
		if !ok || reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
			return nil, false
		}
		if impactBps(amount, reserveIn).Cmp(big.NewInt(int64(maxSlippageBps))) > 0 {
			return nil, false
		}
		amount = amountOut(amount, reserveIn, reserveOut)
		if amount.Sign() == 0 {
			return nil, false
		}
	}
	return amount, true
}

func (d *AMM) quoteSupply(path []currency.ID, targetAmount *big.Int, maxSlippageBps uint32) (*big.Int, bool) {
	if len(path) < 2 || targetAmount.Sign() <= 0 {
		return nil, false
	}
	amount := serpmath.Clone(targetAmount)
	for i := len(path) - 1; i > 0; i-- {
		reserveIn, reserveOut, ok := d.reserves(path[i-1], path[i])
		if !ok || reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
			return nil, false
		}
		in, feasible := amountIn(amount, reserveIn, reserveOut)
		if !feasible {
			return nil, false
		}
		if impactBps(in, reserveIn).Cmp(big.NewInt(int64(maxSlippageBps))) > 0 {
			return nil, false
		}
		amount = in
	}
	return amount, true
}

func (d *AMM) GetSwapTargetAmount(path []currency.ID, supplyAmount *big.Int, maxSlippageBps uint32) (*big.Int, bool) {
	return d.quoteTarget(path, supplyAmount, maxSlippageBps)
}

func (d *AMM) GetSwapSupplyAmount(path []currency.ID, targetAmount *big.Int, maxSlippageBps uint32) (*big.Int, bool) {
	return d.quoteSupply(path, targetAmount, maxSlippageBps)
}

// execute settles a quoted swap: move supply in, move target out, update
// reserves hop by hop. Both legs journal as swaps regardless of any
// enclosing tag.
func (d *AMM) execute(who ledger.AccountID, path []currency.ID, supplyAmount *big.Int) (*big.Int, error) {
	var amount *big.Int
	err := d.store.Tagged(ledger.JournalTypeSwap, func() error {
		if err := d.store.Transfer(path[0], who, d.account, supplyAmount); err != nil {
			return err
		}
		amount = serpmath.Clone(supplyAmount)
		for i := 0; i+1 < len(path); i++ {
			reserveIn, reserveOut, ok := d.reserves(path[i], path[i+1])
			if !ok {
				// Quoted immediately before execution; a missing pool here is
				// a programming error, surface it as liquidity failure.
				_ = d.store.Transfer(path[0], d.account, who, supplyAmount)
				return ErrInsufficientLiquidity
			}
			out := amountOut(amount, reserveIn, reserveOut)
			reserveIn.Add(reserveIn, amount)
			reserveOut.Sub(reserveOut, out)
			amount = out
		}
		return d.store.Transfer(path[len(path)-1], d.account, who, amount)
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

func (d *AMM) SwapWithExactSupply(who ledger.AccountID, path []currency.ID, supplyAmount, minTargetAmount *big.Int, maxSlippageBps uint32) (*big.Int, error) {
	target, ok := d.quoteTarget(path, supplyAmount, maxSlippageBps)
	if !ok {
		return nil, fmt.Errorf("%w: path %v", ErrExceededPriceImpact, path)
	}
	if minTargetAmount != nil && target.Cmp(minTargetAmount) < 0 {
		return nil, fmt.Errorf("%w: target %v < min %v", ErrInsufficientTargetAmount, target, minTargetAmount)
	}
	return d.execute(who, path, supplyAmount)
}

func (d *AMM) SwapWithExactTarget(who ledger.AccountID, path []currency.ID, targetAmount, maxSupplyAmount *big.Int, maxSlippageBps uint32) (*big.Int, error) {
	supply, ok := d.quoteSupply(path, targetAmount, maxSlippageBps)
	if !ok {
		return nil, fmt.Errorf("%w: path %v", ErrExceededPriceImpact, path)
	}
	if maxSupplyAmount != nil && supply.Cmp(maxSupplyAmount) > 0 {
		return nil, fmt.Errorf("%w: supply %v > max %v", ErrExcessiveSupplyAmount, supply, maxSupplyAmount)
	}
	if _, err := d.execute(who, path, supply); err != nil {
		return nil, err
	}
	return supply, nil
}
