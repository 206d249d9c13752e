package treasury

import (
	"fmt"
	"math/big"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/dex"
	"SerpLedger/internal/ledger"
	"SerpLedger/internal/oracle"
	"SerpLedger/internal/serpmath"
)

// TesDirection tells which branch an elasticity pass took for a currency.
type TesDirection int32

const (
	TesNone TesDirection = iota
	TesExpanded
	TesContracted
	TesSkipped
)

func (d TesDirection) String() string {
	switch d {
	case TesExpanded:
		return "Expanded"
	case TesContracted:
		return "Contracted"
	case TesSkipped:
		return "Skipped"
	default:
		return "None"
	}
}

// TesOutcome is the per-currency result of one elasticity pass.
type TesOutcome struct {
	Currency  currency.ID
	Direction TesDirection
	Amount    *big.Int
	Err       error
}

// Engine is the SERP-TES elasticity engine: per cycle it compares market
// price to peg per stabilized currency and expands or contracts supply.
// Oracle and DEX are injected collaborators, never ambient state, so the
// engine runs against deterministic fakes in tests.
type Engine struct {
	treasury   *Treasury
	currencies ledger.MultiCurrency
	prices     oracle.PriceProvider
	swaps      dex.Manager

	native      currency.ID // buy-back-and-burn token (DNAR)
	reservePeg  currency.ID // primary pegged reserve currency (SETR)
	stableList  []currency.ID
	minSupply   map[currency.ID]*big.Int
	rewardPool  ledger.AccountID
	charityPool ledger.AccountID

	maxSlippageBps uint32
}

func NewEngine(t *Treasury, prices oracle.PriceProvider, swaps dex.Manager, native currency.ID, maxSlippageBps uint32) *Engine {
	return &Engine{
		treasury:       t,
		currencies:     t.currencies,
		prices:         prices,
		swaps:          swaps,
		native:         native,
		reservePeg:     t.stable,
		stableList:     currency.StableCurrencies(),
		minSupply:      make(map[currency.ID]*big.Int),
		rewardPool:     ledger.RewardPoolAccount,
		charityPool:    ledger.CharityAccount,
		maxSlippageBps: maxSlippageBps,
	}
}

// SetMinimumSupply installs the per-currency contraction floor.
func (e *Engine) SetMinimumSupply(c currency.ID, floor *big.Int) {
	e.minSupply[c] = serpmath.Clone(floor)
}

func (e *Engine) minimumSupply(c currency.ID) *big.Int {
	if floor, ok := e.minSupply[c]; ok {
		return floor
	}
	return serpmath.Zero()
}

// RunTes runs one elasticity pass over the stabilized currency list in
// order. A missing feed or a failed leg for one currency never blocks
// the others; each currency's outcome is reported separately.
func (e *Engine) RunTes() []TesOutcome {
	outcomes := make([]TesOutcome, 0, len(e.stableList))
	for _, c := range e.stableList {
		outcomes = append(outcomes, e.runCurrency(c))
	}
	return outcomes
}

func (e *Engine) runCurrency(c currency.ID) TesOutcome {
	market, okMarket := e.prices.MarketPrice(c)
	peg, okPeg := e.prices.PegPrice(c)
	if !okMarket || !okPeg {
		return TesOutcome{Currency: c, Direction: TesSkipped, Err: fmt.Errorf("%w: %s", ErrInvalidFeedPrice, c)}
	}

	supply := e.currencies.TotalIssuance(c)
	switch market.Cmp(peg) {
	case 1:
		expandBy := serpmath.SupplyChange(market, peg, supply)
		if serpmath.IsZero(expandBy) {
			return TesOutcome{Currency: c, Direction: TesNone, Amount: serpmath.Zero()}
		}
		if err := e.SerpUp(expandBy, c); err != nil {
			return TesOutcome{Currency: c, Direction: TesExpanded, Amount: expandBy, Err: err}
		}
		return TesOutcome{Currency: c, Direction: TesExpanded, Amount: expandBy}
	case -1:
		contractBy := serpmath.SupplyChange(peg, market, supply)
		if serpmath.IsZero(contractBy) {
			return TesOutcome{Currency: c, Direction: TesNone, Amount: serpmath.Zero()}
		}
		if err := e.SerpDown(contractBy, c); err != nil {
			return TesOutcome{Currency: c, Direction: TesContracted, Amount: contractBy, Err: err}
		}
		return TesOutcome{Currency: c, Direction: TesContracted, Amount: contractBy}
	default:
		return TesOutcome{Currency: c, Direction: TesNone, Amount: serpmath.Zero()}
	}
}

// SerpUp expands supply by apportioning amount across three destinations
// by fixed tenths, each leg computed independently from the same base
// amount: 3/10 buy back and burn the native token, 6/10 mint to the
// reward pool, 1/10 mint to charity. Each leg's mint-and-route is
// self-contained; a failing leg unwinds its own mint and aborts the legs
// after it, leaving completed legs applied.
func (e *Engine) SerpUp(amount *big.Int, c currency.ID) error {
	if !c.IsStable() {
		return fmt.Errorf("%w: %s", ErrInvalidCurrencyType, c)
	}
	if serpmath.IsZero(amount) {
		return fmt.Errorf("%w: serp up", ErrInvalidAmount)
	}

	return e.currencies.Tagged(ledger.JournalTypeSerpExpansion, func() error {
		if err := e.buyBackAndBurn(serpmath.TenthsShare(amount, 3), c); err != nil {
			return fmt.Errorf("buy-back leg: %w", err)
		}
		if err := e.currencies.Deposit(c, e.rewardPool, serpmath.TenthsShare(amount, 6)); err != nil {
			return fmt.Errorf("reward leg: %w", err)
		}
		if err := e.currencies.Deposit(c, e.charityPool, serpmath.TenthsShare(amount, 1)); err != nil {
			return fmt.Errorf("charity leg: %w", err)
		}
		return nil
	})
}

// buyBackAndBurn mints freshly expanded currency to the treasury, swaps
// it for the native token, and burns the proceeds. The mint is unwound
// if the swap cannot complete.
func (e *Engine) buyBackAndBurn(amount *big.Int, c currency.ID) error {
	if serpmath.IsZero(amount) {
		return nil
	}
	account := e.treasury.Account()
	if err := e.currencies.Deposit(c, account, amount); err != nil {
		return err
	}
	path := []currency.ID{c, e.native}
	proceeds, err := e.swaps.SwapWithExactSupply(account, path, amount, nil, e.maxSlippageBps)
	if err != nil {
		if unwindErr := e.currencies.Withdraw(c, account, amount); unwindErr != nil {
			return fmt.Errorf("unwind mint after %v: %w", err, unwindErr)
		}
		return err
	}
	return e.currencies.Withdraw(e.native, account, proceeds)
}

// SerpDown contracts supply by acquiring exactly amount of the currency
// on the DEX and burning it. The primary reserve-peg currency is bought
// with freshly minted native token; every other stable currency is
// bought with freshly minted reserve-peg currency. The supply bound
// comes from a quote taken immediately before executing, so quote and
// execute form one logical step with no engine-side mutation of the
// path's reserves in between.
func (e *Engine) SerpDown(amount *big.Int, c currency.ID) error {
	if !c.IsStable() {
		return fmt.Errorf("%w: %s", ErrInvalidCurrencyType, c)
	}
	if serpmath.IsZero(amount) {
		return fmt.Errorf("%w: serp down", ErrInvalidAmount)
	}

	supply := e.currencies.TotalIssuance(c)
	remaining, err := serpmath.CheckedSub(supply, amount)
	if err != nil || remaining.Cmp(e.minimumSupply(c)) < 0 {
		return fmt.Errorf("%w: supply %v, contract %v, floor %v", ErrMinSupplyReached, supply, amount, e.minimumSupply(c))
	}

	var path []currency.ID
	if c == e.reservePeg {
		path = []currency.ID{e.native, c}
	} else {
		path = []currency.ID{e.reservePeg, c}
	}

	account := e.treasury.Account()
	maxSupply, ok := e.swaps.GetSwapSupplyAmount(path, amount, e.maxSlippageBps)
	if !ok {
		return fmt.Errorf("%w: no quote for path %v", dex.ErrInsufficientLiquidity, path)
	}

	// The swap is funded by minting the quoted supply bound to the
	// treasury, so contraction never depends on a pre-funded balance.
	// The unspent remainder and the acquired target are both burned;
	// the net issuance effect is the contraction plus whatever supply
	// the swap actually consumed.
	return e.currencies.Tagged(ledger.JournalTypeSerpContraction, func() error {
		if err := e.currencies.Deposit(path[0], account, maxSupply); err != nil {
			return fmt.Errorf("mint swap supply: %w", err)
		}
		spent, err := e.swaps.SwapWithExactTarget(account, path, amount, maxSupply, e.maxSlippageBps)
		if err != nil {
			if unwindErr := e.currencies.Withdraw(path[0], account, maxSupply); unwindErr != nil {
				return fmt.Errorf("unwind mint after %v: %w", err, unwindErr)
			}
			return fmt.Errorf("contraction swap: %w", err)
		}
		if leftover := new(big.Int).Sub(maxSupply, spent); leftover.Sign() > 0 {
			if err := e.currencies.Withdraw(path[0], account, leftover); err != nil {
				return fmt.Errorf("burn unspent supply: %w", err)
			}
		}
		return e.currencies.Withdraw(c, account, amount)
	})
}
