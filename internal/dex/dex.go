package dex

import (
	"errors"
	"fmt"
	"math/big"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/ledger"
)

var (
	ErrInvalidSwapPath          = errors.New("invalid swap path")
	ErrInsufficientLiquidity    = errors.New("insufficient pool liquidity")
	ErrInsufficientTargetAmount = errors.New("swap target below minimum")
	ErrExcessiveSupplyAmount    = errors.New("swap supply above maximum")
	ErrExceededPriceImpact      = errors.New("swap exceeds price impact limit")
)

// Manager is the exchange venue contract consumed by the treasury for
// rebalancing swaps. Quotes return false when no pool can serve the path
// within the slippage limit; swaps settle through the currency ledger
// synchronously and either complete with a definite amount or fail.
type Manager interface {
	GetSwapTargetAmount(path []currency.ID, supplyAmount *big.Int, maxSlippageBps uint32) (*big.Int, bool)
	GetSwapSupplyAmount(path []currency.ID, targetAmount *big.Int, maxSlippageBps uint32) (*big.Int, bool)
	SwapWithExactSupply(who ledger.AccountID, path []currency.ID, supplyAmount, minTargetAmount *big.Int, maxSlippageBps uint32) (*big.Int, error)
	SwapWithExactTarget(who ledger.AccountID, path []currency.ID, targetAmount, maxSupplyAmount *big.Int, maxSlippageBps uint32) (*big.Int, error)
}

// ValidatePath checks a swap path starts and ends at the expected
// currencies and has at least two hops' worth of nodes.
func ValidatePath(path []currency.ID, first, last currency.ID) error {
	if len(path) < 2 {
		return fmt.Errorf("%w: need at least 2 currencies, got %d", ErrInvalidSwapPath, len(path))
	}
	if path[0] != first || path[len(path)-1] != last {
		return fmt.Errorf("%w: path %v must run %s -> %s", ErrInvalidSwapPath, path, first, last)
	}
	for _, c := range path {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown currency %v", ErrInvalidSwapPath, c)
		}
	}
	return nil
}
