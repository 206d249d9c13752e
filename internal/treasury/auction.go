package treasury

import (
	"fmt"
	"math/big"

	"SerpLedger/internal/currency"
	"SerpLedger/internal/ledger"
	"SerpLedger/internal/serpmath"
)

// CreateAuctionLots hands reserve to the auction subsystem, split into
// bounded lots. Lot amounts are expected-lot-size slices with the final
// lot absorbing the remainder (and anything the max-lot cap cuts off);
// targets are split proportionally to the lot amounts so both partitions
// are exact. Lot creation is fail-fast: an error from the auction
// subsystem aborts the operation before any further lot is created.
func (t *Treasury) CreateAuctionLots(c currency.ID, amount, target *big.Int, refundReceiver ledger.AccountID, allowSplit bool) error {
	if serpmath.IsZero(amount) {
		return fmt.Errorf("%w: amount", ErrInvalidAmount)
	}
	if t.TotalReservesNotInAuction(c).Cmp(amount) < 0 {
		return fmt.Errorf("%w: want %v of %s, free %v", ErrReserveNotEnough, amount, c, t.TotalReservesNotInAuction(c))
	}

	lotSize := t.ExpectedAuctionLotSize(c)
	if !allowSplit || serpmath.IsZero(lotSize) || amount.Cmp(lotSize) <= 0 {
		return t.auction.NewReserveLot(refundReceiver, c, serpmath.Clone(amount), serpmath.Clone(target))
	}

	amounts := serpmath.SplitLots(amount, lotSize, t.maxAuctionLots)
	targets := serpmath.SplitProportional(target, amounts, amount)
	for i := range amounts {
		if err := t.auction.NewReserveLot(refundReceiver, c, amounts[i], targets[i]); err != nil {
			return fmt.Errorf("lot %d/%d: %w", i+1, len(amounts), err)
		}
	}
	return nil
}
