package treasury

import "errors"

var (
	ErrInvalidCurrencyType   = errors.New("currency not in stable set")
	ErrInvalidAmount         = errors.New("amount must be non-zero")
	ErrInvalidFeedPrice      = errors.New("no feed price for currency")
	ErrMinSupplyReached      = errors.New("contraction would breach minimum supply")
	ErrReserveNotEnough      = errors.New("reserve not enough")
	ErrStandardPoolOverflow  = errors.New("standard pool overflow")
	ErrStandardPoolNotEnough = errors.New("standard pool not enough")
	ErrSurplusPoolNotEnough  = errors.New("surplus pool not enough")
)
