package serpmath

import (
	"errors"
	"math/big"
)

// Balance arithmetic bounded to the 128-bit unsigned range. Ledger balances
// are unbounded big integers in memory, but every mutation must stay inside
// [0, 2^128-1] so that overflow and underflow surface as errors instead of
// silently wrapping.

var (
	ErrUnderflow = errors.New("balance underflow")
	ErrOverflow  = errors.New("balance overflow")
)

var (
	zero = big.NewInt(0)

	// maxBalance = 2^128 - 1
	maxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// MaxBalance returns the inclusive upper bound of the balance range.
func MaxBalance() *big.Int {
	return new(big.Int).Set(maxBalance)
}

// Zero returns a fresh zero balance.
func Zero() *big.Int {
	return new(big.Int)
}

// Clone copies a balance. nil is treated as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// InRange reports whether v lies in [0, 2^128-1].
func InRange(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(maxBalance) <= 0
}

// CheckedAdd returns a+b or ErrOverflow if the sum leaves the balance range.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.Cmp(maxBalance) > 0 {
		return nil, ErrOverflow
	}
	if sum.Sign() < 0 {
		return nil, ErrUnderflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrUnderflow if the result would be negative.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() < 0 {
		return nil, ErrUnderflow
	}
	return diff, nil
}

// CheckedAddSigned applies a signed delta to a non-negative value, failing
// with ErrUnderflow below zero and ErrOverflow above the balance ceiling.
func CheckedAddSigned(value, delta *big.Int) (*big.Int, error) {
	next := new(big.Int).Add(value, delta)
	if next.Sign() < 0 {
		return nil, ErrUnderflow
	}
	if next.Cmp(maxBalance) > 0 {
		return nil, ErrOverflow
	}
	return next, nil
}

// SaturatingSub returns max(a-b, 0).
func SaturatingSub(a, b *big.Int) *big.Int {
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() < 0 {
		return new(big.Int)
	}
	return diff
}

// SaturatingMul returns a*b clamped to the balance ceiling.
func SaturatingMul(a, b *big.Int) *big.Int {
	prod := new(big.Int).Mul(a, b)
	if prod.Cmp(maxBalance) > 0 {
		return new(big.Int).Set(maxBalance)
	}
	return prod
}

// Min returns the smaller of a and b as a fresh value.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
