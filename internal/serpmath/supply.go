package serpmath

import "math/big"

// SupplyChange computes the elasticity magnitude from a price fraction:
// (greater/lesser - 1) * supply, with truncating integer division and a
// saturating multiply. The truncation before subtracting one is deliberate
// and load-bearing: any ratio below 2x yields zero change, and downstream
// consumers depend on that exact rounding.
func SupplyChange(greater, lesser, supply *big.Int) *big.Int {
	if lesser.Sign() == 0 {
		return new(big.Int)
	}
	fraction := new(big.Int).Quo(greater, lesser)
	fraction.Sub(fraction, big.NewInt(1))
	if fraction.Sign() <= 0 {
		return new(big.Int)
	}
	return SaturatingMul(fraction, supply)
}

// TenthsShare returns n * floor(amount/10), the fixed apportioning rule for
// expansion legs. The floor happens before the multiply, so the three legs
// of a SerpUp (3, 6, 1 tenths) partition floor-exact multiples of ten and
// drop the sub-ten remainder, matching the source arithmetic.
func TenthsShare(amount *big.Int, n int64) *big.Int {
	tenth := new(big.Int).Quo(amount, big.NewInt(10))
	return SaturatingMul(tenth, big.NewInt(n))
}

// SplitLots partitions amount into lots of lotSize each, with the final
// lot absorbing the remainder so the lots sum exactly to amount. The lot
// count is capped at maxLots; anything the cap cuts off is folded into
// the final lot rather than spawning more lots. lotSize must be > 0. A
// maxLots of zero means no splitting and yields a single lot.
func SplitLots(amount, lotSize *big.Int, maxLots uint64) []*big.Int {
	if maxLots == 0 {
		return []*big.Int{Clone(amount)}
	}
	lots := make([]*big.Int, 0, maxLots)
	remaining := Clone(amount)
	for uint64(len(lots)) < maxLots-1 && remaining.Cmp(lotSize) > 0 {
		lots = append(lots, Clone(lotSize))
		remaining.Sub(remaining, lotSize)
	}
	lots = append(lots, remaining)
	return lots
}

// SplitProportional partitions total into len(weights) parts, each
// floor(total * weight_i / weightSum) except the last, which absorbs the
// remainder. Used to pair auction targets with lot amounts so both
// partitions line up exactly.
func SplitProportional(total *big.Int, weights []*big.Int, weightSum *big.Int) []*big.Int {
	parts := make([]*big.Int, 0, len(weights))
	remaining := Clone(total)
	for i := 0; i < len(weights)-1; i++ {
		part := new(big.Int).Mul(total, weights[i])
		part.Quo(part, weightSum)
		parts = append(parts, part)
		remaining.Sub(remaining, part)
	}
	parts = append(parts, remaining)
	return parts
}
