package state

import (
	"math/big"

	"SerpLedger/internal/serpmath"
)

// Position is a collateralized debt record: Reserve is collateral held by
// the settmint account, Standard is stable-currency debt issued against it.
// Both fields are non-negative; a position with both at zero is deleted.
type Position struct {
	Reserve  *big.Int
	Standard *big.Int
}

func newPosition() *Position {
	return &Position{Reserve: serpmath.Zero(), Standard: serpmath.Zero()}
}

// Clone returns an independent copy.
func (p *Position) Clone() Position {
	if p == nil {
		return Position{Reserve: serpmath.Zero(), Standard: serpmath.Zero()}
	}
	return Position{Reserve: serpmath.Clone(p.Reserve), Standard: serpmath.Clone(p.Standard)}
}

// IsZero reports whether both fields are zero.
func (p *Position) IsZero() bool {
	return p == nil || (serpmath.IsZero(p.Reserve) && serpmath.IsZero(p.Standard))
}

// CanonicalBytes returns a deterministic serialization for state hashing:
// length-prefixed big-endian magnitudes of reserve then standard.
func (p *Position) CanonicalBytes() []byte {
	reserve := p.Reserve.Bytes()
	standard := p.Standard.Bytes()
	buf := make([]byte, 0, 2+len(reserve)+len(standard))
	buf = append(buf, byte(len(reserve)))
	buf = append(buf, reserve...)
	buf = append(buf, byte(len(standard)))
	buf = append(buf, standard...)
	return buf
}
