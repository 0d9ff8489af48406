package domain

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Price is a signed 128-bit quantity denominated in micro-USD (1 USD =
// 10^6). It is backed by math/big so the sign and magnitude survive the
// widening multiply exactly — no float ever touches a value that crosses the
// exchange boundary.
type Price struct {
	microUSD *big.Int
}

// NewPrice wraps a micro-USD integer.
func NewPrice(microUSD int64) *Price {
	return &Price{microUSD: big.NewInt(microUSD)}
}

// NewPriceFromBig wraps a copy of an existing big.Int; the caller keeps
// ownership of its argument.
func NewPriceFromBig(microUSD *big.Int) *Price {
	return &Price{microUSD: new(big.Int).Set(microUSD)}
}

// MicroUSD returns the underlying micro-USD value.
func (p *Price) MicroUSD() *big.Int {
	return new(big.Int).Set(p.microUSD)
}

// Cmp compares two prices the way big.Int.Cmp does.
func (p *Price) Cmp(other *Price) int {
	return p.microUSD.Cmp(other.microUSD)
}

// tenPow returns 10^n as a big.Int, n >= 0.
func tenPow(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// maxTokenDecimals is the widest decimals value for which the round-trip law
// (R1 of §8) is required to hold: price_per_atom must fit the widening
// exponent (24 - token_decimals) >= 0.
const maxTokenDecimals = 24

// PerAtom applies price_per_atom = price_micro_usd * 10^(24 - token_decimals)
// exactly, using integer multiplication only, and returns the unsigned wire
// value ChainClient hands to the matching engine. tokenDecimals must be <=
// maxTokenDecimals; the caller (ExchangeAgent) is expected to have validated
// the symbol's token_decimals at scenario load (a ConfigError otherwise).
func (p *Price) PerAtom(tokenDecimals int) *uint256.Int {
	exp := maxTokenDecimals - tokenDecimals
	scaled := new(big.Int).Mul(p.microUSD, tenPow(exp))
	out, overflow := uint256.FromBig(scaled)
	if overflow {
		// A scenario that produces an out-of-range per-atom price is a
		// configuration bug, not a runtime condition to paper over.
		panic("domain: per-atom price overflowed uint256")
	}
	return out
}

// PriceFromPerAtom reverses PerAtom exactly for tokenDecimals <=
// maxTokenDecimals, satisfying round-trip law R1: micro_usd -> per_atom ->
// micro_usd is identity.
func PriceFromPerAtom(perAtom *uint256.Int, tokenDecimals int) *Price {
	exp := maxTokenDecimals - tokenDecimals
	scaled := perAtom.ToBig()
	microUSD := new(big.Int).Quo(scaled, tenPow(exp))
	return NewPriceFromBig(microUSD)
}

// Mid returns the arithmetic midpoint of min and max, rounding toward zero —
// used when a provider reports only a min/max spread.
func Mid(min, max *Price) *Price {
	sum := new(big.Int).Add(min.microUSD, max.microUSD)
	return NewPriceFromBig(new(big.Int).Quo(sum, big.NewInt(2)))
}

// String renders the price as a decimal USD string for logs.
func (p *Price) String() string {
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(p.microUSD, big.NewInt(1_000_000), frac)
	if frac.Sign() < 0 {
		frac.Neg(frac)
	}
	return whole.String() + "." + padFrac(frac)
}

func padFrac(frac *big.Int) string {
	s := frac.String()
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}
