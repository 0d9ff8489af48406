package utils

import "math"

// lotEpsilon nudges lot-size division away from float64 representation
// error before flooring/ceiling (0.1234/0.001 can land at 123.3999999...).
const lotEpsilon = 1e-9

// RoundToLotSize rounds value down to the nearest multiple of lotSize. A
// non-positive lotSize is treated as "no rounding" and value passes through
// unchanged.
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize+lotEpsilon) * lotSize
}

// RoundToLotSizeUp rounds value up to the nearest multiple of lotSize.
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize-lotEpsilon) * lotSize
}

// RoundToLotSizeNearest rounds value to the nearest multiple of lotSize,
// ties rounding away from zero.
func RoundToLotSizeNearest(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Round(value/lotSize) * lotSize
}

// CalculateSpread returns the percentage spread of priceHigh over priceLow.
// A non-positive priceLow makes the spread undefined and returns 0.
func CalculateSpread(priceHigh, priceLow float64) float64 {
	if priceLow <= 0 {
		return 0
	}
	return (priceHigh - priceLow) / priceLow * 100
}

// CalculateSpreadFromPrices is CalculateSpread without a presumed high/low
// ordering: it spreads the larger of the two prices over the smaller.
func CalculateSpreadFromPrices(priceA, priceB float64) float64 {
	high, low := priceA, priceB
	if low > high {
		high, low = low, high
	}
	return CalculateSpread(high, low)
}

// CalculateNetSpread subtracts round-trip trading fees (charged on both legs,
// both directions) from a gross percentage spread. Fees are fractions
// (0.0004 == 0.04%), not percentages.
func CalculateNetSpread(spreadPct, feeA, feeB float64) float64 {
	return spreadPct - 2*(feeA+feeB)*100
}

// CalculateNetSpreadDirect combines CalculateSpread and CalculateNetSpread
// for callers holding raw prices rather than a precomputed spread.
func CalculateNetSpreadDirect(priceHigh, priceLow, feeA, feeB float64) float64 {
	return CalculateNetSpread(CalculateSpread(priceHigh, priceLow), feeA, feeB)
}

// CalculateWeightedAverage computes a volume-weighted average price.
// Mismatched lengths, empty input, or a non-positive total weight all
// return 0. Entries with a negative weight are excluded entirely.
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}
	var sum, totalWeight float64
	for i, w := range weights {
		if w < 0 {
			continue
		}
		sum += values[i] * w
		totalWeight += w
	}
	if totalWeight <= 0 {
		return 0
	}
	return sum / totalWeight
}

// OrderBookLevel is one price/volume rung of a simulated order book.
type OrderBookLevel struct {
	Price  float64
	Volume float64
}

// walkBook consumes levels in the order given until targetVolume is filled
// or the book is exhausted, returning the volume-weighted fill price, the
// volume actually filled, and the slippage off the book's best price.
func walkBook(levels []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	if len(levels) == 0 || targetVolume <= 0 {
		return 0, 0, 0
	}
	best := levels[0].Price
	var notional, remaining float64
	remaining = targetVolume

	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := lvl.Volume
		if take > remaining {
			take = remaining
		}
		notional += lvl.Price * take
		filled += take
		remaining -= take
	}
	if filled == 0 {
		return 0, 0, 0
	}
	avgPrice = notional / filled
	if best > 0 {
		slippagePct = (avgPrice - best) / best * 100
	}
	return avgPrice, filled, slippagePct
}

// SimulateMarketBuy walks ascending ask levels and reports the volume-weighted
// fill price, the filled volume (capped by available liquidity) and the
// slippage over the book's best ask.
func SimulateMarketBuy(asks []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	return walkBook(asks, targetVolume)
}

// SimulateMarketSell walks descending bid levels and reports the
// volume-weighted fill price, filled volume, and slippage under the book's
// best bid (negative slippage, since a sell fills below the top of book).
func SimulateMarketSell(bids []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	return walkBook(bids, targetVolume)
}

// CalculatePNL computes unrealized PNL for a single-sided position. An
// unrecognized side returns 0 rather than guessing a direction.
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	switch side {
	case "long":
		return (currentPrice - entryPrice) * quantity
	case "short":
		return (entryPrice - currentPrice) * quantity
	default:
		return 0
	}
}

// CalculateTotalPNL sums the PNL of a long leg and a short leg of the same
// size, as used by cross-venue arbitrage positions.
func CalculateTotalPNL(longEntry, longExit, shortEntry, shortExit, quantity float64) float64 {
	return CalculatePNL("long", longEntry, longExit, quantity) + CalculatePNL("short", shortEntry, shortExit, quantity)
}

// SplitVolume divides totalVolume into nParts equal, lot-rounded chunks.
// Returns nil if nParts or totalVolume is non-positive.
func SplitVolume(totalVolume float64, nParts int, lotSize float64) []float64 {
	if nParts <= 0 || totalVolume <= 0 {
		return nil
	}
	part := RoundToLotSizeNearest(totalVolume/float64(nParts), lotSize)
	parts := make([]float64, nParts)
	for i := range parts {
		parts[i] = part
	}
	return parts
}

// IsSpreadSufficient reports whether spread meets or exceeds threshold.
func IsSpreadSufficient(spread, threshold float64) bool {
	return spread >= threshold
}

// ShouldExit reports whether spread has compressed to or below exitThreshold.
func ShouldExit(spread, exitThreshold float64) bool {
	return spread <= exitThreshold
}

// IsStopLossHit reports whether pnl has fallen to or past -slAmount. A
// non-positive slAmount means the stop loss is disabled.
func IsStopLossHit(pnl, slAmount float64) bool {
	if slAmount <= 0 {
		return false
	}
	return pnl <= -slAmount
}

// Clamp constrains value to [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
