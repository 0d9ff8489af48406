package strategy

import "permsim/internal/domain"

// MaxInstitutionalLeverage is the §4.6 leverage ceiling for Institutional
// agents: "moderate leverage (≤ 5x)".
const MaxInstitutionalLeverage = 5

// Institutional is a Hodler with larger size, a longer hold, and leverage
// capped at MaxInstitutionalLeverage — §4.6: "Same as Hodler but with larger
// size, longer hold, moderate leverage (≤ 5x)." It reuses hodlerPhase and
// Hodler.Step verbatim rather than duplicating the Waiting/Holding/Closed
// machine.
type Institutional struct {
	*Hodler
}

// NewInstitutional builds an Institutional entering side at leverage (capped
// at MaxInstitutionalLeverage) after startDelayNs, closing on
// takeProfitPct/stopLossPct or after holdDurationNs.
func NewInstitutional(base Base, side domain.Side, leverage uint32, sizeTokens, takeProfitPct, stopLossPct float64, startDelayNs, holdDurationNs uint64) *Institutional {
	if leverage == 0 {
		leverage = 1
	}
	if leverage > MaxInstitutionalLeverage {
		leverage = MaxInstitutionalLeverage
	}
	return &Institutional{Hodler: NewHodlerWithParams(base, side, leverage, sizeTokens, takeProfitPct, stopLossPct, startDelayNs, holdDurationNs)}
}
