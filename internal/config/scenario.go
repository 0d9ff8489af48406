package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"permsim/internal/simerr"
)

// ScenarioConfig is the top-level scenario file: global run parameters plus
// the population of agents to seed. The `strategy` field on each AgentSpec
// selects the concrete per-strategy config, per §9's discriminated-union
// design note.
type ScenarioConfig struct {
	DurationSec      uint64       `json:"duration_sec"`
	BlockTimeMs      uint64       `json:"block_time_ms"`
	Seed             uint64       `json:"seed"`
	Symbols          []SymbolSpec `json:"symbols"`
	Identities       []Identity   `json:"identities"`
	Agents           []AgentSpec  `json:"agents"`
	RiskMaintenanceMF float64     `json:"risk_maintenance_margin_fraction"`

	// PriceImpactMode selects the close-side price-impact gate (§9): "cap"
	// (default, zero value) or "forced_close". Unknown values are a
	// ConfigError at load time.
	PriceImpactMode    string  `json:"price_impact_mode"`
	MaxPriceImpactBps  float64 `json:"max_price_impact_bps"`
	LiquidityUSD       float64 `json:"liquidity_usd"`
}

// SymbolSpec declares one tradeable symbol and its chain token decimals.
type SymbolSpec struct {
	Symbol        string `json:"symbol"`
	TokenDecimals int    `json:"token_decimals"`
}

// Identity is one signing identity available to agents, resolved to a
// keypair by an external address book keyed by AccountID (§9).
type Identity struct {
	AccountID        uint32  `json:"account_id"`
	InitialCollateral float64 `json:"initial_collateral"`
}

// AgentSpec is the envelope every scenario agent entry decodes through: the
// fields common to every strategy, plus a raw Params block decoded against
// the concrete type once Strategy is known.
type AgentSpec struct {
	AgentID    uint32          `json:"agent_id"`
	AccountID  uint32          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Strategy   string          `json:"strategy"`
	WakeDeltaNs uint64         `json:"wake_delta_ns"`
	Params     json.RawMessage `json:"params"`
}

// Strategy discriminator values, one per §4.6 variant; the keeper and the
// liquidator have no discriminator of their own.
const (
	StrategyMarketMaker     = "market_maker"
	StrategyArbitrageur     = "arbitrageur"
	StrategyFundingHarvester = "funding_harvester"
	StrategyHodler          = "hodler"
	StrategyInstitutional   = "institutional"
	StrategyMeanReversion   = "mean_reversion"
	StrategyBreakout        = "breakout"
	StrategyGrid            = "grid"
	StrategySmart           = "smart"
)

// MarketMakerParams decodes a market_maker agent's params.
type MarketMakerParams struct {
	OrderSizeTokens    float64 `json:"order_size_tokens"`
	Leverage           uint32  `json:"leverage"`
	ImbalanceThreshold float64 `json:"imbalance_threshold"`
}

// ArbitrageurParams decodes an arbitrageur agent's params.
type ArbitrageurParams struct {
	EntrySpreadPct float64 `json:"entry_spread_pct"`
	ExitSpreadPct  float64 `json:"exit_spread_pct"`
	SizeTokens     float64 `json:"size_tokens"`
}

// FundingHarvesterParams decodes a funding_harvester agent's params.
// MaxHoldNs, if non-zero, closes the position after that many nanoseconds
// even if the funding rate never decays past ExitRatePerHour.
type FundingHarvesterParams struct {
	SizeTokens       float64 `json:"size_tokens"`
	EnterRatePerHour float64 `json:"enter_rate_per_hour"`
	ExitRatePerHour  float64 `json:"exit_rate_per_hour"`
	MaxHoldNs        uint64  `json:"max_hold_ns"`
}

// HodlerParams decodes a hodler agent's params. StartDelayNs delays the
// single entry; HoldDurationNs, if non-zero, closes the position that many
// nanoseconds after it opened even if TP/SL never triggers.
type HodlerParams struct {
	Side           string  `json:"side"`
	Leverage       uint32  `json:"leverage"`
	SizeTokens     float64 `json:"size_tokens"`
	TakeProfitPct  float64 `json:"take_profit_pct"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	StartDelayNs   uint64  `json:"start_delay_ns"`
	HoldDurationNs uint64  `json:"hold_duration_ns"`
}

// InstitutionalParams decodes an institutional agent's params: the same
// shape as HodlerParams (§4.6 — "same as Hodler but larger size, longer
// hold, moderate leverage") with leverage capped at 5x.
type InstitutionalParams struct {
	Side           string  `json:"side"`
	Leverage       uint32  `json:"leverage"`
	SizeTokens     float64 `json:"size_tokens"`
	TakeProfitPct  float64 `json:"take_profit_pct"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	StartDelayNs   uint64  `json:"start_delay_ns"`
	HoldDurationNs uint64  `json:"hold_duration_ns"`
}

// MeanReversionParams decodes a mean_reversion agent's params.
type MeanReversionParams struct {
	WindowSize   int     `json:"window_size"`
	DeviationPct float64 `json:"deviation_pct"`
	OffsetBps    float64 `json:"offset_bps"`
	SizeTokens   float64 `json:"size_tokens"`
}

// BreakoutParams decodes a breakout agent's params.
type BreakoutParams struct {
	WindowSize  int     `json:"window_size"`
	BreakoutPct float64 `json:"breakout_pct"`
	SizeTokens  float64 `json:"size_tokens"`
}

// GridParams decodes a grid agent's params.
type GridParams struct {
	Levels     int     `json:"levels"`
	StepPct    float64 `json:"step_pct"`
	SizeTokens float64 `json:"size_tokens"`
}

// SmartParams decodes a smart agent's params.
type SmartParams struct {
	Period  int     `json:"period"`
	RiskUSD float64 `json:"risk_usd"`
}

// strategyParamFactory maps a strategy discriminator to a zero value of its
// params type, used only to pick the right target for strict decoding.
var strategyParamFactory = map[string]func() interface{}{
	StrategyMarketMaker:      func() interface{} { return &MarketMakerParams{} },
	StrategyArbitrageur:      func() interface{} { return &ArbitrageurParams{} },
	StrategyFundingHarvester: func() interface{} { return &FundingHarvesterParams{} },
	StrategyHodler:           func() interface{} { return &HodlerParams{} },
	StrategyInstitutional:    func() interface{} { return &InstitutionalParams{} },
	StrategyMeanReversion:    func() interface{} { return &MeanReversionParams{} },
	StrategyBreakout:         func() interface{} { return &BreakoutParams{} },
	StrategyGrid:             func() interface{} { return &GridParams{} },
	StrategySmart:            func() interface{} { return &SmartParams{} },
}

// DecodeParams strictly decodes spec's Params block into the concrete type
// its Strategy discriminator selects, rejecting unknown fields. It returns
// a ConfigError for both an unrecognized strategy and a decode failure.
func (spec AgentSpec) DecodeParams() (interface{}, error) {
	factory, ok := strategyParamFactory[spec.Strategy]
	if !ok {
		return nil, simerr.NewConfigError(fmt.Sprintf("agent %d: unrecognized strategy %q", spec.AgentID, spec.Strategy))
	}
	target := factory()
	dec := json.NewDecoder(bytes.NewReader(spec.Params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, &simerr.ConfigError{Reason: fmt.Sprintf("agent %d: invalid %s params", spec.AgentID, spec.Strategy), Cause: err}
	}
	return target, nil
}

// LoadScenario reads scenariosDir/name.json into a ScenarioConfig, rejecting
// unknown top-level and agent-envelope fields at decode time (§10.2).
func LoadScenario(scenariosDir, name string) (*ScenarioConfig, error) {
	path := filepath.Join(scenariosDir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &simerr.ConfigError{Reason: fmt.Sprintf("reading scenario %s", path), Cause: err}
	}

	var cfg ScenarioConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, &simerr.ConfigError{Reason: fmt.Sprintf("parsing scenario %s", path), Cause: err}
	}

	if len(cfg.Symbols) == 0 {
		return nil, simerr.NewConfigError("scenario declares no symbols")
	}
	if cfg.RiskMaintenanceMF <= 0 {
		return nil, simerr.NewConfigError("risk_maintenance_margin_fraction must be > 0")
	}
	switch cfg.PriceImpactMode {
	case "", "cap", "forced_close":
	default:
		return nil, simerr.NewConfigError(fmt.Sprintf("price_impact_mode %q must be \"cap\" or \"forced_close\"", cfg.PriceImpactMode))
	}
	for _, spec := range cfg.Agents {
		if _, err := spec.DecodeParams(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}
