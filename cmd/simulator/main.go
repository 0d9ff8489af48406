// Command simulator boots one run of the perpetual-futures trading
// simulator: it loads a scenario, wires the kernel and every configured
// agent around a shared mailbox/event bus, starts the HTTP/WebSocket
// gateway, and runs until the scenario's duration elapses (fast mode) or it
// is interrupted (realtime mode). Grounded on cmd/server/main.go's
// signal.Notify/context.WithTimeout shutdown sequence, generalized from one
// HTTP server to the HTTP server plus the kernel's own run loop.
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"permsim/internal/addressbook"
	"permsim/internal/api"
	"permsim/internal/chain"
	"permsim/internal/chain/embedded"
	"permsim/internal/clock"
	"permsim/internal/config"
	"permsim/internal/csvlog"
	"permsim/internal/domain"
	"permsim/internal/eventbus"
	"permsim/internal/exchangeagent"
	"permsim/internal/kernel"
	"permsim/internal/mailbox"
	"permsim/internal/metrics"
	"permsim/internal/notification"
	"permsim/internal/oracle"
	"permsim/internal/oracle/syntheticfeed"
	"permsim/internal/pendingbook"
	"permsim/internal/pricecache"
	"permsim/internal/registry"
	"permsim/internal/simerr"
	"permsim/internal/strategy"
	"permsim/internal/trigger"
	"permsim/internal/websocket"
	"permsim/pkg/utils"
)

// Exit codes, per §6.1: 0 clean shutdown, 1 configuration error, 2
// unrecoverable chain error during bootstrap, 130 interrupted.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitChainBootstrap = 2
	exitInterrupted    = 130
)

// reserved AgentIds the gateway and infrastructure agents use, kept clear of
// the scenario's own agent_id range (scenarios are expected to start theirs
// at 1).
const (
	gatewayAgentID  domain.AgentId = 1_000_000
	oracleAgentID   domain.AgentId = 1_000_001
	exchangeAgentID domain.AgentId = 1_000_002
	keeperAgentID   domain.AgentId = 1_000_003
	liquidatorID    domain.AgentId = 1_000_004
)

// syntheticStartMicroUSD, syntheticVolBps and syntheticSpreadBps parameterize
// the embedded price feed; the scenario schema has no fields for them, so
// every run uses these fixed defaults.
const (
	syntheticStartMicroUSD = 1_000 * 1_000_000
	syntheticVolBps        = 25.0
	syntheticSpreadBps     = 10.0
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	log := utils.InitLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Logging.Development,
	}).Logger
	defer log.Sync()

	scenario, err := config.LoadScenario(cfg.ScenariosDir, cfg.Scenario)
	if err != nil {
		log.Error("failed to load scenario", zap.Error(err))
		return exitConfigError
	}

	symbols := make([]domain.Symbol, 0, len(scenario.Symbols))
	for _, s := range scenario.Symbols {
		symbols = append(symbols, domain.Symbol(s.Symbol))
	}

	mode := clock.Fast
	if cfg.Realtime {
		mode = clock.Realtime
	}
	clk := clock.New(mode)

	bus := mailbox.New(0)
	events := eventbus.New(eventbus.DefaultBackpressureTimeout, log, metrics.EventsDropped)
	cache := pricecache.New(0)
	book := pendingbook.New()

	if err := loadAddressBook(scenario, log); err != nil {
		log.Error("address book unavailable", zap.Error(err))
		return exitChainBootstrap
	}

	backend := embedded.New(cache, clk, embedded.DefaultFeeBps).WithPriceImpact(
		priceImpactMode(scenario.PriceImpactMode),
		scenario.MaxPriceImpactBps,
		int64(scenario.LiquidityUSD*1_000_000),
	)
	chainClient := chain.New(backend, mode, 21_000, len(scenario.Identities), events, log)

	k := kernel.New(clk, bus, events, log, cfg.TickMs)

	feed := syntheticfeed.New(scenario.Seed, symbols, syntheticStartMicroUSD, syntheticVolBps, syntheticSpreadBps)
	oracleAgent := oracle.New(oracleAgentID, feed, cache, events, symbols, uint64(cfg.TickMs)*1_000_000, log)
	k.Register(oracleAgent, 0)

	exAgent := exchangeagent.New(exchangeAgentID, chainClient, events, symbols, 1, 0, log)
	k.Register(exAgent, 0)

	if !cfg.SkipDeposits {
		depositInitialCollateral(scenario, chainClient, log)
	}

	var scanTargets []strategy.ScanTarget
	for _, spec := range scenario.Agents {
		agent, err := buildStrategyAgent(spec, scenario.Seed, exAgent, cache, book, log)
		if err != nil {
			log.Error("failed to build agent", zap.Uint32("agent_id", spec.AgentID), zap.Error(err))
			return exitConfigError
		}
		k.Register(agent, spec.WakeDeltaNs)

		account := domain.AgentId(spec.AgentID)
		symbol := domain.Symbol(spec.Symbol)
		scanTargets = append(scanTargets,
			strategy.ScanTarget{Account: account, Symbol: symbol, Side: domain.Long},
			strategy.ScanTarget{Account: account, Symbol: symbol, Side: domain.Short},
		)
	}

	keeper := trigger.New(keeperAgentID, book, cache, exchangeAgentID, symbols, 1, log)
	k.Register(keeper, 0)

	liquidator := strategy.NewLiquidationAgent(liquidatorID, exchangeAgentID, exAgent, events, scanTargets, scenario.RiskMaintenanceMF, 1, log)
	k.Register(liquidator, 0)

	csvLogger, err := csvlog.New("logs", events, log)
	if err != nil {
		log.Error("failed to open csv logs", zap.Error(err))
		return exitConfigError
	}
	defer csvLogger.Close()

	reg := registry.New()
	notifs := notification.New(notification.DefaultCapacity)
	hub := websocket.NewHub()
	go hub.Run()
	bridge := websocket.NewBridge(events, hub, reg, notifs, log)
	defer bridge.Close()

	deps := &api.Dependencies{
		Bus:           bus,
		Clock:         clk,
		Registry:      reg,
		Notifications: notifs,
		Hub:           hub,
		GatewayID:     gatewayAgentID,
		ExchangeID:    exchangeAgentID,
	}
	router := api.SetupRoutes(deps)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting gateway", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	kernelDone := make(chan struct{})
	go func() {
		defer close(kernelDone)
		k.Run(ctx, scenario.DurationSec*1_000_000_000)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := exitOK
	select {
	case <-kernelDone:
		log.Info("scenario finished")
	case sig := <-quit:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		exitCode = exitInterrupted
		cancel()
		<-kernelDone
	case err := <-serverErr:
		log.Error("gateway failed", zap.Error(err))
		exitCode = exitChainBootstrap
		cancel()
		<-kernelDone
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("gateway forced to shutdown", zap.Error(err))
	}

	log.Info("simulator exited", zap.Int("exit_code", exitCode))
	return exitCode
}

// loadAddressBook opens the optional on-disk keystore referenced by
// PERMSIM_KEYSTORE_PATH/PASSPHRASE/MASTER_KEY and checks that every scenario
// identity resolves. The embedded chain.Backend never authenticates a
// signature, so this step does nothing with the resolved keys beyond
// validating the keystore is consistent with the scenario; a misconfigured
// keystore is still surfaced at boot rather than silently ignored.
func loadAddressBook(scenario *config.ScenarioConfig, log *zap.Logger) error {
	path := os.Getenv("PERMSIM_KEYSTORE_PATH")
	if path == "" {
		log.Debug("no keystore configured, skipping address book resolution")
		return nil
	}
	masterKey := []byte(os.Getenv("PERMSIM_KEYSTORE_MASTER_KEY"))
	passphrase := os.Getenv("PERMSIM_KEYSTORE_PASSPHRASE")

	book, err := addressbook.Open(path, passphrase, masterKey)
	if err != nil {
		return err
	}
	for _, identity := range scenario.Identities {
		if _, err := book.Resolve(domain.AgentId(identity.AccountID)); err != nil {
			return err
		}
	}
	log.Info("address book loaded", zap.Int("identities", book.Len()))
	return nil
}

func depositInitialCollateral(scenario *config.ScenarioConfig, client *chain.Client, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), chain.DefaultChainTimeout)
	defer cancel()
	for _, identity := range scenario.Identities {
		amount := usdToMicro(identity.InitialCollateral)
		if err := client.Deposit(ctx, domain.AgentId(identity.AccountID), amount); err != nil {
			log.Warn("initial deposit failed", zap.Uint32("account", identity.AccountID), zap.Error(err))
		}
	}
}

func usdToMicro(usd float64) *big.Int {
	return big.NewInt(int64(usd * 1_000_000))
}

// priceImpactMode resolves the scenario's price_impact_mode string (already
// validated by config.LoadScenario) to the chain.PriceImpactMode gate the
// embedded backend enforces.
func priceImpactMode(s string) chain.PriceImpactMode {
	if s == "forced_close" {
		return chain.PriceImpactForcedClose
	}
	return chain.PriceImpactCap
}

func parseStrategySide(s string) (domain.Side, error) {
	switch s {
	case "long":
		return domain.Long, nil
	case "short":
		return domain.Short, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// buildStrategyAgent decodes spec's params against its Strategy
// discriminator and constructs the matching kernel.Agent, per §4.6's nine
// variants. Only breakout/grid/mean_reversion/smart ever rest orders in
// book; every other variant gets the shared book anyway since Base.arm is
// simply never called for them.
func buildStrategyAgent(spec config.AgentSpec, scenarioSeed uint64, mirror *exchangeagent.Agent, cache *pricecache.Cache, book *pendingbook.Book, log *zap.Logger) (kernel.Agent, error) {
	params, err := spec.DecodeParams()
	if err != nil {
		return nil, err
	}

	id := domain.AgentId(spec.AgentID)
	symbol := domain.Symbol(spec.Symbol)
	base := strategy.NewBase(id, exchangeAgentID, cache, book, scenarioSeed, symbol, spec.WakeDeltaNs, log)

	switch p := params.(type) {
	case *config.MarketMakerParams:
		return strategy.NewMarketMaker(base, mirror, p.OrderSizeTokens, p.Leverage, p.ImbalanceThreshold), nil
	case *config.ArbitrageurParams:
		return strategy.NewArbitrageur(base, mirror, p.EntrySpreadPct, p.ExitSpreadPct, p.SizeTokens), nil
	case *config.FundingHarvesterParams:
		return strategy.NewFundingHarvester(base, mirror, p.SizeTokens, p.EnterRatePerHour, p.ExitRatePerHour, p.MaxHoldNs), nil
	case *config.HodlerParams:
		side := domain.Long
		if p.Side != "" {
			var err error
			side, err = parseStrategySide(p.Side)
			if err != nil {
				return nil, simerr.NewConfigError(fmt.Sprintf("agent %d: %s", spec.AgentID, err))
			}
		}
		return strategy.NewHodlerWithParams(base, side, p.Leverage, p.SizeTokens, p.TakeProfitPct, p.StopLossPct, p.StartDelayNs, p.HoldDurationNs), nil
	case *config.InstitutionalParams:
		side := domain.Long
		if p.Side != "" {
			var err error
			side, err = parseStrategySide(p.Side)
			if err != nil {
				return nil, simerr.NewConfigError(fmt.Sprintf("agent %d: %s", spec.AgentID, err))
			}
		}
		if p.Leverage > strategy.MaxInstitutionalLeverage {
			return nil, simerr.NewConfigError(fmt.Sprintf("agent %d: institutional leverage %d exceeds the %dx ceiling", spec.AgentID, p.Leverage, strategy.MaxInstitutionalLeverage))
		}
		return strategy.NewInstitutional(base, side, p.Leverage, p.SizeTokens, p.TakeProfitPct, p.StopLossPct, p.StartDelayNs, p.HoldDurationNs), nil
	case *config.MeanReversionParams:
		return strategy.NewMeanReversion(base, p.WindowSize, p.DeviationPct, p.OffsetBps, p.SizeTokens), nil
	case *config.BreakoutParams:
		return strategy.NewBreakout(base, p.WindowSize, p.BreakoutPct, p.SizeTokens), nil
	case *config.GridParams:
		return strategy.NewGrid(base, p.Levels, p.StepPct, p.SizeTokens), nil
	case *config.SmartParams:
		return strategy.NewSmart(base, p.Period, p.RiskUSD), nil
	default:
		return nil, simerr.NewConfigError(fmt.Sprintf("agent %d: unhandled strategy %q", spec.AgentID, spec.Strategy))
	}
}
