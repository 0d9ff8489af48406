package csvlog

import (
	"bufio"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"permsim/internal/domain"
	"permsim/internal/eventbus"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n
}

func newTestBus(t *testing.T) *eventbus.Bus {
	t.Helper()
	return eventbus.New(eventbus.DefaultBackpressureTimeout, zap.NewNop(), nil)
}

func TestNew_WritesHeaderRowsOnFirstOpen(t *testing.T) {
	dir := t.TempDir()
	bus := newTestBus(t)

	logger, err := New(dir, bus, zap.NewNop())
	require.NoError(t, err)
	defer logger.Close()

	for _, name := range []string{ordersFile, executionsFile, oracleFile, positionsFile, marketsFile, varaTxFile} {
		assert.Equal(t, 1, countLines(t, filepath.Join(dir, name)), "header row for %s", name)
	}
}

func TestLogger_DrainsOrderSubmittedAndExecuted(t *testing.T) {
	dir := t.TempDir()
	bus := newTestBus(t)

	logger, err := New(dir, bus, zap.NewNop())
	require.NoError(t, err)

	bus.Publish(domain.OrderSubmitted{ClientOrderID: "abc", Account: domain.AgentId(1), Symbol: "ETH-USD", Nonce: 5})
	bus.Publish(domain.OrderExecuted{
		ClientOrderID: "abc", Account: domain.AgentId(1), Symbol: "ETH-USD",
		FillPrice: domain.NewPrice(2_500_000_000), FeePaidUSD: big.NewInt(10),
	})

	require.Eventually(t, func() bool {
		return countLines(t, filepath.Join(dir, ordersFile)) == 2 &&
			countLines(t, filepath.Join(dir, executionsFile)) == 2 &&
			countLines(t, filepath.Join(dir, varaTxFile)) == 3
	}, time.Second, 10*time.Millisecond)

	logger.Close()
}

func TestLogger_DrainsOracleAndSnapshotEvents(t *testing.T) {
	dir := t.TempDir()
	bus := newTestBus(t)

	logger, err := New(dir, bus, zap.NewNop())
	require.NoError(t, err)

	bus.Publish(domain.OracleTick{
		Symbol: "ETH-USD", PriceMin: domain.NewPrice(1), PriceMax: domain.NewPrice(2), PriceMid: domain.NewPrice(1),
		PublishNs: 100, ReceivedNs: 110,
	})
	bus.Publish(domain.PositionSnapshot{Position: domain.Position{
		Account: domain.AgentId(2), Symbol: "ETH-USD", SizeUSD: big.NewInt(100), Collateral: big.NewInt(10),
		UnrealizedPnl: big.NewInt(0), LeverageActual: 3,
	}})
	bus.Publish(domain.MarketSnapshot{Market: domain.MarketState{
		Symbol: "ETH-USD", OILongUSD: big.NewInt(1), OIShortUSD: big.NewInt(1), LiquidityUSD: big.NewInt(1),
		FundingRatePerHour: 0.001, BorrowRatePerHour: 0.0005, LastRefreshNs: 200,
	}})

	require.Eventually(t, func() bool {
		return countLines(t, filepath.Join(dir, oracleFile)) == 2 &&
			countLines(t, filepath.Join(dir, positionsFile)) == 2 &&
			countLines(t, filepath.Join(dir, marketsFile)) == 2
	}, time.Second, 10*time.Millisecond)

	logger.Close()
}

func TestNew_AppendsWithoutRewritingHeaderOnReopen(t *testing.T) {
	dir := t.TempDir()
	bus1 := newTestBus(t)

	logger1, err := New(dir, bus1, zap.NewNop())
	require.NoError(t, err)
	bus1.Publish(domain.OrderSubmitted{ClientOrderID: "first", Account: domain.AgentId(1), Symbol: "ETH-USD", Nonce: 1})
	require.Eventually(t, func() bool {
		return countLines(t, filepath.Join(dir, ordersFile)) == 2
	}, time.Second, 10*time.Millisecond)
	logger1.Close()

	bus2 := newTestBus(t)
	logger2, err := New(dir, bus2, zap.NewNop())
	require.NoError(t, err)
	defer logger2.Close()

	assert.Equal(t, 2, countLines(t, filepath.Join(dir, ordersFile)), "reopen must not duplicate the header")
}
