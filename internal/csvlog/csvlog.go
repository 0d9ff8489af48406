// Package csvlog appends domain events to the fixed-schema CSV files §6.5
// names under logs/: one *csv.Writer per file, flushed after every event
// drained from the EventBus, grounded on this repo's convention of a
// dedicated file per persistence concern rather than one monolithic writer.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"permsim/internal/domain"
	"permsim/internal/eventbus"
)

// file names under the logs directory, fixed per §6.5.
const (
	ordersFile     = "orders.csv"
	executionsFile = "executions.csv"
	oracleFile     = "oracle.csv"
	positionsFile  = "positions.csv"
	marketsFile    = "markets.csv"
	varaTxFile     = "vara_transactions.csv"
)

type writer struct {
	file *os.File
	csv  *csv.Writer
}

func openWriter(dir, name string, header []string) (*writer, error) {
	path := filepath.Join(dir, name)
	exists := false
	if _, err := os.Stat(path); err == nil {
		exists = true
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csvlog: open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvlog: header %s: %w", path, err)
		}
		w.Flush()
	}
	return &writer{file: f, csv: w}, nil
}

func (w *writer) append(row []string) {
	_ = w.csv.Write(row)
}

func (w *writer) flush() {
	w.csv.Flush()
}

func (w *writer) close() {
	w.csv.Flush()
	_ = w.file.Close()
}

// Logger owns one append-only CSV writer per §6.5 file and drains a
// dedicated EventBus subscriber into them.
type Logger struct {
	dir     string
	orders  *writer
	execs   *writer
	oracle  *writer
	pos     *writer
	markets *writer
	varaTx  *writer
	sub     *eventbus.Subscriber
	bus     *eventbus.Bus
	log     *zap.Logger
	done    chan struct{}
}

// New creates dir if needed and opens all six files in it, writing a
// header row to any that don't already exist.
func New(dir string, bus *eventbus.Bus, log *zap.Logger) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csvlog: mkdir %s: %w", dir, err)
	}

	orders, err := openWriter(dir, ordersFile, []string{"client_order_id", "account", "symbol", "nonce"})
	if err != nil {
		return nil, err
	}
	execs, err := openWriter(dir, executionsFile, []string{"client_order_id", "account", "symbol", "side", "action", "fill_price", "fee_paid_usd"})
	if err != nil {
		return nil, err
	}
	oracle, err := openWriter(dir, oracleFile, []string{"symbol", "price_min", "price_max", "price_mid", "publish_ns", "received_ns"})
	if err != nil {
		return nil, err
	}
	pos, err := openWriter(dir, positionsFile, []string{"account", "symbol", "side", "size_usd", "collateral", "entry_price", "current_price", "unrealized_pnl", "liquidation_price", "leverage_actual"})
	if err != nil {
		return nil, err
	}
	markets, err := openWriter(dir, marketsFile, []string{"symbol", "oi_long_usd", "oi_short_usd", "liquidity_usd", "funding_rate_per_hour", "borrow_rate_per_hour", "last_refresh_ns"})
	if err != nil {
		return nil, err
	}
	varaTx, err := openWriter(dir, varaTxFile, []string{"phase", "client_order_id", "account", "symbol", "nonce", "fill_price"})
	if err != nil {
		return nil, err
	}

	l := &Logger{
		dir: dir, orders: orders, execs: execs, oracle: oracle, pos: pos, markets: markets, varaTx: varaTx,
		bus: bus, sub: bus.Subscribe(256), log: log, done: make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// run drains the subscriber until the bus closes its channel on Unsubscribe.
func (l *Logger) run() {
	defer close(l.done)
	for ev := range l.sub.Events() {
		l.handle(ev)
	}
}

func (l *Logger) handle(ev domain.Event) {
	switch e := ev.(type) {
	case domain.OracleTick:
		l.oracle.append([]string{string(e.Symbol), e.PriceMin.String(), e.PriceMax.String(), e.PriceMid.String(), itoa(e.PublishNs), itoa(e.ReceivedNs)})
		l.oracle.flush()
	case domain.OrderSubmitted:
		l.orders.append([]string{string(e.ClientOrderID), itoa32(e.Account), string(e.Symbol), itoa(e.Nonce)})
		l.varaTx.append([]string{"submit", string(e.ClientOrderID), itoa32(e.Account), string(e.Symbol), itoa(e.Nonce), ""})
		l.orders.flush()
		l.varaTx.flush()
	case domain.OrderExecuted:
		fillPrice := ""
		if e.FillPrice != nil {
			fillPrice = e.FillPrice.String()
		}
		l.execs.append([]string{string(e.ClientOrderID), itoa32(e.Account), string(e.Symbol), e.Side.String(), e.Action.String(), fillPrice, bigString(e.FeePaidUSD)})
		l.varaTx.append([]string{"execute", string(e.ClientOrderID), itoa32(e.Account), string(e.Symbol), "", fillPrice})
		l.execs.flush()
		l.varaTx.flush()
	case domain.PositionSnapshot:
		p := e.Position
		l.pos.append([]string{
			itoa32(p.Account), string(p.Symbol), p.Side.String(), bigString(p.SizeUSD), bigString(p.Collateral),
			priceString(p.EntryPrice), priceString(p.CurrentPrice), bigString(p.UnrealizedPnl), priceString(p.LiquidationPrice), u32toa(p.LeverageActual),
		})
		l.pos.flush()
	case domain.MarketSnapshot:
		m := e.Market
		l.markets.append([]string{
			string(m.Symbol), bigString(m.OILongUSD), bigString(m.OIShortUSD), bigString(m.LiquidityUSD),
			ftoa(m.FundingRatePerHour), ftoa(m.BorrowRatePerHour), itoa(m.LastRefreshNs),
		})
		l.markets.flush()
	default:
		if l.log != nil {
			l.log.Debug("csvlog: unhandled event", zap.String("event", ev.EventName()))
		}
	}
}

// Close unsubscribes from the bus, waits for the drain goroutine to finish,
// and flushes+closes every file.
func (l *Logger) Close() {
	l.bus.Unsubscribe(l.sub)
	<-l.done
	l.orders.close()
	l.execs.close()
	l.oracle.close()
	l.pos.close()
	l.markets.close()
	l.varaTx.close()
}
