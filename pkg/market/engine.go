package market

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/book"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/bots"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/ledger"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/pricing"
)

type Config struct {
	// PriceTickInterval drives the pricing engine pass.
	PriceTickInterval time.Duration
	// BotTickInterval drives the synthetic order-flow pass.
	BotTickInterval time.Duration
	// MatchTickInterval drives the matching pass.
	MatchTickInterval time.Duration

	Pricing pricing.Config
	Bots    bots.Config
}

func DefaultConfig() Config {
	return Config{
		PriceTickInterval: 10 * time.Second,
		BotTickInterval:   10 * time.Second,
		MatchTickInterval: 5 * time.Second,
		Pricing:           pricing.DefaultConfig(),
		Bots:              bots.DefaultConfig(),
	}
}

// Engine is the explicit context object tying the ledger, order books,
// pricing engine and agent pool together. All engine state hangs off it; no
// package-level singletons.
type Engine struct {
	cfg Config
	log *zap.SugaredLogger

	ledger *ledger.Ledger
	books  *book.Manager
	pricer *pricing.Engine
	pool   *bots.Pool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewEngine builds an engine over the given listings. Each instrument's
// issuer gets a ledger account credited by primary-issuance fills. A nil rng
// gets a time-seeded source; tests inject a seeded one.
func NewEngine(cfg Config, instruments []model.Instrument, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	l := ledger.NewLedger()
	books := book.NewManager(l)
	// The price tick and bot tick run on separate goroutines, and *rand.Rand
	// is not safe for concurrent use. Each subsystem gets its own source,
	// seeded from the parent so one injected seed still reproduces a run.
	pricer := pricing.NewEngine(cfg.Pricing, books, rand.New(rand.NewSource(rng.Int63())))
	pool := bots.NewPool(cfg.Bots, books, pricer, l, rand.New(rand.NewSource(rng.Int63())))

	e := &Engine{
		cfg:    cfg,
		log:    zap.S(),
		ledger: l,
		books:  books,
		pricer: pricer,
		pool:   pool,
		stopCh: make(chan struct{}),
	}

	now := time.Now()
	for _, inst := range instruments {
		if inst.IssuerAccount == "" {
			inst.IssuerAccount = "issuer:" + inst.Symbol
		}
		if inst.ListedAt.IsZero() {
			inst.ListedAt = now
		}
		l.Open(inst.IssuerAccount, decimal.Zero)
		books.ListInstrument(inst)
		pricer.SeedHistory(inst.Symbol, inst.Price, now)
	}

	// Trades print straight into the reference-price history so charts react
	// without waiting for the next pricing tick.
	books.RegisterTradeCallback(func(trades []model.Trade) {
		for _, t := range trades {
			pricer.RecordPrice(t.Symbol, t.Price, t.ExecutedAt)
		}
	})

	return e
}

// Start launches the periodic drivers: price tick, synthetic-flow tick and
// match tick, each on its own goroutine so agent bursts never block order
// submission from external callers.
func (e *Engine) Start(ctx context.Context) {
	e.runEvery(ctx, e.cfg.PriceTickInterval, e.priceTick)
	e.runEvery(ctx, e.cfg.BotTickInterval, func(ctx context.Context) { e.pool.Tick(ctx) })
	e.runEvery(ctx, e.cfg.MatchTickInterval, e.matchTick)
	e.log.Infow("engine started",
		"price_tick", e.cfg.PriceTickInterval,
		"bot_tick", e.cfg.BotTickInterval,
		"match_tick", e.cfg.MatchTickInterval,
	)
}

func (e *Engine) runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Stop halts the drivers and waits for in-flight passes to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// priceTick advances every instrument's reference price one step. Every tick
// is recorded, flat ones included, so chart history has no gaps.
func (e *Engine) priceTick(context.Context) {
	now := time.Now()
	for _, inst := range e.books.Instruments() {
		next := e.pricer.NextPrice(inst.Symbol, inst.Price)
		if !next.Equal(inst.Price) {
			if err := e.books.SetReferencePrice(inst.Symbol, next); err != nil {
				continue
			}
		}
		e.pricer.RecordPrice(inst.Symbol, next, now)
	}
}

func (e *Engine) matchTick(context.Context) {
	trades, err := e.books.MatchAll()
	if err != nil {
		// A failed fill mid-pass means the book and ledger disagree. The
		// pass already aborted for that instrument; surface it loudly.
		e.log.Errorw("match pass aborted", "err", err)
	}
	if len(trades) > 0 {
		e.log.Debugw("match pass", "trades", len(trades))
	}
}

// OpenAccount registers an external (human) participant.
func (e *Engine) OpenAccount(owner string, initial decimal.Decimal) {
	e.ledger.Open(owner, initial)
}

// PlaceOrder submits an order through the same escrow path agents use.
func (e *Engine) PlaceOrder(owner, symbol string, side model.OrderSide, qty int64, price decimal.Decimal) (string, error) {
	return e.books.PlaceOrder(owner, symbol, side, qty, price)
}

func (e *Engine) CancelOrder(orderID, owner string) error {
	return e.books.CancelOrder(orderID, owner)
}

func (e *Engine) BuyFromIssuer(owner, symbol string, qty int64) (model.Trade, error) {
	return e.books.BuyFromIssuer(owner, symbol, qty)
}

// SetTrend is the single operator override: bias one instrument (or all with
// symbol == pricing.GlobalTrend) toward a target percent move over duration.
func (e *Engine) SetTrend(symbol string, direction pricing.TrendDirection, targetPercent float64, duration time.Duration) {
	e.pricer.SetTrend(symbol, direction, targetPercent, duration)
	e.log.Infow("market trend set",
		"symbol", symbol,
		"direction", direction,
		"target_percent", targetPercent,
		"duration", duration,
	)
}

// Overview aggregates the market projection consumers poll.
type Overview struct {
	TotalInstruments int
	TotalMarketCap   decimal.Decimal
	AveragePrice     decimal.Decimal
	Top              []model.Instrument
}

func (e *Engine) Overview(topN int) Overview {
	instruments := e.books.Instruments()
	ov := Overview{TotalInstruments: len(instruments)}
	if len(instruments) == 0 {
		return ov
	}
	var priceSum decimal.Decimal
	for _, inst := range instruments {
		ov.TotalMarketCap = ov.TotalMarketCap.Add(inst.MarketCap())
		priceSum = priceSum.Add(inst.Price)
	}
	ov.AveragePrice = priceSum.Div(decimal.NewFromInt(int64(len(instruments))))

	sortByCap(instruments)
	if topN > 0 && len(instruments) > topN {
		instruments = instruments[:topN]
	}
	ov.Top = instruments
	return ov
}

func sortByCap(instruments []model.Instrument) {
	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i].MarketCap().GreaterThan(instruments[j].MarketCap())
	})
}

// Read-only projections consumed by the presentation layer.

func (e *Engine) Instruments() []model.Instrument { return e.books.Instruments() }

func (e *Engine) Instrument(symbol string) (model.Instrument, error) {
	return e.books.Instrument(symbol)
}

func (e *Engine) Depth(symbol string, levels int) (book.Depth, error) {
	return e.books.Depth(symbol, levels)
}

func (e *Engine) Tape(symbol string, limit int) []model.Trade {
	return e.books.Tape(symbol, limit)
}

func (e *Engine) PriceHistory(symbol string, limit int) []model.PricePoint {
	return e.pricer.History(symbol, limit)
}

func (e *Engine) Holdings(owner string) []model.Holding { return e.ledger.Holdings(owner) }

func (e *Engine) Balance(owner string) (decimal.Decimal, error) { return e.ledger.Balance(owner) }

func (e *Engine) LedgerEntries(owner string, limit int) []model.LedgerEntry {
	return e.ledger.Entries(owner, limit)
}

func (e *Engine) OrdersOf(owner string) []model.Order { return e.books.OrdersOf(owner) }

func (e *Engine) Order(orderID string) (model.Order, error) { return e.books.Order(orderID) }

func (e *Engine) AgentStats() []bots.Stat { return e.pool.Stats() }

func (e *Engine) ToggleAgent(owner string, active bool) bool { return e.pool.Toggle(owner, active) }

// ChangePercent is the instrument's percent move over the lookback window,
// the figure 24h-change displays poll.
func (e *Engine) ChangePercent(symbol string, window time.Duration) float64 {
	inst, err := e.books.Instrument(symbol)
	if err != nil {
		return 0
	}
	return e.pricer.ChangePercent(symbol, inst.Price, window)
}

// Ledger exposes the ledger for persistence wiring.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Pricer exposes the pricing engine for persistence wiring.
func (e *Engine) Pricer() *pricing.Engine { return e.pricer }

// Books exposes the book manager for persistence and market-data wiring.
func (e *Engine) Books() *book.Manager { return e.books }
