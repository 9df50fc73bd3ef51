package market

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/pricing"
)

func testInstruments() []model.Instrument {
	return []model.Instrument{
		{Symbol: "AAA", Name: "Alpha", Price: decimal.NewFromInt(100), TotalShares: 1000, AvailableShares: 1000},
		{Symbol: "BBB", Name: "Beta", Price: decimal.NewFromInt(10), TotalShares: 5000, AvailableShares: 5000},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Pricing.Noise = 0
	cfg.Bots.Count = 2
	return NewEngine(cfg, testInstruments(), rand.New(rand.NewSource(3)))
}

func TestNewEngineListsAndSeeds(t *testing.T) {
	e := newTestEngine(t)

	instruments := e.Instruments()
	if len(instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(instruments))
	}
	for _, inst := range instruments {
		if inst.IssuerAccount != "issuer:"+inst.Symbol {
			t.Errorf("%s: expected default issuer account, got %q", inst.Symbol, inst.IssuerAccount)
		}
		if _, err := e.Balance(inst.IssuerAccount); err != nil {
			t.Errorf("%s: issuer account not opened: %v", inst.Symbol, err)
		}
		if got := len(e.PriceHistory(inst.Symbol, 0)); got == 0 {
			t.Errorf("%s: expected seeded price history", inst.Symbol)
		}
	}
}

func TestPlaceMatchAndTradeHistory(t *testing.T) {
	e := newTestEngine(t)
	e.OpenAccount("alice", decimal.NewFromInt(10_000))
	e.OpenAccount("bob", decimal.NewFromInt(10_000))

	if _, err := e.BuyFromIssuer("bob", "AAA", 10); err != nil {
		t.Fatalf("issuance: %v", err)
	}

	if _, err := e.PlaceOrder("bob", "AAA", model.OrderSideSell, 10, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if _, err := e.PlaceOrder("alice", "AAA", model.OrderSideBuy, 10, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	trades, err := e.Books().Match("AAA")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	// The trade callback printed the execution into price history.
	points := e.PriceHistory("AAA", 0)
	last := points[len(points)-1]
	if !last.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected trade price recorded, got %s", last.Price)
	}

	holdings := e.Holdings("alice")
	if len(holdings) != 1 || holdings[0].Quantity != 10 {
		t.Errorf("expected alice to hold 10 AAA, got %+v", holdings)
	}
}

func TestOverview(t *testing.T) {
	e := newTestEngine(t)

	ov := e.Overview(1)
	if ov.TotalInstruments != 2 {
		t.Errorf("expected 2 instruments, got %d", ov.TotalInstruments)
	}
	// AAA cap 100*1000 = 100000, BBB cap 10*5000 = 50000.
	if !ov.TotalMarketCap.Equal(decimal.NewFromInt(150_000)) {
		t.Errorf("expected total cap 150000, got %s", ov.TotalMarketCap)
	}
	if !ov.AveragePrice.Equal(decimal.NewFromInt(55)) {
		t.Errorf("expected average price 55, got %s", ov.AveragePrice)
	}
	if len(ov.Top) != 1 || ov.Top[0].Symbol != "AAA" {
		t.Errorf("expected AAA as largest cap, got %+v", ov.Top)
	}
}

func TestStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pricing.Noise = 0
	cfg.Bots.Count = 2
	cfg.PriceTickInterval = time.Millisecond
	cfg.BotTickInterval = time.Millisecond
	cfg.MatchTickInterval = time.Millisecond
	e := NewEngine(cfg, testInstruments(), rand.New(rand.NewSource(3)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	// The agents had time to act on a fresh market.
	var acted bool
	for _, s := range e.AgentStats() {
		if !s.Cash.Equal(cfg.Bots.InitialCash) || len(e.OrdersOf(s.Owner)) > 0 || len(e.Holdings(s.Owner)) > 0 {
			acted = true
		}
	}
	if !acted {
		t.Error("expected agent activity while the engine ran")
	}

	// Stop is idempotent.
	e.Stop()
}

func TestConcurrentPriceAndBotTicks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Bots.Count = 4
	// Noise on, so every price tick draws from the pricing rng while the
	// agents draw from theirs.
	cfg.Pricing.Noise = 0.005
	e := NewEngine(cfg, testInstruments(), rand.New(rand.NewSource(3)))

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			e.priceTick(ctx)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			e.pool.Tick(ctx)
		}
	}()
	wg.Wait()

	if got := len(e.PriceHistory("AAA", 0)); got == 0 {
		t.Error("expected price history after ticking")
	}
}

func TestPriceTickRecordsFlatTicks(t *testing.T) {
	e := newTestEngine(t)

	// Zero noise, no trades, no trend: the price stays flat, yet every tick
	// still lands in history.
	before := len(e.PriceHistory("AAA", 0))
	e.priceTick(context.Background())
	e.priceTick(context.Background())
	points := e.PriceHistory("AAA", 0)
	if len(points) != before+2 {
		t.Fatalf("expected 2 new points, got %d", len(points)-before)
	}
	inst, _ := e.Instrument("AAA")
	for _, p := range points[before:] {
		if !p.Price.Equal(inst.Price) {
			t.Errorf("expected flat tick at %s, got %s", inst.Price, p.Price)
		}
	}
}

func TestSetTrendMovesPrices(t *testing.T) {
	e := newTestEngine(t)
	e.SetTrend("AAA", pricing.TrendBull, 50.0, time.Hour)

	before, _ := e.Instrument("AAA")
	e.priceTick(context.Background())
	after, _ := e.Instrument("AAA")

	if !after.Price.GreaterThan(before.Price) {
		t.Errorf("expected bull trend to lift the price: %s -> %s", before.Price, after.Price)
	}
}

func TestChangePercentUsesReferencePrice(t *testing.T) {
	e := newTestEngine(t)

	now := time.Now()
	e.Pricer().RecordPrice("AAA", decimal.NewFromInt(100), now.Add(-25*time.Hour))
	if err := e.Books().SetReferencePrice("AAA", decimal.NewFromInt(110)); err != nil {
		t.Fatalf("set price: %v", err)
	}

	change := e.ChangePercent("AAA", 24*time.Hour)
	if change < 9.0 || change > 11.0 {
		t.Errorf("expected ~10%% change, got %f", change)
	}

	if got := e.ChangePercent("NOPE", time.Hour); got != 0 {
		t.Errorf("expected 0 for unknown symbol, got %f", got)
	}
}
