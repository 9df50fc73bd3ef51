package bots

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/book"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/ledger"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/pricing"
)

func newTestPool(t *testing.T, agents int) (*Pool, *book.Manager, *ledger.Ledger, *pricing.Engine) {
	t.Helper()
	l := ledger.NewLedger()
	m := book.NewManager(l)
	l.Open("issuer", decimal.Zero)
	m.ListInstrument(model.Instrument{
		Symbol:          "TST",
		Name:            "Test Co",
		Price:           decimal.NewFromInt(50),
		TotalShares:     1_000_000,
		AvailableShares: 1_000_000,
		IssuerAccount:   "issuer",
	})

	pcfg := pricing.DefaultConfig()
	pcfg.Noise = 0
	pricer := pricing.NewEngine(pcfg, m, rand.New(rand.NewSource(7)))

	cfg := DefaultConfig()
	cfg.Count = agents
	pool := NewPool(cfg, m, pricer, l, rand.New(rand.NewSource(7)))
	return pool, m, l, pricer
}

func TestNewPoolOpensFundedAccounts(t *testing.T) {
	pool, _, l, _ := newTestPool(t, 4)

	stats := pool.Stats()
	if len(stats) != 4 {
		t.Fatalf("expected 4 agents, got %d", len(stats))
	}
	wantStrategies := []Strategy{StrategyRandom, StrategyMomentum, StrategyValue, StrategyRandom}
	for i, s := range stats {
		if s.Strategy != wantStrategies[i] {
			t.Errorf("agent %d: expected strategy %s, got %s", i, wantStrategies[i], s.Strategy)
		}
		balance, err := l.Balance(s.Owner)
		if err != nil {
			t.Fatalf("agent %s account missing: %v", s.Owner, err)
		}
		if !balance.Equal(decimal.NewFromInt(50000)) {
			t.Errorf("agent %s: expected 50000 initial cash, got %s", s.Owner, balance)
		}
	}
}

func TestTickActs(t *testing.T) {
	pool, m, _, _ := newTestPool(t, 6)

	acted := pool.Tick(context.Background())
	if acted == 0 {
		t.Fatal("expected at least one agent to act on an empty market")
	}

	// With an empty book the only routes are issuance and resting bids, so
	// every action left a trace: either supply shrank or orders rested.
	inst, _ := m.Instrument("TST")
	var restingOrders int
	for _, s := range pool.Stats() {
		restingOrders += len(m.OrdersOf(s.Owner))
	}
	if inst.AvailableShares == 1_000_000 && restingOrders == 0 {
		t.Error("agents reported acting but the market is untouched")
	}
}

func TestTickSkipsInactiveAgents(t *testing.T) {
	pool, m, l, _ := newTestPool(t, 1)

	if !pool.Toggle("bot-01", false) {
		t.Fatal("toggle failed")
	}
	if acted := pool.Tick(context.Background()); acted != 0 {
		t.Errorf("expected no action from disabled agent, got %d", acted)
	}
	balance, _ := l.Balance("bot-01")
	if !balance.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("disabled agent traded: balance %s", balance)
	}
	if got := len(m.OrdersOf("bot-01")); got != 0 {
		t.Errorf("disabled agent rested %d orders", got)
	}

	if pool.Toggle("bot-99", true) {
		t.Error("expected toggle of unknown agent to fail")
	}
}

func TestTickDoesNotOverlap(t *testing.T) {
	pool, _, _, _ := newTestPool(t, 1)

	pool.processing.Store(true)
	if acted := pool.Tick(context.Background()); acted != 0 {
		t.Errorf("expected overlapping tick to be skipped, got %d", acted)
	}
	pool.processing.Store(false)
}

func TestBuyRespectsBudget(t *testing.T) {
	pool, m, l, _ := newTestPool(t, 3)

	// Run many ticks; escrow must keep every agent solvent throughout.
	for i := 0; i < 50; i++ {
		pool.Tick(context.Background())
		if _, err := m.MatchAll(); err != nil {
			t.Fatalf("match: %v", err)
		}
		for _, s := range pool.Stats() {
			balance, _ := l.Balance(s.Owner)
			if balance.IsNegative() {
				t.Fatalf("agent %s went negative: %s", s.Owner, balance)
			}
		}
	}
}

func TestCrashSkewsToSelling(t *testing.T) {
	pool, m, _, pricer := newTestPool(t, 5)

	// Give every agent shares first so sells are possible.
	for _, s := range pool.Stats() {
		if _, err := m.BuyFromIssuer(s.Owner, "TST", 200); err != nil {
			t.Fatalf("seed %s: %v", s.Owner, err)
		}
	}
	supplyBefore, _ := m.Instrument("TST")

	pricer.SetTrend(pricing.GlobalTrend, pricing.TrendBear, -30.0, time.Hour)

	var sells, buys int
	for i := 0; i < 30; i++ {
		pool.Tick(context.Background())
		for _, s := range pool.Stats() {
			for _, o := range m.OrdersOf(s.Owner) {
				if o.Side == model.OrderSideSell {
					sells++
				} else {
					buys++
				}
			}
			for _, o := range m.OrdersOf(s.Owner) {
				_ = m.CancelOrder(o.OrderID, s.Owner)
			}
		}
	}

	if sells <= buys {
		t.Errorf("expected crash to skew toward selling: %d sells vs %d buys", sells, buys)
	}

	// No issuance purchases during a crash.
	supplyAfter, _ := m.Instrument("TST")
	if supplyAfter.AvailableShares != supplyBefore.AvailableShares {
		t.Errorf("expected no issuance during crash, supply moved %d -> %d",
			supplyBefore.AvailableShares, supplyAfter.AvailableShares)
	}
}

func TestOutcomeActed(t *testing.T) {
	acting := []Outcome{OutcomeFilled, OutcomeCrossed, OutcomeRested}
	for _, o := range acting {
		if !o.Acted() {
			t.Errorf("expected %s to count as acting", o)
		}
	}
	idle := []Outcome{OutcomeRejected, OutcomeNoOpportunity}
	for _, o := range idle {
		if o.Acted() {
			t.Errorf("expected %s to count as idle", o)
		}
	}
}

func TestSelectInstrumentBias(t *testing.T) {
	pool, _, _, _ := newTestPool(t, 1)

	instruments := []model.Instrument{
		{Symbol: "CHEAP", Price: decimal.NewFromInt(10)},
		{Symbol: "MID", Price: decimal.NewFromInt(100)},
		{Symbol: "RICH", Price: decimal.NewFromInt(1000)},
	}

	counts := func(strategy Strategy) map[string]int {
		out := make(map[string]int)
		for i := 0; i < 2000; i++ {
			out[pool.selectInstrument(strategy, instruments).Symbol]++
		}
		return out
	}

	momentum := counts(StrategyMomentum)
	if momentum["RICH"] <= momentum["CHEAP"] {
		t.Errorf("momentum should favor the expensive name: %v", momentum)
	}
	value := counts(StrategyValue)
	if value["CHEAP"] <= value["RICH"] {
		t.Errorf("value should favor the cheap name: %v", value)
	}
	random := counts(StrategyRandom)
	for sym, n := range random {
		if n < 400 || n > 950 {
			t.Errorf("random pick badly skewed for %s: %v", sym, random)
		}
	}
}

func TestStatsValuesAtReferencePrice(t *testing.T) {
	pool, m, _, _ := newTestPool(t, 1)

	if _, err := m.BuyFromIssuer("bot-01", "TST", 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Bought at 50, reference price moves to 60.
	if err := m.SetReferencePrice("TST", decimal.NewFromInt(60)); err != nil {
		t.Fatalf("set price: %v", err)
	}

	stats := pool.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected 1 stat, got %d", len(stats))
	}
	s := stats[0]
	if !s.Cash.Equal(decimal.NewFromInt(45000)) {
		t.Errorf("expected cash 45000, got %s", s.Cash)
	}
	if !s.PortfolioValue.Equal(decimal.NewFromInt(6000)) {
		t.Errorf("expected portfolio 6000, got %s", s.PortfolioValue)
	}
	if !s.ProfitLoss.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected P&L 1000, got %s", s.ProfitLoss)
	}
	if !s.TotalValue.Equal(decimal.NewFromInt(51000)) {
		t.Errorf("expected total 51000, got %s", s.TotalValue)
	}
}
