package repo

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

// memRepo collects persisted rows in memory.
type memRepo struct {
	mu       sync.Mutex
	orders   map[string]model.Order
	trades   []model.Trade
	entries  []model.LedgerEntry
	holdings map[string]model.Holding
	points   []model.PricePoint
}

func newMemRepo() *memRepo {
	return &memRepo{
		orders:   make(map[string]model.Order),
		holdings: make(map[string]model.Holding),
	}
}

func (m *memRepo) Order() IOrder             { return memOrders{m} }
func (m *memRepo) Trade() ITrade             { return memTrades{m} }
func (m *memRepo) LedgerEntry() ILedgerEntry { return memEntries{m} }
func (m *memRepo) Holding() IHolding         { return memHoldings{m} }
func (m *memRepo) Price() IPrice             { return memPoints{m} }

type memOrders struct{ *memRepo }

func (m memOrders) Upsert(_ context.Context, order model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.OrderID] = order
	return nil
}

type memTrades struct{ *memRepo }

func (m memTrades) Create(_ context.Context, trade model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m memTrades) ListBySymbol(_ context.Context, symbol string, limit int) ([]model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trade
	for _, t := range m.trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type memEntries struct{ *memRepo }

func (m memEntries) Create(_ context.Context, entry model.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

type memHoldings struct{ *memRepo }

func (m memHoldings) Upsert(_ context.Context, holding model.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdings[holding.Owner+"/"+holding.Symbol] = holding
	return nil
}

type memPoints struct{ *memRepo }

func (m memPoints) Create(_ context.Context, point model.PricePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, point)
	return nil
}

func (m *memRepo) snapshot() (orders, trades, entries, holdings, points int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders), len(m.trades), len(m.entries), len(m.holdings), len(m.points)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestRecorderPersistsEngineEvents(t *testing.T) {
	cfg := market.DefaultConfig()
	cfg.Pricing.Noise = 0
	cfg.Bots.Count = 0
	engine := market.NewEngine(cfg, []model.Instrument{
		{Symbol: "TST", Name: "Test Co", Price: decimal.NewFromInt(50), TotalShares: 1000, AvailableShares: 1000},
	}, rand.New(rand.NewSource(5)))

	mem := newMemRepo()
	rec := NewRecorder(mem)
	rec.Attach(engine)
	defer rec.Stop()

	engine.OpenAccount("alice", decimal.NewFromInt(10_000))
	engine.OpenAccount("bob", decimal.NewFromInt(10_000))

	if _, err := engine.BuyFromIssuer("bob", "TST", 10); err != nil {
		t.Fatalf("issuance: %v", err)
	}
	if _, err := engine.PlaceOrder("bob", "TST", model.OrderSideSell, 10, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if _, err := engine.PlaceOrder("alice", "TST", model.OrderSideBuy, 10, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := engine.Books().Match("TST"); err != nil {
		t.Fatalf("match: %v", err)
	}

	// Two accepted orders plus their post-match states, two trades (issuance
	// and crossing), journal entries for deposits, escrows and proceeds,
	// holding snapshots for both sides, and the price points printed by the
	// trade callbacks.
	waitFor(t, func() bool {
		orders, trades, entries, holdings, points := mem.snapshot()
		return orders == 2 && trades == 2 && entries >= 4 && holdings >= 2 && points >= 2
	})

	mem.mu.Lock()
	defer mem.mu.Unlock()

	for id, o := range mem.orders {
		if o.Status != model.OrderStatusCompleted {
			t.Errorf("order %s: expected final state persisted, got %s", id, o.Status)
		}
	}

	// The seller's position liquidated fully: its snapshot is zeroed.
	h, ok := mem.holdings["bob/TST"]
	if !ok {
		t.Fatal("expected seller holding snapshot")
	}
	if h.Quantity != 0 {
		t.Errorf("expected zeroed seller holding, got %+v", h)
	}
	if h, ok := mem.holdings["alice/TST"]; !ok || h.Quantity != 10 {
		t.Errorf("expected buyer holding of 10, got %+v", h)
	}
}
