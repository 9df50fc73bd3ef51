package bots

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/book"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/ledger"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/pricing"
)

type Strategy string

const (
	StrategyRandom   Strategy = "random"
	StrategyMomentum Strategy = "momentum"
	StrategyValue    Strategy = "value"
)

// Outcome is the structured result of one agent action. The tick pass
// branches on it instead of recovering from failures.
type Outcome string

const (
	// OutcomeFilled: an issuance purchase settled immediately.
	OutcomeFilled Outcome = "filled"
	// OutcomeCrossed: the agent took a resting counter-order's price.
	OutcomeCrossed Outcome = "crossed"
	// OutcomeRested: a passive limit order was booked.
	OutcomeRested Outcome = "rested"
	// OutcomeRejected: escrow or validation turned the order away.
	OutcomeRejected Outcome = "rejected"
	// OutcomeNoOpportunity: the agent found nothing actionable this tick.
	OutcomeNoOpportunity Outcome = "no_opportunity"
)

func (o Outcome) Acted() bool {
	return o == OutcomeFilled || o == OutcomeCrossed || o == OutcomeRested
}

type Agent struct {
	Owner    string
	Name     string
	Strategy Strategy
	Active   bool
}

type Config struct {
	Count       int
	InitialCash decimal.Decimal
	// Names seeds agent display names; extra agents get generated names.
	Names []string
	// SentimentWindow is the lookback for the short-horizon price change
	// driving agent sentiment.
	SentimentWindow time.Duration
	MaxOrderQty     int64
}

func DefaultConfig() Config {
	return Config{
		Count:       10,
		InitialCash: decimal.NewFromInt(50000),
		Names: []string{
			"Arjun Mehta", "Priya Sharma", "Rahul Verma",
			"Anjali Gupta", "Vikram Singh", "Sneha Patel", "Rohan Das",
			"Kavita Reddy", "Amit Joshi", "Pooja Malhotra",
		},
		SentimentWindow: time.Hour,
		MaxOrderQty:     100,
	}
}

// Pool drives the synthetic agents. All agent orders go through the same
// place-order escrow path as human orders.
type Pool struct {
	cfg    Config
	market *book.Manager
	pricer *pricing.Engine
	ledger *ledger.Ledger
	log    *zap.SugaredLogger

	mu     sync.Mutex
	rng    *rand.Rand
	agents []*Agent

	processing atomic.Bool
}

func NewPool(cfg Config, market *book.Manager, pricer *pricing.Engine, l *ledger.Ledger, rng *rand.Rand) *Pool {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.MaxOrderQty <= 0 {
		cfg.MaxOrderQty = 100
	}
	if cfg.SentimentWindow <= 0 {
		cfg.SentimentWindow = time.Hour
	}

	p := &Pool{
		cfg:    cfg,
		market: market,
		pricer: pricer,
		ledger: l,
		log:    zap.S(),
		rng:    rng,
	}

	strategies := []Strategy{StrategyRandom, StrategyMomentum, StrategyValue}
	for i := 0; i < cfg.Count; i++ {
		name := fmt.Sprintf("Trader %d", i+1)
		if i < len(cfg.Names) {
			name = cfg.Names[i]
		}
		agent := &Agent{
			Owner:    fmt.Sprintf("bot-%02d", i+1),
			Name:     name,
			Strategy: strategies[i%len(strategies)],
			Active:   true,
		}
		l.Open(agent.Owner, cfg.InitialCash)
		p.agents = append(p.agents, agent)
	}
	return p
}

// Tick runs one pass over all active agents and returns how many acted.
// Passes never overlap: a tick arriving while one is running is skipped.
func (p *Pool) Tick(ctx context.Context) int {
	if !p.processing.CompareAndSwap(false, true) {
		return 0
	}
	defer p.processing.Store(false)

	acted := 0
	for _, agent := range p.snapshotAgents() {
		if ctx.Err() != nil {
			break
		}
		if !agent.Active {
			continue
		}
		outcome := p.trade(agent)
		if outcome.Acted() {
			acted++
		} else {
			p.log.Debugw("agent idle", "agent", agent.Owner, "outcome", outcome)
		}
	}
	return acted
}

func (p *Pool) snapshotAgents() []Agent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Agent, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, *a)
	}
	return out
}

// trade decides buy vs sell for one agent, skewed by the active market trend,
// and falls back to the opposite action when the first finds nothing.
func (p *Pool) trade(agent Agent) Outcome {
	instruments := p.market.Instruments()
	if len(instruments) == 0 {
		return OutcomeNoOpportunity
	}

	direction, _, _ := p.pricer.ActiveTrend(pricing.GlobalTrend)
	crash := direction == pricing.TrendBear
	bullRun := direction == pricing.TrendBull

	var buyFirst bool
	switch {
	case crash:
		buyFirst = p.chance(0.10) // vultures
	case bullRun:
		buyFirst = p.chance(0.90) // FOMO
	default:
		buyFirst = p.chance(0.50)
	}

	if buyFirst {
		outcome := p.buy(agent, instruments, crash, bullRun)
		if !outcome.Acted() && outcome != OutcomeRejected && !crash {
			return p.sell(agent, crash, bullRun)
		}
		return outcome
	}
	outcome := p.sell(agent, crash, bullRun)
	if !outcome.Acted() && outcome != OutcomeRejected && !bullRun {
		return p.buy(agent, instruments, crash, bullRun)
	}
	return outcome
}

func (p *Pool) buy(agent Agent, instruments []model.Instrument, crash, bullRun bool) Outcome {
	inst := p.selectInstrument(agent.Strategy, instruments)
	if !inst.Price.IsPositive() {
		return OutcomeNoOpportunity
	}

	balance, err := p.ledger.Balance(agent.Owner)
	if err != nil {
		return OutcomeRejected
	}
	maxAffordable := balance.Div(inst.Price).IntPart()
	if maxAffordable < 1 {
		return OutcomeNoOpportunity
	}
	qty := p.randomQty(minInt64(maxAffordable, p.cfg.MaxOrderQty))

	var multiplier float64
	sentiment := p.sentiment(inst)
	switch {
	case crash:
		multiplier = p.uniform(0.75, 0.85) // vulture bids only
	case bullRun:
		multiplier = p.uniform(1.05, 1.15)
	case sentiment == pricing.TrendBull:
		multiplier = p.uniform(1.01, 1.03)
	case sentiment == pricing.TrendBear:
		multiplier = p.uniform(0.95, 0.98)
	default:
		multiplier = p.uniform(1.00, 1.01)
	}
	bid := inst.Price.Mul(decimal.NewFromFloat(multiplier)).Round(2)

	// Take a resting ask when it is within our bid.
	if ask, ok := p.market.BestAsk(inst.Symbol); ok && !ask.Price.GreaterThan(bid) {
		takeQty := minInt64(qty, ask.Quantity)
		if _, err := p.market.PlaceOrder(agent.Owner, inst.Symbol, model.OrderSideBuy, takeQty, ask.Price); err == nil {
			return OutcomeCrossed
		}
	}

	// Primary issuance, rarely attractive during a crash.
	if inst.AvailableShares >= qty && !crash {
		if _, err := p.market.BuyFromIssuer(agent.Owner, inst.Symbol, qty); err == nil {
			return OutcomeFilled
		}
	}

	if _, err := p.market.PlaceOrder(agent.Owner, inst.Symbol, model.OrderSideBuy, qty, bid); err != nil {
		p.log.Debugw("agent buy rejected", "agent", agent.Owner, "symbol", inst.Symbol, "err", err)
		return OutcomeRejected
	}
	return OutcomeRested
}

func (p *Pool) sell(agent Agent, crash, bullRun bool) Outcome {
	holdings := p.ledger.Holdings(agent.Owner)
	if len(holdings) == 0 {
		return OutcomeNoOpportunity
	}
	holding := holdings[p.intn(len(holdings))]

	inst, err := p.market.Instrument(holding.Symbol)
	if err != nil {
		return OutcomeNoOpportunity
	}

	var multiplier float64
	var qty int64
	sentiment := p.sentiment(inst)
	switch {
	case crash:
		multiplier = p.uniform(0.80, 0.90) // panic exit
		qty = holding.Quantity
	case bullRun:
		multiplier = p.uniform(1.10, 1.20) // profit taking
		qty = maxInt64(1, holding.Quantity/10)
	case sentiment == pricing.TrendBull:
		multiplier = p.uniform(1.02, 1.05)
		qty = maxInt64(1, holding.Quantity/5)
	case sentiment == pricing.TrendBear:
		multiplier = p.uniform(0.97, 0.99)
		qty = maxInt64(1, holding.Quantity*3/10)
	default:
		multiplier = p.uniform(1.005, 1.02)
		qty = maxInt64(1, holding.Quantity/10)
	}
	ask := inst.Price.Mul(decimal.NewFromFloat(multiplier)).Round(2)

	// Hit a resting bid when it clears our acceptable price.
	if bid, ok := p.market.BestBid(inst.Symbol); ok {
		acceptable := ask
		if crash {
			// Desperate: take any bid above half the reference price.
			acceptable = inst.Price.Mul(decimal.NewFromFloat(0.50))
		}
		if !bid.Price.LessThan(acceptable) {
			hitQty := minInt64(qty, bid.Quantity)
			if _, err := p.market.PlaceOrder(agent.Owner, inst.Symbol, model.OrderSideSell, hitQty, bid.Price); err == nil {
				return OutcomeCrossed
			}
		}
	}

	if _, err := p.market.PlaceOrder(agent.Owner, inst.Symbol, model.OrderSideSell, qty, ask); err != nil {
		p.log.Debugw("agent sell rejected", "agent", agent.Owner, "symbol", inst.Symbol, "err", err)
		return OutcomeRejected
	}
	return OutcomeRested
}

// sentiment reads the instrument's bias: an active trend wins, otherwise the
// short-horizon price change decides.
func (p *Pool) sentiment(inst model.Instrument) pricing.TrendDirection {
	if direction, _, ok := p.pricer.ActiveTrend(inst.Symbol); ok {
		return direction
	}
	change := p.pricer.ChangePercent(inst.Symbol, inst.Price, p.cfg.SentimentWindow)
	switch {
	case change >= 2.0:
		return pricing.TrendBull
	case change <= -2.0:
		return pricing.TrendBear
	default:
		return pricing.TrendNeutral
	}
}

// selectInstrument biases which instrument an agent trades: momentum agents
// rank-weight toward the most expensive names, value agents toward the
// cheapest, random agents pick uniformly.
func (p *Pool) selectInstrument(strategy Strategy, instruments []model.Instrument) model.Instrument {
	switch strategy {
	case StrategyMomentum:
		sorted := append([]model.Instrument(nil), instruments...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price.GreaterThan(sorted[j].Price) })
		return p.rankWeighted(sorted)
	case StrategyValue:
		sorted := append([]model.Instrument(nil), instruments...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price.LessThan(sorted[j].Price) })
		return p.rankWeighted(sorted)
	default:
		return instruments[p.intn(len(instruments))]
	}
}

// rankWeighted draws with weight 1/(rank+1) so earlier entries are favored
// without starving the tail.
func (p *Pool) rankWeighted(sorted []model.Instrument) model.Instrument {
	total := 0.0
	for i := range sorted {
		total += 1.0 / float64(i+1)
	}
	p.mu.Lock()
	r := p.rng.Float64() * total
	p.mu.Unlock()
	for i := range sorted {
		r -= 1.0 / float64(i+1)
		if r <= 0 {
			return sorted[i]
		}
	}
	return sorted[len(sorted)-1]
}

// Stat is one agent's performance projection.
type Stat struct {
	Owner          string
	Name           string
	Strategy       Strategy
	Cash           decimal.Decimal
	PortfolioValue decimal.Decimal
	TotalValue     decimal.Decimal
	ProfitLoss     decimal.Decimal
	Active         bool
}

// Stats values holdings at the current reference price and reports P&L
// against cost basis.
func (p *Pool) Stats() []Stat {
	out := make([]Stat, 0, len(p.agents))
	for _, agent := range p.snapshotAgents() {
		cash, _ := p.ledger.Balance(agent.Owner)
		var value, invested decimal.Decimal
		for _, h := range p.ledger.Holdings(agent.Owner) {
			price, err := p.market.ReferencePrice(h.Symbol)
			if err != nil {
				continue
			}
			value = value.Add(price.Mul(decimal.NewFromInt(h.Quantity)))
			invested = invested.Add(h.TotalInvested)
		}
		out = append(out, Stat{
			Owner:          agent.Owner,
			Name:           agent.Name,
			Strategy:       agent.Strategy,
			Cash:           cash,
			PortfolioValue: value,
			TotalValue:     cash.Add(value),
			ProfitLoss:     value.Sub(invested),
			Active:         agent.Active,
		})
	}
	return out
}

// Toggle enables or disables one agent by owner id.
func (p *Pool) Toggle(owner string, active bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.agents {
		if a.Owner == owner {
			a.Active = active
			return true
		}
	}
	return false
}

func (p *Pool) chance(prob float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < prob
}

func (p *Pool) uniform(lo, hi float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + p.rng.Float64()*(hi-lo)
}

func (p *Pool) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

func (p *Pool) randomQty(limit int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return 1 + p.rng.Int63n(limit)
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
