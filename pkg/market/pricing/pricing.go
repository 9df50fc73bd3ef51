package pricing

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

// TapeReader is the trade-history view the pricing engine needs, owned by the
// order book.
type TapeReader interface {
	Tape(symbol string, limit int) []model.Trade
}

type TrendDirection string

const (
	TrendNeutral TrendDirection = "neutral"
	TrendBull    TrendDirection = "bull"
	TrendBear    TrendDirection = "bear"
)

// GlobalTrend is the symbol key for a trend applied to every instrument.
const GlobalTrend = ""

type Config struct {
	// Window is how many recent trades feed the VWAP.
	Window int
	// Convergence is the fraction of the gap to VWAP closed per tick.
	Convergence float64
	// Noise is the half-width of the symmetric per-tick noise term. Zero
	// disables noise entirely.
	Noise float64
	// Floor is the minimum reference price.
	Floor decimal.Decimal
	// TickInterval converts a trend duration into a tick count for the
	// geometric step multiplier.
	TickInterval time.Duration
	// HistoryCap bounds in-memory price history per instrument.
	HistoryCap int
}

func DefaultConfig() Config {
	return Config{
		Window:       20,
		Convergence:  0.2,
		Noise:        0.005,
		Floor:        decimal.NewFromFloat(0.10),
		TickInterval: 10 * time.Second,
		HistoryCap:   1024,
	}
}

// trend is one operator-set bias. The step multiplier is precomputed when the
// trend starts so the price reaches the target geometrically by endTime.
type trend struct {
	direction TrendDirection
	step      float64
	intensity float64
	endTime   time.Time
}

// Engine derives the next reference price per instrument from recent trade
// flow plus any active trend. Randomness comes from the injected source only,
// so a seeded source makes behavior reproducible.
type Engine struct {
	cfg  Config
	tape TapeReader

	mu      sync.Mutex
	rng     *rand.Rand
	trends  map[string]*trend
	history map[string][]model.PricePoint

	obMu      sync.Mutex
	observers []func(model.PricePoint)
}

// RegisterObserver adds a callback invoked with every recorded price point.
// The persistence recorder hangs off this. Seeded bootstrap history is not
// replayed to observers.
func (e *Engine) RegisterObserver(fn func(model.PricePoint)) {
	e.obMu.Lock()
	defer e.obMu.Unlock()
	e.observers = append(e.observers, fn)
}

func NewEngine(cfg Config, tape TapeReader, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 1024
	}
	return &Engine{
		cfg:     cfg,
		tape:    tape,
		rng:     rng,
		trends:  make(map[string]*trend),
		history: make(map[string][]model.PricePoint),
	}
}

// SetTrend installs an operator-driven bias for one symbol, or globally with
// symbol == GlobalTrend. targetPercent is e.g. 20.0 for +20%, -10.0 for -10%.
func (e *Engine) SetTrend(symbol string, direction TrendDirection, targetPercent float64, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if direction == TrendNeutral || duration <= 0 {
		delete(e.trends, symbol)
		return
	}

	interval := e.cfg.TickInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticks := int(duration / interval)
	if ticks < 1 {
		ticks = 1
	}

	targetMultiplier := 1 + targetPercent/100.0
	intensity := 0.05
	if direction == TrendBear {
		intensity = -0.05
	}

	e.trends[symbol] = &trend{
		direction: direction,
		step:      math.Pow(targetMultiplier, 1/float64(ticks)),
		intensity: intensity,
		endTime:   time.Now().Add(duration),
	}
}

// ActiveTrend reports the trend currently applied to symbol, local first then
// global. Expired trends deactivate on read.
func (e *Engine) ActiveTrend(symbol string) (TrendDirection, float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.activeLocked(symbol)
	if t == nil {
		return TrendNeutral, 0, false
	}
	return t.direction, t.intensity, true
}

func (e *Engine) activeLocked(symbol string) *trend {
	for _, key := range []string{symbol, GlobalTrend} {
		t, ok := e.trends[key]
		if !ok {
			continue
		}
		if time.Now().After(t.endTime) {
			delete(e.trends, key)
			continue
		}
		return t
	}
	return nil
}

// NextPrice computes the next reference price for one instrument: VWAP over
// the recent trade window pulled in by the convergence fraction, small random
// drift when there were no trades, then the active trend step, then the floor
// clamp.
func (e *Engine) NextPrice(symbol string, current decimal.Decimal) decimal.Decimal {
	trades := e.tape.Tape(symbol, e.cfg.Window)

	var next decimal.Decimal
	if len(trades) == 0 {
		next = current.Mul(decimal.NewFromFloat(1 + e.noise()))
	} else {
		var totalValue decimal.Decimal
		var totalVolume int64
		for _, t := range trades {
			totalValue = totalValue.Add(t.TotalAmount())
			totalVolume += t.Quantity
		}
		if totalVolume > 0 {
			vwap := totalValue.Div(decimal.NewFromInt(totalVolume))
			gap := vwap.Sub(current)
			next = current.Add(gap.Mul(decimal.NewFromFloat(e.cfg.Convergence)))
			next = next.Mul(decimal.NewFromFloat(1 + e.noise()))
		} else {
			next = current
		}
	}

	e.mu.Lock()
	if t := e.activeLocked(symbol); t != nil {
		next = next.Mul(decimal.NewFromFloat(t.step))
	}
	e.mu.Unlock()

	next = next.Round(2)
	if next.LessThan(e.cfg.Floor) {
		next = e.cfg.Floor
	}
	return next
}

func (e *Engine) noise() float64 {
	if e.cfg.Noise == 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return (e.rng.Float64()*2 - 1) * e.cfg.Noise
}

// RecordPrice appends one point of reference-price history.
func (e *Engine) RecordPrice(symbol string, price decimal.Decimal, at time.Time) {
	point := model.PricePoint{Symbol: symbol, Price: price, RecordedAt: at}
	e.mu.Lock()
	e.appendPointLocked(point)
	e.mu.Unlock()

	e.obMu.Lock()
	observers := e.observers
	e.obMu.Unlock()
	for _, fn := range observers {
		fn(point)
	}
}

func (e *Engine) appendPointLocked(p model.PricePoint) {
	points := append(e.history[p.Symbol], p)
	if len(points) > e.cfg.HistoryCap {
		points = points[len(points)-e.cfg.HistoryCap:]
	}
	e.history[p.Symbol] = points
}

// History returns up to limit points, oldest first.
func (e *Engine) History(symbol string, limit int) []model.PricePoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	points := e.history[symbol]
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return append([]model.PricePoint(nil), points...)
}

// ChangePercent is the percent move of current against the recorded price at
// or before the lookback cutoff. With no point that old, the earliest point
// serves as the baseline.
func (e *Engine) ChangePercent(symbol string, current decimal.Decimal, lookback time.Duration) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	points := e.history[symbol]
	if len(points) == 0 {
		return 0
	}
	cutoff := time.Now().Add(-lookback)
	old := points[0].Price
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].RecordedAt.After(cutoff) {
			old = points[i].Price
			break
		}
	}
	if old.IsZero() {
		return 0
	}
	change, _ := current.Sub(old).Div(old).Mul(decimal.NewFromInt(100)).Float64()
	return change
}

// SeedHistory synthesizes a day of backdated points so charts are not empty
// on a fresh start: a gentle ramp from a randomly offset start price to the
// listing price, with noise.
func (e *Engine) SeedHistory(symbol string, base decimal.Decimal, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history[symbol]) > 0 {
		return
	}

	direction := float64(1)
	if e.rng.Intn(2) == 0 {
		direction = -1
	}
	ramp := direction * (0.01 + e.rng.Float64()*0.04)
	start := base.Mul(decimal.NewFromFloat(1 - ramp))

	for i := 24; i >= 0; i-- {
		progress := float64(24-i) / 24.0
		price := start.Add(base.Sub(start).Mul(decimal.NewFromFloat(progress)))
		noise := (e.rng.Float64()*2 - 1) * 0.02
		price = price.Mul(decimal.NewFromFloat(1 + noise)).Round(2)
		if price.LessThan(e.cfg.Floor) {
			price = e.cfg.Floor
		}
		e.appendPointLocked(model.PricePoint{
			Symbol:     symbol,
			Price:      price,
			RecordedAt: now.Add(-time.Duration(i) * time.Hour),
		})
	}
}
