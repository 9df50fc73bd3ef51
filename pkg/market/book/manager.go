package book

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/ledger"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

// Manager owns one order book per listed instrument and the escrow discipline
// around them. Every order, human or synthetic, goes through PlaceOrder.
type Manager struct {
	ledger *ledger.Ledger

	books       sync.Map // symbol -> *orderBook
	orderSymbol sync.Map // orderID -> symbol

	cbMu      sync.Mutex
	callbacks []func([]model.Trade)
	orderCbs  []func(model.Order)
}

func NewManager(l *ledger.Ledger) *Manager {
	return &Manager{ledger: l}
}

// RegisterTradeCallback adds a callback invoked with the trades of each match
// or issuance, after the book lock is released.
func (m *Manager) RegisterTradeCallback(cb func([]model.Trade)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// RegisterOrderCallback adds a callback invoked with a copy of every order
// state change: acceptance, fill progress, cancellation.
func (m *Manager) RegisterOrderCallback(cb func(model.Order)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.orderCbs = append(m.orderCbs, cb)
}

func (m *Manager) fireCallbacks(trades []model.Trade) {
	if len(trades) == 0 {
		return
	}
	m.cbMu.Lock()
	callbacks := m.callbacks
	m.cbMu.Unlock()
	for _, cb := range callbacks {
		cb(trades)
	}
}

func (m *Manager) fireOrderCallbacks(orders ...model.Order) {
	if len(orders) == 0 {
		return
	}
	m.cbMu.Lock()
	orderCbs := m.orderCbs
	m.cbMu.Unlock()
	for _, cb := range orderCbs {
		for _, o := range orders {
			cb(o)
		}
	}
}

// ListInstrument registers an instrument and its book. Listing an already
// listed symbol is a no-op.
func (m *Manager) ListInstrument(inst model.Instrument) {
	m.books.LoadOrStore(inst.Symbol, newOrderBook(inst))
}

func (m *Manager) getBook(symbol string) (*orderBook, error) {
	if val, ok := m.books.Load(symbol); ok {
		return val.(*orderBook), nil
	}
	return nil, ErrUnknownInstrument
}

// PlaceOrder escrows the full notional (cash for buys, shares for sells) and
// books the order. Validation and escrow failures reject the order before any
// book mutation.
func (m *Manager) PlaceOrder(owner, symbol string, side model.OrderSide, qty int64, price decimal.Decimal) (string, error) {
	ob, err := m.getBook(symbol)
	if err != nil {
		return "", err
	}
	if qty <= 0 {
		return "", ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return "", ErrInvalidPrice
	}

	if side == model.OrderSideBuy {
		notional := price.Mul(decimal.NewFromInt(qty))
		if err := m.ledger.Debit(owner, notional, "Buy order reserved "+symbol); err != nil {
			return "", err
		}
	} else {
		if err := m.ledger.EscrowShares(owner, symbol, qty); err != nil {
			return "", err
		}
	}

	order := ob.accept(owner, side, qty, price)
	m.orderSymbol.Store(order.OrderID, symbol)
	m.fireOrderCallbacks(order)
	return order.OrderID, nil
}

// CancelOrder reverts the escrow still held for the unfilled remainder and
// marks the order cancelled. Already filled quantity is untouched.
func (m *Manager) CancelOrder(orderID, owner string) error {
	symVal, ok := m.orderSymbol.Load(orderID)
	if !ok {
		return ErrOrderNotFound
	}
	ob, err := m.getBook(symVal.(string))
	if err != nil {
		return err
	}

	order, err := ob.cancel(orderID, owner)
	if err != nil {
		return err
	}
	m.fireOrderCallbacks(order)
	if order.Remaining == 0 {
		return nil
	}

	if order.Side == model.OrderSideBuy {
		return m.ledger.Credit(owner, order.RemainingNotional(), "Refund from cancelled buy order")
	}
	// The order's own limit price is the fallback basis when the holding was
	// fully liquidated while the escrow was out.
	return m.ledger.ReleaseShares(owner, order.Symbol, order.Remaining, order.Price)
}

// Match crosses one instrument's book until no crossing orders remain.
func (m *Manager) Match(symbol string) ([]model.Trade, error) {
	ob, err := m.getBook(symbol)
	if err != nil {
		return nil, err
	}
	trades, touched, err := ob.match(m.ledger)
	m.fireCallbacks(trades)
	m.fireOrderCallbacks(touched...)
	return trades, err
}

// MatchAll runs a match pass over every instrument. Only per-instrument locks
// are held; no lock spans the iteration. Idempotent: a second pass with no
// new orders produces zero trades.
func (m *Manager) MatchAll() ([]model.Trade, error) {
	var all []model.Trade
	var firstErr error
	m.books.Range(func(_, v any) bool {
		ob := v.(*orderBook)
		trades, touched, err := ob.match(m.ledger)
		m.fireCallbacks(trades)
		m.fireOrderCallbacks(touched...)
		all = append(all, trades...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return all, firstErr
}

// BuyFromIssuer fills qty shares out of the instrument's available supply at
// the current reference price, crediting the issuer's ledger account.
func (m *Manager) BuyFromIssuer(owner, symbol string, qty int64) (model.Trade, error) {
	ob, err := m.getBook(symbol)
	if err != nil {
		return model.Trade{}, err
	}
	if qty <= 0 {
		return model.Trade{}, ErrInvalidQuantity
	}
	trade, err := ob.issue(m.ledger, owner, qty)
	if err != nil {
		return model.Trade{}, err
	}
	m.fireCallbacks([]model.Trade{trade})
	return trade, nil
}

// Instrument returns a copy of the instrument's current state.
func (m *Manager) Instrument(symbol string) (model.Instrument, error) {
	ob, err := m.getBook(symbol)
	if err != nil {
		return model.Instrument{}, err
	}
	return ob.instrument(), nil
}

// Instruments returns every listed instrument.
func (m *Manager) Instruments() []model.Instrument {
	var out []model.Instrument
	m.books.Range(func(_, v any) bool {
		out = append(out, v.(*orderBook).instrument())
		return true
	})
	return out
}

func (m *Manager) ReferencePrice(symbol string) (decimal.Decimal, error) {
	ob, err := m.getBook(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return ob.referencePrice(), nil
}

func (m *Manager) SetReferencePrice(symbol string, price decimal.Decimal) error {
	ob, err := m.getBook(symbol)
	if err != nil {
		return err
	}
	ob.setReferencePrice(price)
	return nil
}

// Tape returns up to limit trades for one instrument, newest first. This is
// the trade-history reader the pricing engine consumes.
func (m *Manager) Tape(symbol string, limit int) []model.Trade {
	ob, err := m.getBook(symbol)
	if err != nil {
		return nil
	}
	return ob.recentTrades(limit)
}

// Depth returns an aggregated book snapshot for display.
func (m *Manager) Depth(symbol string, levels int) (Depth, error) {
	ob, err := m.getBook(symbol)
	if err != nil {
		return Depth{}, err
	}
	return ob.depth(levels), nil
}

// BestBid returns the top of the buy side.
func (m *Manager) BestBid(symbol string) (Level, bool) {
	ob, err := m.getBook(symbol)
	if err != nil {
		return Level{}, false
	}
	return ob.best(model.OrderSideBuy)
}

// BestAsk returns the top of the sell side.
func (m *Manager) BestAsk(symbol string) (Level, bool) {
	ob, err := m.getBook(symbol)
	if err != nil {
		return Level{}, false
	}
	return ob.best(model.OrderSideSell)
}

// OrdersOf returns one owner's open orders across all instruments.
func (m *Manager) OrdersOf(owner string) []model.Order {
	var out []model.Order
	m.books.Range(func(_, v any) bool {
		out = append(out, v.(*orderBook).ordersOf(owner)...)
		return true
	})
	return out
}

// Order returns a copy of one order by id.
func (m *Manager) Order(orderID string) (model.Order, error) {
	symVal, ok := m.orderSymbol.Load(orderID)
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	ob, err := m.getBook(symVal.(string))
	if err != nil {
		return model.Order{}, err
	}
	ob.mu.Lock()
	defer ob.mu.Unlock()
	order, ok := ob.orders[orderID]
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	return *order, nil
}
