package book

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/ledger"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

// tapeCap bounds the in-memory trade tape per instrument; the persistence
// recorder keeps the full history.
const tapeCap = 256

// Level is one aggregated price level of a depth snapshot.
type Level struct {
	Price    decimal.Decimal
	Quantity int64
}

// Depth is the consumer-facing book snapshot: bids best-first, asks best-first.
type Depth struct {
	Symbol string
	Bids   []Level
	Asks   []Level
}

// orderBook holds one instrument's resting orders plus the instrument state
// the matcher mutates: reference price, available supply, trade tape. One
// mutex guards all of it.
type orderBook struct {
	mu sync.Mutex

	inst model.Instrument

	buyOrders  map[string]*deque.Deque[*model.Order]
	sellOrders map[string]*deque.Deque[*model.Order]

	buyHeap  *PriceHeap
	sellHeap *PriceHeap

	// orders keeps every order ever accepted, terminal ones included, so
	// cancelling a completed order can be told apart from an unknown id.
	orders map[string]*model.Order

	tape []model.Trade
}

func newOrderBook(inst model.Instrument) *orderBook {
	buyHeap := NewPriceHeap(func(a, b decimal.Decimal) bool { return a.GreaterThan(b) }) // Max-heap
	sellHeap := NewPriceHeap(func(a, b decimal.Decimal) bool { return a.LessThan(b) })   // Min-heap

	return &orderBook{
		inst:       inst,
		buyOrders:  make(map[string]*deque.Deque[*model.Order]),
		sellOrders: make(map[string]*deque.Deque[*model.Order]),
		buyHeap:    buyHeap,
		sellHeap:   sellHeap,
		orders:     make(map[string]*model.Order),
	}
}

// accept books an order and returns a copy. The acceptance timestamp is
// assigned here, under the book lock, so concurrent submitters get a total
// order.
func (ob *orderBook) accept(owner string, side model.OrderSide, qty int64, price decimal.Decimal) model.Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order := &model.Order{
		OrderID:    uuid.New().String(),
		Symbol:     ob.inst.Symbol,
		Owner:      owner,
		Side:       side,
		Price:      price,
		Quantity:   qty,
		Remaining:  qty,
		Status:     model.OrderStatusPending,
		AcceptedAt: time.Now(),
	}
	ob.orders[order.OrderID] = order

	if side == model.OrderSideBuy {
		ob.addToBook(ob.buyOrders, ob.buyHeap, order)
	} else {
		ob.addToBook(ob.sellOrders, ob.sellHeap, order)
	}
	return *order
}

func (ob *orderBook) addToBook(book map[string]*deque.Deque[*model.Order], priceHeap *PriceHeap, order *model.Order) {
	key := order.Price.String()
	if book[key] == nil {
		book[key] = &deque.Deque[*model.Order]{}
		heap.Push(priceHeap, order.Price)
	}
	book[key].PushBack(order)
}

// bestOpen returns the front order of the best price level, discarding
// cancelled orders and drained levels on the way. Caller holds the lock and
// must pop the order itself once fully filled.
func (ob *orderBook) bestOpen(side model.OrderSide) *model.Order {
	book, priceHeap := ob.buyOrders, ob.buyHeap
	if side == model.OrderSideSell {
		book, priceHeap = ob.sellOrders, ob.sellHeap
	}

	for {
		bestPrice, ok := priceHeap.Peek()
		if !ok {
			return nil
		}
		q := book[bestPrice.String()]
		for q.Len() > 0 && !q.Front().Open() {
			q.PopFront()
		}
		if q.Len() == 0 {
			heap.Pop(priceHeap)
			delete(book, bestPrice.String())
			continue
		}
		return q.Front()
	}
}

// popFront removes a fully filled order from its level queue. Caller holds
// the lock; the order must currently be the front of its level.
func (ob *orderBook) popFront(order *model.Order) {
	book := ob.buyOrders
	if order.Side == model.OrderSideSell {
		book = ob.sellOrders
	}
	if q := book[order.Price.String()]; q != nil && q.Len() > 0 && q.Front() == order {
		q.PopFront()
	}
}

// match runs price-time priority matching until the book is uncrossed.
// Execution price is the resting (earlier-accepted) order's price; a buyer
// filling below their limit is refunded the difference out of escrow.
// Returned alongside the trades are copies of every touched order, for the
// persistence recorder.
func (ob *orderBook) match(l *ledger.Ledger) ([]model.Trade, []model.Order, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var trades []model.Trade
	touched := make(map[string]*model.Order)
	for {
		bid := ob.bestOpen(model.OrderSideBuy)
		ask := ob.bestOpen(model.OrderSideSell)
		if bid == nil || ask == nil || bid.Price.LessThan(ask.Price) {
			break
		}

		resting := ask
		if bid.AcceptedAt.Before(ask.AcceptedAt) {
			resting = bid
		}
		price := resting.Price
		qty := bid.Remaining
		if ask.Remaining < qty {
			qty = ask.Remaining
		}

		if err := l.ApplyFill(bid.Owner, ask.Owner, ob.inst.Symbol, qty, price); err != nil {
			// Escrow guarantees settlement can't fail; anything here is a
			// corrupted book and the pass must stop before a partial trade.
			return trades, orderCopies(touched), err
		}

		// The fill settled, so the orders and the tape reflect it before any
		// further abort point: a later error must not leave quantity that
		// would re-fill on the next pass.
		ob.fill(bid, qty)
		ob.fill(ask, qty)
		touched[bid.OrderID] = bid
		touched[ask.OrderID] = ask

		trade := model.Trade{
			TradeID:    uuid.New().String(),
			Symbol:     ob.inst.Symbol,
			Buyer:      bid.Owner,
			Seller:     ask.Owner,
			Quantity:   qty,
			Price:      price,
			ExecutedAt: time.Now(),
		}
		ob.appendTape(trade)
		ob.inst.Price = price
		trades = append(trades, trade)

		if price.LessThan(bid.Price) {
			diff := bid.Price.Sub(price).Mul(decimal.NewFromInt(qty))
			if err := l.Credit(bid.Owner, diff, "Refund on trade price difference"); err != nil {
				return trades, orderCopies(touched), err
			}
		}
	}
	return trades, orderCopies(touched), nil
}

func orderCopies(touched map[string]*model.Order) []model.Order {
	if len(touched) == 0 {
		return nil
	}
	out := make([]model.Order, 0, len(touched))
	for _, o := range touched {
		out = append(out, *o)
	}
	return out
}

// fill decrements remaining quantity and advances the order status. Status
// transitions are monotonic: once terminal an order never trades again.
func (ob *orderBook) fill(order *model.Order, qty int64) {
	order.Remaining -= qty
	if order.Remaining == 0 {
		order.Status = model.OrderStatusCompleted
		order.CompletedAt = time.Now()
		ob.popFront(order)
	} else {
		order.Status = model.OrderStatusPartiallyFilled
	}
}

// cancel marks an open order cancelled and returns a copy with the remaining
// quantity still to be refunded. Cancelled orders are left in their level
// queue and skipped by bestOpen.
func (ob *orderBook) cancel(orderID, owner string) (model.Order, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order, ok := ob.orders[orderID]
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	if order.Owner != owner {
		return model.Order{}, ErrNotOwner
	}
	if !order.Open() {
		return model.Order{}, ErrNotPending
	}
	order.Status = model.OrderStatusCancelled
	order.CompletedAt = time.Now()
	return *order, nil
}

// issue fills a primary-issuance purchase at the current reference price.
// Settlement happens inside the book lock so supply and funds checks are
// atomic with respect to concurrent matching.
func (ob *orderBook) issue(l *ledger.Ledger, owner string, qty int64) (model.Trade, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if ob.inst.AvailableShares < qty {
		return model.Trade{}, ErrSoldOut
	}
	price := ob.inst.Price
	cost := price.Mul(decimal.NewFromInt(qty))
	if err := l.Debit(owner, cost, "Issuance purchase "+ob.inst.Symbol); err != nil {
		return model.Trade{}, err
	}
	if err := l.ApplyFill(owner, ob.inst.IssuerAccount, ob.inst.Symbol, qty, price); err != nil {
		// The buyer was already debited; hand the cash back so a failed
		// issuance leaves no trace.
		if creditErr := l.Credit(owner, cost, "Refund from failed issuance "+ob.inst.Symbol); creditErr != nil {
			return model.Trade{}, creditErr
		}
		return model.Trade{}, err
	}
	ob.inst.AvailableShares -= qty

	trade := model.Trade{
		TradeID:    uuid.New().String(),
		Symbol:     ob.inst.Symbol,
		Buyer:      owner,
		Seller:     "", // issuer fill
		Quantity:   qty,
		Price:      price,
		ExecutedAt: time.Now(),
	}
	ob.appendTape(trade)
	return trade, nil
}

func (ob *orderBook) appendTape(trade model.Trade) {
	ob.tape = append(ob.tape, trade)
	if len(ob.tape) > tapeCap {
		ob.tape = ob.tape[len(ob.tape)-tapeCap:]
	}
}

// recentTrades returns up to limit trades, newest first.
func (ob *orderBook) recentTrades(limit int) []model.Trade {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	n := len(ob.tape)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Trade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, ob.tape[i])
	}
	return out
}

// best returns the price and open quantity at the top of one side.
func (ob *orderBook) best(side model.OrderSide) (Level, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	order := ob.bestOpen(side)
	if order == nil {
		return Level{}, false
	}
	return Level{Price: order.Price, Quantity: order.Remaining}, true
}

// depth aggregates open quantity per price level, best levels first.
func (ob *orderBook) depth(levels int) Depth {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	return Depth{
		Symbol: ob.inst.Symbol,
		Bids:   aggregate(ob.buyOrders, ob.buyHeap, levels),
		Asks:   aggregate(ob.sellOrders, ob.sellHeap, levels),
	}
}

func aggregate(book map[string]*deque.Deque[*model.Order], priceHeap *PriceHeap, levels int) []Level {
	out := make([]Level, 0, levels)
	for _, price := range priceHeap.sorted() {
		q := book[price.String()]
		var qty int64
		for i := 0; i < q.Len(); i++ {
			if o := q.At(i); o.Open() {
				qty += o.Remaining
			}
		}
		if qty == 0 {
			continue
		}
		out = append(out, Level{Price: price, Quantity: qty})
		if levels > 0 && len(out) == levels {
			break
		}
	}
	return out
}

// sorted returns the heap's prices best-first without mutating it.
func (h *PriceHeap) sorted() []decimal.Decimal {
	out := append([]decimal.Decimal(nil), h.prices...)
	sort.Slice(out, func(i, j int) bool { return h.less(out[i], out[j]) })
	return out
}

func (ob *orderBook) instrument() model.Instrument {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.inst
}

func (ob *orderBook) referencePrice() decimal.Decimal {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.inst.Price
}

func (ob *orderBook) setReferencePrice(price decimal.Decimal) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.inst.Price = price
}

// ordersOf returns copies of one owner's open orders on this book.
func (ob *orderBook) ordersOf(owner string) []model.Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var out []model.Order
	for _, o := range ob.orders {
		if o.Owner == owner && o.Open() {
			out = append(out, *o)
		}
	}
	return out
}
