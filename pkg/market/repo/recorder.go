package repo

import (
	"context"

	"go.uber.org/zap"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

// Recorder persists engine events write-behind: callbacks push onto a
// buffered channel and a single goroutine drains it into the repo, so
// persistence never blocks a match pass or an order placement. When the
// buffer is full events are dropped with a warning; the engine's in-memory
// state stays authoritative.
type Recorder struct {
	repo IRepo
	log  *zap.SugaredLogger
	ch   chan any
	done chan struct{}
}

// holdingRefresh asks the recorder to re-snapshot one position.
type holdingRefresh struct {
	owner  string
	symbol string
}

func NewRecorder(repo IRepo) *Recorder {
	return &Recorder{
		repo: repo,
		log:  zap.S(),
		ch:   make(chan any, 1024),
		done: make(chan struct{}),
	}
}

// Attach subscribes the recorder to an engine's order, trade, ledger and
// price-history events. Call before Engine.Start.
func (r *Recorder) Attach(e *market.Engine) {
	books := e.Books()
	l := e.Ledger()

	books.RegisterOrderCallback(func(order model.Order) {
		r.push(order)
	})
	books.RegisterTradeCallback(func(trades []model.Trade) {
		for _, t := range trades {
			r.push(t)
			r.push(holdingRefresh{owner: t.Buyer, symbol: t.Symbol})
			if t.Seller != "" {
				r.push(holdingRefresh{owner: t.Seller, symbol: t.Symbol})
			}
		}
	})
	l.RegisterJournal(func(entry model.LedgerEntry) {
		r.push(entry)
	})
	e.Pricer().RegisterObserver(func(point model.PricePoint) {
		r.push(point)
	})

	go r.run(l)
}

func (r *Recorder) push(ev any) {
	select {
	case r.ch <- ev:
	default:
		r.log.Warnw("recorder buffer full, event dropped")
	}
}

// Stop drains nothing further; queued events already in the channel are lost.
func (r *Recorder) Stop() {
	close(r.done)
}

func (r *Recorder) run(l ledgerReader) {
	ctx := context.Background()
	for {
		select {
		case <-r.done:
			return
		case ev := <-r.ch:
			if err := r.persist(ctx, l, ev); err != nil {
				r.log.Warnw("persist event failed", "err", err)
			}
		}
	}
}

type ledgerReader interface {
	Holding(owner, symbol string) (model.Holding, bool)
}

func (r *Recorder) persist(ctx context.Context, l ledgerReader, ev any) error {
	switch v := ev.(type) {
	case model.Order:
		return r.repo.Order().Upsert(ctx, v)
	case model.Trade:
		return r.repo.Trade().Create(ctx, v)
	case model.LedgerEntry:
		return r.repo.LedgerEntry().Create(ctx, v)
	case model.PricePoint:
		return r.repo.Price().Create(ctx, v)
	case holdingRefresh:
		h, ok := l.Holding(v.owner, v.symbol)
		if !ok {
			// Fully liquidated: persist the zeroed position.
			h = model.Holding{Owner: v.owner, Symbol: v.symbol}
		}
		return r.repo.Holding().Upsert(ctx, h)
	default:
		return nil
	}
}
