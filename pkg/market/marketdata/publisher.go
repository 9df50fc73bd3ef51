package marketdata

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/book"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

const keyPrefix = "marketsim:instrument:"

// MarketView is the read-only slice of the engine the publisher needs.
type MarketView interface {
	Instruments() []model.Instrument
	Depth(symbol string, levels int) (book.Depth, error)
	ChangePercent(symbol string, window time.Duration) float64
}

// Publisher pushes per-instrument snapshots into redis so poller consumers
// (dashboards, tickers) read from the cache instead of hitting the engine.
type Publisher struct {
	rdb  *redis.Client
	view MarketView
	log  *zap.SugaredLogger
}

func NewPublisher(rdb *redis.Client, view MarketView) *Publisher {
	return &Publisher{
		rdb:  rdb,
		view: view,
		log:  zap.S(),
	}
}

// Run publishes every instrument on the given interval until ctx is done.
func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PublishAll(ctx); err != nil {
				p.log.Warnw("market data publish failed", "err", err)
			}
		}
	}
}

func (p *Publisher) PublishAll(ctx context.Context) error {
	for _, inst := range p.view.Instruments() {
		if err := p.publish(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, inst model.Instrument) error {
	fields := map[string]any{
		"name":             inst.Name,
		"price":            inst.Price.String(),
		"change_percent":   p.view.ChangePercent(inst.Symbol, 24*time.Hour),
		"available_shares": inst.AvailableShares,
		"total_shares":     inst.TotalShares,
		"updated_at":       time.Now().UnixMilli(),
	}
	if depth, err := p.view.Depth(inst.Symbol, 1); err == nil {
		if len(depth.Bids) > 0 {
			fields["best_bid"] = depth.Bids[0].Price.String()
			fields["bid_qty"] = depth.Bids[0].Quantity
		}
		if len(depth.Asks) > 0 {
			fields["best_ask"] = depth.Asks[0].Price.String()
			fields["ask_qty"] = depth.Asks[0].Quantity
		}
	}
	return p.rdb.HSet(ctx, keyPrefix+inst.Symbol, fields).Err()
}

// Snapshot reads one instrument's cached fields back.
func (p *Publisher) Snapshot(ctx context.Context, symbol string) (map[string]string, error) {
	return p.rdb.HGetAll(ctx, keyPrefix+symbol).Result()
}
