package repo

import (
	"context"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

type IOrder interface {
	Upsert(ctx context.Context, order model.Order) error
}

type ITrade interface {
	Create(ctx context.Context, trade model.Trade) error
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]model.Trade, error)
}

type ILedgerEntry interface {
	Create(ctx context.Context, entry model.LedgerEntry) error
}

type IHolding interface {
	Upsert(ctx context.Context, holding model.Holding) error
}

type IPrice interface {
	Create(ctx context.Context, point model.PricePoint) error
}
