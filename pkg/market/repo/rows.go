package repo

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

// Row types carry the storage schema; the engine's model types stay free of
// persistence concerns.

type OrderRow struct {
	OrderID     string `gorm:"primaryKey"`
	Symbol      string
	Owner       string
	Side        string
	Price       decimal.Decimal `gorm:"type:numeric(20,4)"`
	Quantity    int64
	Remaining   int64
	Status      string
	AcceptedAt  time.Time
	CompletedAt *time.Time
}

func (OrderRow) TableName() string { return "orders" }

func toOrderRow(o model.Order) *OrderRow {
	row := &OrderRow{
		OrderID:    o.OrderID,
		Symbol:     o.Symbol,
		Owner:      o.Owner,
		Side:       string(o.Side),
		Price:      o.Price,
		Quantity:   o.Quantity,
		Remaining:  o.Remaining,
		Status:     string(o.Status),
		AcceptedAt: o.AcceptedAt,
	}
	if !o.CompletedAt.IsZero() {
		t := o.CompletedAt
		row.CompletedAt = &t
	}
	return row
}

type TradeRow struct {
	TradeID    string `gorm:"primaryKey"`
	Symbol     string
	Buyer      string
	Seller     string
	Quantity   int64
	Price      decimal.Decimal `gorm:"type:numeric(20,4)"`
	ExecutedAt time.Time
}

func (TradeRow) TableName() string { return "trades" }

func toTradeRow(t model.Trade) *TradeRow {
	return &TradeRow{
		TradeID:    t.TradeID,
		Symbol:     t.Symbol,
		Buyer:      t.Buyer,
		Seller:     t.Seller,
		Quantity:   t.Quantity,
		Price:      t.Price,
		ExecutedAt: t.ExecutedAt,
	}
}

func (r *TradeRow) toModel() model.Trade {
	return model.Trade{
		TradeID:    r.TradeID,
		Symbol:     r.Symbol,
		Buyer:      r.Buyer,
		Seller:     r.Seller,
		Quantity:   r.Quantity,
		Price:      r.Price,
		ExecutedAt: r.ExecutedAt,
	}
}

type LedgerEntryRow struct {
	EntryID   string `gorm:"primaryKey"`
	Owner     string
	Type      string
	Amount    decimal.Decimal `gorm:"type:numeric(20,4)"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,4)"`
	Reason    string
	CreatedAt time.Time
}

func (LedgerEntryRow) TableName() string { return "ledger_entries" }

func toLedgerEntryRow(e model.LedgerEntry) *LedgerEntryRow {
	return &LedgerEntryRow{
		EntryID:   e.EntryID,
		Owner:     e.Owner,
		Type:      string(e.Type),
		Amount:    e.Amount,
		Balance:   e.Balance,
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt,
	}
}

type HoldingRow struct {
	Owner         string `gorm:"primaryKey"`
	Symbol        string `gorm:"primaryKey"`
	Quantity      int64
	AvgCost       decimal.Decimal `gorm:"type:numeric(20,4)"`
	TotalInvested decimal.Decimal `gorm:"type:numeric(20,4)"`
	UpdatedAt     time.Time
}

func (HoldingRow) TableName() string { return "holdings" }

func toHoldingRow(h model.Holding) *HoldingRow {
	return &HoldingRow{
		Owner:         h.Owner,
		Symbol:        h.Symbol,
		Quantity:      h.Quantity,
		AvgCost:       h.AvgCost,
		TotalInvested: h.TotalInvested,
		UpdatedAt:     h.UpdatedAt,
	}
}

type PricePointRow struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	Symbol     string
	Price      decimal.Decimal `gorm:"type:numeric(20,4)"`
	RecordedAt time.Time
}

func (PricePointRow) TableName() string { return "price_history" }

func toPricePointRow(p model.PricePoint) *PricePointRow {
	return &PricePointRow{
		Symbol:     p.Symbol,
		Price:      p.Price,
		RecordedAt: p.RecordedAt,
	}
}
