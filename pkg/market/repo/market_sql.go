package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

type OrderSQLRepo struct {
	db *gorm.DB
}

func NewOrderSQLRepo(db *gorm.DB) *OrderSQLRepo {
	return &OrderSQLRepo{
		db: db,
	}
}

func (s *OrderSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Upsert writes the order's latest state; repeated fills of one order update
// the same row.
func (s *OrderSQLRepo) Upsert(ctx context.Context, order model.Order) error {
	return s.dbWithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			UpdateAll: true,
		}).
		Create(toOrderRow(order)).Error
}

type TradeSQLRepo struct {
	db *gorm.DB
}

func NewTradeSQLRepo(db *gorm.DB) *TradeSQLRepo {
	return &TradeSQLRepo{
		db: db,
	}
}

func (s *TradeSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *TradeSQLRepo) Create(ctx context.Context, trade model.Trade) error {
	return s.dbWithContext(ctx).Create(toTradeRow(trade)).Error
}

func (s *TradeSQLRepo) ListBySymbol(ctx context.Context, symbol string, limit int) ([]model.Trade, error) {
	var rows []TradeRow
	err := s.dbWithContext(ctx).
		Where("symbol = ?", symbol).
		Order("executed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.Trade, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

type LedgerEntrySQLRepo struct {
	db *gorm.DB
}

func NewLedgerEntrySQLRepo(db *gorm.DB) *LedgerEntrySQLRepo {
	return &LedgerEntrySQLRepo{
		db: db,
	}
}

func (s *LedgerEntrySQLRepo) Create(ctx context.Context, entry model.LedgerEntry) error {
	return s.db.WithContext(ctx).Create(toLedgerEntryRow(entry)).Error
}

type HoldingSQLRepo struct {
	db *gorm.DB
}

func NewHoldingSQLRepo(db *gorm.DB) *HoldingSQLRepo {
	return &HoldingSQLRepo{
		db: db,
	}
}

func (s *HoldingSQLRepo) Upsert(ctx context.Context, holding model.Holding) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "symbol"}},
			UpdateAll: true,
		}).
		Create(toHoldingRow(holding)).Error
}

type PriceSQLRepo struct {
	db *gorm.DB
}

func NewPriceSQLRepo(db *gorm.DB) *PriceSQLRepo {
	return &PriceSQLRepo{
		db: db,
	}
}

func (s *PriceSQLRepo) Create(ctx context.Context, point model.PricePoint) error {
	return s.db.WithContext(ctx).Create(toPricePointRow(point)).Error
}
