package repo

import (
	"gorm.io/gorm"
)

type IRepo interface {
	Order() IOrder
	Trade() ITrade
	LedgerEntry() ILedgerEntry
	Holding() IHolding
	Price() IPrice
}

type Repo struct {
	marketDB *gorm.DB
}

func NewRepo(marketDB *gorm.DB) IRepo {
	return &Repo{
		marketDB: marketDB,
	}
}

func (r *Repo) Order() IOrder {
	return NewOrderSQLRepo(r.marketDB)
}

func (r *Repo) Trade() ITrade {
	return NewTradeSQLRepo(r.marketDB)
}

func (r *Repo) LedgerEntry() ILedgerEntry {
	return NewLedgerEntrySQLRepo(r.marketDB)
}

func (r *Repo) Holding() IHolding {
	return NewHoldingSQLRepo(r.marketDB)
}

func (r *Repo) Price() IPrice {
	return NewPriceSQLRepo(r.marketDB)
}
