package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is one tradeable listing. Price is the current reference price,
// updated by trades and by the pricing engine tick.
type Instrument struct {
	Symbol          string
	Name            string
	Price           decimal.Decimal
	TotalShares     int64
	AvailableShares int64
	IssuerAccount   string
	ListedAt        time.Time
}

func (i *Instrument) MarketCap() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.TotalShares))
}
