package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one execution. Seller is empty for
// primary-issuance fills paid to the issuer.
type Trade struct {
	TradeID    string
	Symbol     string
	Buyer      string
	Seller     string
	Quantity   int64
	Price      decimal.Decimal
	ExecutedAt time.Time
}

func (t *Trade) Issuance() bool {
	return t.Seller == ""
}

func (t *Trade) TotalAmount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}
