package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "Pending"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusCompleted       OrderStatus = "Completed"
	OrderStatusCancelled       OrderStatus = "Cancelled"
)

type Order struct {
	OrderID  string
	Symbol   string
	Owner    string
	Side     OrderSide
	Price    decimal.Decimal
	Quantity int64
	// Remaining is decremented by the matcher only; escrow refunds on
	// cancellation are computed from it.
	Remaining int64
	Status    OrderStatus
	// AcceptedAt is assigned under the book lock when the order enters the
	// book, not when the caller submits it. It is the tiebreaker for
	// price-time priority.
	AcceptedAt  time.Time
	CompletedAt time.Time
}

// Open reports whether the order can still trade or be cancelled.
func (o *Order) Open() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusPartiallyFilled
}

// Notional is the full escrow amount for a buy order at its limit price.
func (o *Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// RemainingNotional is the escrow still held for the unfilled part.
func (o *Order) RemainingNotional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Remaining))
}
