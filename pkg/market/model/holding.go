package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is one owner's position in one instrument. AvgCost is the weighted
// mean cost of the open quantity; TotalInvested tracks the cost of the lots
// still held so AvgCost survives partial sells.
type Holding struct {
	Owner         string
	Symbol        string
	Quantity      int64
	AvgCost       decimal.Decimal
	TotalInvested decimal.Decimal
	UpdatedAt     time.Time
}

type LedgerEntryType string

const (
	LedgerEntryDeposit  LedgerEntryType = "DEPOSIT"
	LedgerEntryWithdraw LedgerEntryType = "WITHDRAW"
)

// LedgerEntry is the audit record paired with every cash mutation.
type LedgerEntry struct {
	EntryID   string
	Owner     string
	Type      LedgerEntryType
	Amount    decimal.Decimal
	Balance   decimal.Decimal
	Reason    string
	CreatedAt time.Time
}

// PricePoint is one tick of reference-price history, the series chart
// consumers poll.
type PricePoint struct {
	Symbol     string
	Price      decimal.Decimal
	RecordedAt time.Time
}
