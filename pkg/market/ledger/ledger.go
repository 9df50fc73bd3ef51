package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
)

// account bundles the cash balance and holdings guarded by one mutex, per the
// lock discipline: account lock first, instrument lock second on placement;
// fill application takes buyer/seller account locks in owner order.
type account struct {
	mu       sync.Mutex
	owner    string
	balance  decimal.Decimal
	holdings map[string]*model.Holding
	entries  []model.LedgerEntry
}

// Ledger is the single source of truth for cash and share ownership.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*account

	cbMu     sync.Mutex
	journals []func(model.LedgerEntry)
}

func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
	}
}

// RegisterJournal adds a callback invoked with a copy of every audit entry.
// The persistence recorder hangs off this.
func (l *Ledger) RegisterJournal(fn func(model.LedgerEntry)) {
	l.cbMu.Lock()
	defer l.cbMu.Unlock()
	l.journals = append(l.journals, fn)
}

// Open creates an account with an initial cash balance. Opening an existing
// account is a no-op.
func (l *Ledger) Open(owner string, initial decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[owner]; ok {
		return
	}
	acc := &account{
		owner:    owner,
		balance:  decimal.Zero,
		holdings: make(map[string]*model.Holding),
	}
	l.accounts[owner] = acc
	if initial.IsPositive() {
		acc.balance = initial
		l.appendEntry(acc, model.LedgerEntryDeposit, initial, "Initial balance")
	}
}

func (l *Ledger) get(owner string) (*account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[owner]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// Balance returns the available (non-escrowed) cash balance.
func (l *Ledger) Balance(owner string) (decimal.Decimal, error) {
	acc, err := l.get(owner)
	if err != nil {
		return decimal.Zero, err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, nil
}

// Debit removes cash from an account. It fails without side effect when the
// balance does not cover the amount.
func (l *Ledger) Debit(owner string, amount decimal.Decimal, reason string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	acc, err := l.get(owner)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	acc.balance = acc.balance.Sub(amount)
	l.appendEntry(acc, model.LedgerEntryWithdraw, amount, reason)
	return nil
}

// Credit adds cash to an account.
func (l *Ledger) Credit(owner string, amount decimal.Decimal, reason string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	acc, err := l.get(owner)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.balance = acc.balance.Add(amount)
	l.appendEntry(acc, model.LedgerEntryDeposit, amount, reason)
	return nil
}

// EscrowShares reserves qty shares out of the sellable pool. The holding's
// average cost basis is unchanged: invested is reduced proportionally. A
// holding that reaches zero is removed.
func (l *Ledger) EscrowShares(owner, symbol string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	acc, err := l.get(owner)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()

	h, ok := acc.holdings[symbol]
	if !ok || h.Quantity < qty {
		return ErrInsufficientShares
	}

	soldCost := h.TotalInvested.
		Mul(decimal.NewFromInt(qty)).
		Div(decimal.NewFromInt(h.Quantity))
	h.Quantity -= qty
	h.TotalInvested = h.TotalInvested.Sub(soldCost)
	h.UpdatedAt = time.Now()
	if h.Quantity == 0 {
		delete(acc.holdings, symbol)
	}
	return nil
}

// ReleaseShares returns escrowed shares to the owner, e.g. on cancellation of
// a sell order. When the holding still exists its own average cost is kept;
// when it was fully liquidated the supplied fallback cost basis recreates it.
func (l *Ledger) ReleaseShares(owner, symbol string, qty int64, costBasis decimal.Decimal) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	acc, err := l.get(owner)
	if err != nil {
		return err
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()

	basis := costBasis
	if h, ok := acc.holdings[symbol]; ok {
		basis = h.AvgCost
	}
	addHolding(acc, symbol, qty, basis)
	return nil
}

// ApplyFill settles one execution: the buyer's holding grows at the trade
// price (weighted average cost basis) and the seller account is credited the
// proceeds. Buy-side cash was already escrowed at placement, so no buyer
// debit happens here. Both account locks are taken in owner order.
func (l *Ledger) ApplyFill(buyer, seller, symbol string, qty int64, price decimal.Decimal) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !price.IsPositive() {
		return ErrInvalidAmount
	}
	buyAcc, err := l.get(buyer)
	if err != nil {
		return err
	}
	sellAcc, err := l.get(seller)
	if err != nil {
		return err
	}

	first, second := buyAcc, sellAcc
	if second.owner < first.owner {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if first != second {
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	addHolding(buyAcc, symbol, qty, price)

	proceeds := price.Mul(decimal.NewFromInt(qty))
	sellAcc.balance = sellAcc.balance.Add(proceeds)
	l.appendEntry(sellAcc, model.LedgerEntryDeposit, proceeds, "Trade proceeds "+symbol)
	return nil
}

// addHolding folds qty shares at the given price into the account's position,
// recomputing the weighted average cost. Caller holds the account lock.
func addHolding(acc *account, symbol string, qty int64, price decimal.Decimal) {
	cost := price.Mul(decimal.NewFromInt(qty))
	h, ok := acc.holdings[symbol]
	if !ok {
		acc.holdings[symbol] = &model.Holding{
			Owner:         acc.owner,
			Symbol:        symbol,
			Quantity:      qty,
			AvgCost:       price,
			TotalInvested: cost,
			UpdatedAt:     time.Now(),
		}
		return
	}
	h.Quantity += qty
	h.TotalInvested = h.TotalInvested.Add(cost)
	h.AvgCost = h.TotalInvested.Div(decimal.NewFromInt(h.Quantity))
	h.UpdatedAt = time.Now()
}

// Holding returns a copy of one position.
func (l *Ledger) Holding(owner, symbol string) (model.Holding, bool) {
	acc, err := l.get(owner)
	if err != nil {
		return model.Holding{}, false
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	h, ok := acc.holdings[symbol]
	if !ok {
		return model.Holding{}, false
	}
	return *h, true
}

// Holdings returns copies of every open position of one owner.
func (l *Ledger) Holdings(owner string) []model.Holding {
	acc, err := l.get(owner)
	if err != nil {
		return nil
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	out := make([]model.Holding, 0, len(acc.holdings))
	for _, h := range acc.holdings {
		out = append(out, *h)
	}
	return out
}

// Entries returns the most recent audit entries for one owner, newest last.
func (l *Ledger) Entries(owner string, limit int) []model.LedgerEntry {
	acc, err := l.get(owner)
	if err != nil {
		return nil
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	n := len(acc.entries)
	if limit > 0 && n > limit {
		return append([]model.LedgerEntry(nil), acc.entries[n-limit:]...)
	}
	return append([]model.LedgerEntry(nil), acc.entries...)
}

// Owners lists every account id, for conservation checks and projections.
func (l *Ledger) Owners() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.accounts))
	for owner := range l.accounts {
		out = append(out, owner)
	}
	return out
}

// appendEntry records the audit entry. Caller holds the account lock.
func (l *Ledger) appendEntry(acc *account, typ model.LedgerEntryType, amount decimal.Decimal, reason string) {
	entry := model.LedgerEntry{
		EntryID:   uuid.New().String(),
		Owner:     acc.owner,
		Type:      typ,
		Amount:    amount,
		Balance:   acc.balance,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	acc.entries = append(acc.entries, entry)

	l.cbMu.Lock()
	journals := l.journals
	l.cbMu.Unlock()
	for _, fn := range journals {
		fn(entry)
	}
}
