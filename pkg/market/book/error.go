package book

import "errors"

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotOwner          = errors.New("order not owned by caller")
	ErrNotPending        = errors.New("order is not cancellable")
	ErrInvalidQuantity   = errors.New("invalid order quantity")
	ErrInvalidPrice      = errors.New("invalid order price")
	ErrSoldOut           = errors.New("not enough issuer shares available")
)
