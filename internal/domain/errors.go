package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrCodeTaken         = errors.New("order code already taken")
	ErrItemNotFound      = errors.New("item not found")
	ErrBuyerNotFound     = errors.New("buyer not found")
	ErrOrderTerminal     = errors.New("order is in a terminal state")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrNeverReserved     = errors.New("order was never reserved")
	ErrPoolExhausted     = errors.New("no unused pool address available")
	ErrAddressNotFound   = errors.New("pool address not found")
	ErrAddressUsed       = errors.New("pool address already used")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// InsufficientStockError is a business rejection naming the offending
// item and the shortfall so the caller can build a user-facing message.
type InsufficientStockError struct {
	ItemName  string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d",
		e.ItemName, e.Available, e.Requested)
}

// IntegrityError marks a data-integrity fault: the deduction would
// drive on-hand stock negative, meaning the reservation bookkeeping was
// already violated upstream. It requires operator attention, not a
// retry.
type IntegrityError struct {
	ItemName string
	Stock    int
	Deducted int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("stock would go negative for %q: stock %d, deducting %d",
		e.ItemName, e.Stock, e.Deducted)
}

// IsIntegrity reports whether err is a data-integrity fault.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
