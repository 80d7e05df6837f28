package order

import (
	"fmt"
	"math/big"
)

// Side is the direction of an order relative to the base symbol.
type Side string

const (
	Ask Side = "ASK"
	Bid Side = "BID"
)

// Status tracks the order lifecycle. Transitions are one-directional:
// PLACED -> CANCELLED, or PLACED -> FILLING -> FILLED.
type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusFilling   Status = "FILLING"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
)

// Order is the canonical trade record held by the relayer. The store owns
// persisted state; copies loaded by handlers are snapshots for a single call.
type Order struct {
	OrderID       string
	Side          Side
	BaseSymbol    string
	CounterSymbol string
	BaseAmount    *big.Int
	CounterAmount *big.Int
	PayTo         string
	Status        Status

	// Set once when a fill is accepted.
	FillAmount *big.Int
	SwapHash   []byte

	// Set once at completion; must open SwapHash.
	SwapPreimage []byte
}

// MarketKey identifies the tradable instrument, e.g. "BTCUSD".
func (o *Order) MarketKey() string {
	return o.BaseSymbol + o.CounterSymbol
}

// ValidationError reports a malformed order or request parameter. It is
// always safe to surface to the counterparty verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func Invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the creation-time invariants: a known side and strictly
// positive integer amounts.
func (o *Order) Validate() error {
	if o.Side != Ask && o.Side != Bid {
		return Invalidf("side must be either ASK or BID")
	}
	if o.BaseSymbol == "" || o.CounterSymbol == "" {
		return Invalidf("baseSymbol and counterSymbol are required")
	}
	if o.BaseAmount == nil || o.BaseAmount.Sign() <= 0 {
		return Invalidf("baseAmount must be an integer greater than 0")
	}
	if o.CounterAmount == nil || o.CounterAmount.Sign() <= 0 {
		return Invalidf("counterAmount must be an integer greater than 0")
	}
	return nil
}
