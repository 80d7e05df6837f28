package relay

import (
	"errors"
	"fmt"

	"github.com/crosslane/relayd/pkg/order"
)

// Errors surfaced verbatim to counterparties. Anything outside this set (and
// order.ValidationError / NoOrderError) is logged with detail and reported as
// an opaque internal failure.
var (
	ErrAlreadyExists   = errors.New("order with that ID already exists")
	ErrInvalidState    = errors.New("order not in a valid state for this operation")
	ErrNoCounterparty  = errors.New("no counterparty connected for this order")
	ErrInvalidPreimage = errors.New("swap preimage does not match swap hash")

	// Correlator failures. Surfaced to the waiting caller, not the remote side.
	ErrRequestPending = errors.New("a request is already outstanding for this order on this channel")
	ErrChannelClosed  = errors.New("channel closed while awaiting response")
	ErrAwaitTimeout   = errors.New("timed out waiting for counterparty response")
)

// NoOrderError reports a lookup miss with the offending id.
type NoOrderError struct {
	OrderID string
}

func (e *NoOrderError) Error() string {
	return fmt.Sprintf("no order with id %s", e.OrderID)
}

// PublicMessage maps an error to the message written back on the wire.
// Domain errors pass through verbatim; everything else is opaque.
func PublicMessage(err error) string {
	var ve *order.ValidationError
	var ne *NoOrderError
	switch {
	case errors.As(err, &ve),
		errors.As(err, &ne),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNoCounterparty),
		errors.Is(err, ErrInvalidPreimage),
		errors.Is(err, ErrAwaitTimeout),
		errors.Is(err, ErrChannelClosed):
		return err.Error()
	default:
		return "internal error"
	}
}
