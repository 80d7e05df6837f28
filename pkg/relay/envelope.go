package relay

import (
	"github.com/crosslane/relayd/pkg/order"
)

// Verb names an operation carried inside an envelope. A message holds at most
// one "<verb>Request" and/or "<verb>Response" field; correlation of
// relayer-issued requests is done by order id plus the response field present,
// there is no numeric request id on the wire.
type Verb string

const (
	VerbPlaceOrder    Verb = "placeOrder"
	VerbCancelOrder   Verb = "cancelOrder"
	VerbCompleteOrder Verb = "completeOrder"
	VerbFillOrder     Verb = "fillOrder"
	VerbExecuteOrder  Verb = "executeOrder"
)

// Envelope is a single message on a duplex channel. Every envelope carries
// the order id it concerns; orderStatus and error ride along on responses.
type Envelope struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus,omitempty"`
	Error       string `json:"error,omitempty"`

	PlaceOrderRequest     *PlaceOrderRequest     `json:"placeOrderRequest,omitempty"`
	PlaceOrderResponse    *PlaceOrderResponse    `json:"placeOrderResponse,omitempty"`
	CancelOrderRequest    *CancelOrderRequest    `json:"cancelOrderRequest,omitempty"`
	CancelOrderResponse   *CancelOrderResponse   `json:"cancelOrderResponse,omitempty"`
	CompleteOrderRequest  *CompleteOrderRequest  `json:"completeOrderRequest,omitempty"`
	CompleteOrderResponse *CompleteOrderResponse `json:"completeOrderResponse,omitempty"`
	FillOrderRequest      *FillOrderRequest      `json:"fillOrderRequest,omitempty"`
	FillOrderResponse     *FillOrderResponse     `json:"fillOrderResponse,omitempty"`
	ExecuteOrderRequest   *ExecuteOrderRequest   `json:"executeOrderRequest,omitempty"`
	ExecuteOrderResponse  *ExecuteOrderResponse  `json:"executeOrderResponse,omitempty"`
}

type PlaceOrderRequest struct {
	Order *order.Wire `json:"order"`
}

type PlaceOrderResponse struct{}

type CancelOrderRequest struct{}

type CancelOrderResponse struct{}

// Fill is the taker's fill proposal: the swap commitment and how much of the
// base amount to take.
type Fill struct {
	SwapHash   []byte `json:"swapHash"`
	FillAmount string `json:"fillAmount"`
	TakerPayTo string `json:"takerPayTo,omitempty"`
}

type FillOrderRequest struct {
	Fill *Fill `json:"fill"`
}

type FillOrderResponse struct {
	PayTo string `json:"payTo"`
}

type CompleteOrderRequest struct {
	SwapPreimage []byte `json:"swapPreimage"`
}

type CompleteOrderResponse struct{}

type ExecuteOrderRequest struct {
	Fill *Fill `json:"fill"`
}

type ExecuteOrderResponse struct{}

// HasResponse reports whether the envelope carries the response field for the
// given verb. Used by the correlator to match replies.
func (e *Envelope) HasResponse(v Verb) bool {
	switch v {
	case VerbPlaceOrder:
		return e.PlaceOrderResponse != nil
	case VerbCancelOrder:
		return e.CancelOrderResponse != nil
	case VerbCompleteOrder:
		return e.CompleteOrderResponse != nil
	case VerbFillOrder:
		return e.FillOrderResponse != nil
	case VerbExecuteOrder:
		return e.ExecuteOrderResponse != nil
	}
	return false
}

// HasAnyResponse reports whether any response field is present.
func (e *Envelope) HasAnyResponse() bool {
	return e.PlaceOrderResponse != nil ||
		e.CancelOrderResponse != nil ||
		e.CompleteOrderResponse != nil ||
		e.FillOrderResponse != nil ||
		e.ExecuteOrderResponse != nil
}

// HasAnyRequest reports whether any request field is present.
func (e *Envelope) HasAnyRequest() bool {
	return e.PlaceOrderRequest != nil ||
		e.CancelOrderRequest != nil ||
		e.CompleteOrderRequest != nil ||
		e.FillOrderRequest != nil ||
		e.ExecuteOrderRequest != nil
}
