package order

import (
	"encoding/json"
	"math/big"
)

// Wire is the external representation of an order. Amounts travel as base-10
// integer strings so arbitrary precision survives JSON; swapHash/swapPreimage
// are base64 blobs (encoding/json's []byte encoding). The persisted form in
// the store is this same shape serialized to JSON.
type Wire struct {
	OrderID       string `json:"orderId,omitempty"`
	Side          string `json:"side"`
	BaseSymbol    string `json:"baseSymbol"`
	CounterSymbol string `json:"counterSymbol"`
	BaseAmount    string `json:"baseAmount"`
	CounterAmount string `json:"counterAmount"`
	PayTo         string `json:"payTo,omitempty"`
	Status        string `json:"status,omitempty"`
	FillAmount    string `json:"fillAmount,omitempty"`
	SwapHash      []byte `json:"swapHash,omitempty"`
	SwapPreimage  []byte `json:"swapPreimage,omitempty"`
}

// Summary is the trimmed order shape exposed on snapshot and subscription
// feeds: no pay-to destination, no swap material.
type Summary struct {
	BaseSymbol    string `json:"baseSymbol"`
	CounterSymbol string `json:"counterSymbol"`
	BaseAmount    string `json:"baseAmount"`
	CounterAmount string `json:"counterAmount"`
	Side          string `json:"side"`
}

func parseAmount(field, s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, Invalidf("%s must be a base-10 integer, got %q", field, s)
	}
	return n, nil
}

// FromWire converts the wire form into a domain Order. Amount strings must be
// well-formed integers; semantic checks (positivity, side) are Validate's job.
func FromWire(w *Wire) (*Order, error) {
	o := &Order{
		OrderID:       w.OrderID,
		Side:          Side(w.Side),
		BaseSymbol:    w.BaseSymbol,
		CounterSymbol: w.CounterSymbol,
		PayTo:         w.PayTo,
		Status:        Status(w.Status),
	}

	var err error
	if o.BaseAmount, err = parseAmount("baseAmount", w.BaseAmount); err != nil {
		return nil, err
	}
	if o.CounterAmount, err = parseAmount("counterAmount", w.CounterAmount); err != nil {
		return nil, err
	}
	if w.FillAmount != "" {
		if o.FillAmount, err = parseAmount("fillAmount", w.FillAmount); err != nil {
			return nil, err
		}
	}
	if len(w.SwapHash) > 0 {
		o.SwapHash = append([]byte(nil), w.SwapHash...)
	}
	if len(w.SwapPreimage) > 0 {
		o.SwapPreimage = append([]byte(nil), w.SwapPreimage...)
	}
	return o, nil
}

// ToWire converts a domain Order to its wire form.
func ToWire(o *Order) *Wire {
	w := &Wire{
		OrderID:       o.OrderID,
		Side:          string(o.Side),
		BaseSymbol:    o.BaseSymbol,
		CounterSymbol: o.CounterSymbol,
		BaseAmount:    o.BaseAmount.Text(10),
		CounterAmount: o.CounterAmount.Text(10),
		PayTo:         o.PayTo,
		Status:        string(o.Status),
	}
	if o.FillAmount != nil {
		w.FillAmount = o.FillAmount.Text(10)
	}
	if len(o.SwapHash) > 0 {
		w.SwapHash = append([]byte(nil), o.SwapHash...)
	}
	if len(o.SwapPreimage) > 0 {
		w.SwapPreimage = append([]byte(nil), o.SwapPreimage...)
	}
	return w
}

// ToSummary trims an order down to the fields published to market feeds.
func ToSummary(o *Order) *Summary {
	return &Summary{
		BaseSymbol:    o.BaseSymbol,
		CounterSymbol: o.CounterSymbol,
		BaseAmount:    o.BaseAmount.Text(10),
		CounterAmount: o.CounterAmount.Text(10),
		Side:          string(o.Side),
	}
}

// ToDB serializes an order for persistence.
func ToDB(o *Order) ([]byte, error) {
	return json.Marshal(ToWire(o))
}

// FromDB deserializes a persisted order.
func FromDB(data []byte) (*Order, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return FromWire(&w)
}
