// Package payments is the boundary to the off-band payment engine that
// executes the settlement legs (a Lightning-style daemon). The relayer core
// never calls it; the workflow tier does.
package payments

import "context"

// Invoice is the settlement state of a payment request.
type Invoice struct {
	Settled bool  `json:"settled"`
	Value   int64 `json:"value"`
}

// PaymentRequestDetails are the decoded terms of a payment request.
type PaymentRequestDetails struct {
	NumSatoshis int64 `json:"numSatoshis"`
}

// Engine issues and settles invoices.
type Engine interface {
	// AddInvoice creates an invoice and returns its payment request.
	AddInvoice(ctx context.Context, memo string, value int64, expirySeconds int64) (string, error)
	// GetInvoice reports the settlement status of an invoice we issued.
	GetInvoice(ctx context.Context, paymentRequest string) (*Invoice, error)
	// PayInvoice pays an invoice and returns the settlement preimage.
	PayInvoice(ctx context.Context, paymentRequest string) ([]byte, error)
	// GetPaymentRequestDetails decodes a payment request without paying it.
	GetPaymentRequestDetails(ctx context.Context, paymentRequest string) (*PaymentRequestDetails, error)
}
