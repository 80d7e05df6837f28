package workflow

import (
	"context"
	"errors"

	"github.com/crosslane/relayd/pkg/ledger"
)

// CreateFillParams are the taker's terms for filling an order.
type CreateFillParams struct {
	OrderID    string
	SwapHash   []byte
	FillAmount string
	TakerPayTo string
}

// CreateFillResult carries the new fill id and the payment requests the
// taker must settle before the fill proceeds.
type CreateFillResult struct {
	FillID                string
	FeePaymentRequest     string
	DepositPaymentRequest string
}

// CreateFill records a pending fill against a placed order and issues its fee
// and deposit invoices.
func (w *Workflows) CreateFill(ctx context.Context, params CreateFillParams) (*CreateFillResult, error) {
	if len(params.SwapHash) == 0 {
		return nil, publicf("fill requires a swapHash")
	}

	rec, err := w.ledger.FindOrder(params.OrderID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, publicf("no order exists with order id %s", params.OrderID)
		}
		return nil, err
	}
	if rec.Status != ledger.OrderPlaced {
		return nil, publicf("order %s is not in a state to be filled", params.OrderID)
	}

	fillAmount, err := amount("fillAmount", params.FillAmount)
	if err != nil {
		return nil, err
	}
	if fillAmount.Sign() <= 0 {
		return nil, publicf("fillAmount must be greater than 0")
	}
	baseAmount, err := amount("baseAmount", rec.BaseAmount)
	if err != nil {
		return nil, err
	}
	if fillAmount.Cmp(baseAmount) > 0 {
		return nil, publicf("fill amount is larger than order baseAmount for order id %s", params.OrderID)
	}

	fill := &ledger.Fill{
		OrderDocID: rec.ID,
		SwapHash:   append([]byte(nil), params.SwapHash...),
		FillAmount: params.FillAmount,
		TakerPayTo: params.TakerPayTo,
	}
	if err := w.ledger.CreateFill(fill); err != nil {
		return nil, err
	}
	w.log.Infow("fill_created", "order_id", params.OrderID, "fill_id", fill.FillID)

	feeInv, depositInv, err := w.issueInvoices(ctx, fill.ID, ledger.ForeignTypeFill, params.FillAmount)
	if err != nil {
		return nil, err
	}
	w.log.Infow("fill_invoices_issued", "fill_id", fill.FillID,
		"fee_invoice", feeInv.ID, "deposit_invoice", depositInv.ID)

	return &CreateFillResult{
		FillID:                fill.FillID,
		FeePaymentRequest:     feeInv.PaymentRequest,
		DepositPaymentRequest: depositInv.PaymentRequest,
	}, nil
}
