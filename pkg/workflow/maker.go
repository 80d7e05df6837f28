package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/crosslane/relayd/pkg/ledger"
	"github.com/crosslane/relayd/pkg/order"
)

// CreateOrderParams are the maker's terms for a new order.
type CreateOrderParams struct {
	OwnerID       string
	PayTo         string
	BaseSymbol    string
	CounterSymbol string
	BaseAmount    string
	CounterAmount string
	Side          string
}

// CreateOrderResult carries the new order id and the fee/deposit payment
// requests the maker must settle before the order can be placed.
type CreateOrderResult struct {
	OrderID               string
	FeePaymentRequest     string
	DepositPaymentRequest string
}

// CreateOrder records a new order in the ledger and issues its fee and
// deposit invoices through the payment engine.
func (w *Workflows) CreateOrder(ctx context.Context, params CreateOrderParams) (*CreateOrderResult, error) {
	o := &order.Order{
		Side:          order.Side(params.Side),
		BaseSymbol:    params.BaseSymbol,
		CounterSymbol: params.CounterSymbol,
		PayTo:         params.PayTo,
	}
	var err error
	if o.BaseAmount, err = amount("baseAmount", params.BaseAmount); err != nil {
		return nil, err
	}
	if o.CounterAmount, err = amount("counterAmount", params.CounterAmount); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	rec := &ledger.Order{
		OrderID:       uuid.NewString(),
		OwnerID:       params.OwnerID,
		BaseSymbol:    params.BaseSymbol,
		CounterSymbol: params.CounterSymbol,
		BaseAmount:    params.BaseAmount,
		CounterAmount: params.CounterAmount,
		Side:          params.Side,
		PayTo:         params.PayTo,
		Status:        ledger.OrderCreated,
	}
	if err := w.ledger.CreateOrder(rec); err != nil {
		return nil, err
	}
	w.log.Infow("order_created", "owner_id", params.OwnerID, "order_id", rec.OrderID)

	feeInv, depositInv, err := w.issueInvoices(ctx, rec.ID, ledger.ForeignTypeOrder, params.BaseAmount)
	if err != nil {
		return nil, err
	}
	w.log.Infow("order_invoices_issued", "order_id", rec.OrderID,
		"fee_invoice", feeInv.ID, "deposit_invoice", depositInv.ID)

	return &CreateOrderResult{
		OrderID:               rec.OrderID,
		FeePaymentRequest:     feeInv.PaymentRequest,
		DepositPaymentRequest: depositInv.PaymentRequest,
	}, nil
}

// PlaceOrder verifies the maker has settled both invoices and that the
// offered refund invoices carry matching values, stores the refunds, and
// marks the order placed. The caller then performs the relayer placeOrder
// exchange on its maker channel.
func (w *Workflows) PlaceOrder(ctx context.Context, orderID, feeRefundPaymentRequest, depositRefundPaymentRequest string) error {
	rec, err := w.ledger.FindOrder(orderID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return publicf("could not find order with orderId: %s", orderID)
		}
		return err
	}
	if rec.Status != ledger.OrderCreated {
		return publicf("order %s is not in a state to be placed", orderID)
	}

	feeInv, err := w.ledger.FindInvoice(rec.ID, ledger.ForeignTypeOrder, ledger.InvoiceIncoming, ledger.PurposeFee)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	depositInv, err2 := w.ledger.FindInvoice(rec.ID, ledger.ForeignTypeOrder, ledger.InvoiceIncoming, ledger.PurposeDeposit)
	if err2 != nil && !errors.Is(err2, ledger.ErrNotFound) {
		return err2
	}
	// Nothing the user can do if the invoices are gone; they must retry with
	// a fresh order.
	if feeInv == nil || depositInv == nil {
		w.log.Errorw("order_invoices_missing", "order_id", orderID)
		return publicf("could not place order, please create another order and try again, order id: %s", orderID)
	}

	feeStatus, err := w.engine.GetInvoice(ctx, feeInv.PaymentRequest)
	if err != nil {
		return fmt.Errorf("fee invoice status: %w", err)
	}
	if !feeStatus.Settled {
		return publicf("fee invoice has not been paid, order id: %s", orderID)
	}

	depositStatus, err := w.engine.GetInvoice(ctx, depositInv.PaymentRequest)
	if err != nil {
		return fmt.Errorf("deposit invoice status: %w", err)
	}
	if !depositStatus.Settled {
		return publicf("deposit invoice has not been paid, order id: %s", orderID)
	}

	feeRefund, err := w.engine.GetPaymentRequestDetails(ctx, feeRefundPaymentRequest)
	if err != nil {
		return fmt.Errorf("fee refund details: %w", err)
	}
	if feeRefund.NumSatoshis != feeStatus.Value {
		return publicf("fee refund value does not match fee invoice value, order id: %s", orderID)
	}

	depositRefund, err := w.engine.GetPaymentRequestDetails(ctx, depositRefundPaymentRequest)
	if err != nil {
		return fmt.Errorf("deposit refund details: %w", err)
	}
	if depositRefund.NumSatoshis != depositStatus.Value {
		return publicf("deposit refund value does not match deposit invoice value, order id: %s", orderID)
	}

	for purpose, pr := range map[string]string{
		ledger.PurposeFee:     feeRefundPaymentRequest,
		ledger.PurposeDeposit: depositRefundPaymentRequest,
	} {
		if err := w.ledger.CreateInvoice(&ledger.Invoice{
			ForeignID:      rec.ID,
			ForeignType:    ledger.ForeignTypeOrder,
			PaymentRequest: pr,
			Type:           ledger.InvoiceRefund,
			Purpose:        purpose,
		}); err != nil {
			return err
		}
	}
	w.log.Infow("refund_invoices_stored", "order_id", orderID)

	if err := w.ledger.UpdateOrderStatus(rec.ID, ledger.OrderPlaced); err != nil {
		return err
	}
	w.log.Infow("order_placed", "order_id", orderID)
	return nil
}

// CancelOrder marks the order cancelled and pays out any stored refund
// invoices that have not been paid yet.
func (w *Workflows) CancelOrder(ctx context.Context, orderID string) error {
	rec, err := w.ledger.FindOrder(orderID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return publicf("could not find order with orderId: %s", orderID)
		}
		return err
	}

	if err := w.ledger.UpdateOrderStatus(rec.ID, ledger.OrderCancelled); err != nil {
		return err
	}
	w.log.Infow("order_cancelled", "order_id", orderID)

	for _, purpose := range []string{ledger.PurposeFee, ledger.PurposeDeposit} {
		inv, err := w.ledger.FindInvoice(rec.ID, ledger.ForeignTypeOrder, ledger.InvoiceRefund, purpose)
		if errors.Is(err, ledger.ErrNotFound) {
			// No refund invoice stored yet; nothing to pay out.
			w.log.Infow("refund_invoice_missing", "order_id", orderID, "purpose", purpose)
			continue
		}
		if err != nil {
			return err
		}
		if inv.Paid {
			continue
		}

		preimage, err := w.engine.PayInvoice(ctx, inv.PaymentRequest)
		if err != nil {
			return fmt.Errorf("pay %s refund: %w", purpose, err)
		}
		if err := w.ledger.MarkInvoicePaid(inv.ID, preimage); err != nil {
			return err
		}
		w.log.Infow("refund_paid", "order_id", orderID, "purpose", purpose)
	}

	return nil
}

func (w *Workflows) issueInvoices(ctx context.Context, foreignID, foreignType, amount string) (*ledger.Invoice, *ledger.Invoice, error) {
	value, err := invoiceValue(amount)
	if err != nil {
		return nil, nil, err
	}

	var out [2]*ledger.Invoice
	for i, purpose := range []string{ledger.PurposeFee, ledger.PurposeDeposit} {
		pr, err := w.engine.AddInvoice(ctx,
			invoiceMemo(foreignType, purpose, foreignID), value, invoiceExpirySeconds)
		if err != nil {
			return nil, nil, fmt.Errorf("issue %s invoice: %w", purpose, err)
		}

		inv := &ledger.Invoice{
			ForeignID:      foreignID,
			ForeignType:    foreignType,
			PaymentRequest: pr,
			Type:           ledger.InvoiceIncoming,
			Purpose:        purpose,
		}
		if err := w.ledger.CreateInvoice(inv); err != nil {
			return nil, nil, err
		}
		out[i] = inv
	}
	return out[0], out[1], nil
}
