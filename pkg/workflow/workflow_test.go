package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crosslane/relayd/pkg/ledger"
	"github.com/crosslane/relayd/pkg/payments"
	"github.com/crosslane/relayd/pkg/relay"
)

// fakeEngine is an in-memory payment engine. Invoices are settled by flipping
// the entry in settled; paid requests are recorded in paid.
type fakeEngine struct {
	mu      sync.Mutex
	seq     int
	values  map[string]int64
	settled map[string]bool
	paid    []string

	payErr error
}

var _ payments.Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		values:  make(map[string]int64),
		settled: make(map[string]bool),
	}
}

func (f *fakeEngine) AddInvoice(ctx context.Context, memo string, value int64, expirySeconds int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	pr := fmt.Sprintf("lnbc-%d", f.seq)
	f.values[pr] = value
	return pr, nil
}

func (f *fakeEngine) GetInvoice(ctx context.Context, paymentRequest string) (*payments.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[paymentRequest]
	if !ok {
		return nil, fmt.Errorf("unknown invoice %s", paymentRequest)
	}
	return &payments.Invoice{Settled: f.settled[paymentRequest], Value: value}, nil
}

func (f *fakeEngine) PayInvoice(ctx context.Context, paymentRequest string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payErr != nil {
		return nil, f.payErr
	}
	f.paid = append(f.paid, paymentRequest)
	return []byte("preimage-" + paymentRequest), nil
}

func (f *fakeEngine) GetPaymentRequestDetails(ctx context.Context, paymentRequest string) (*payments.PaymentRequestDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[paymentRequest]
	if !ok {
		return nil, fmt.Errorf("unknown payment request %s", paymentRequest)
	}
	return &payments.PaymentRequestDetails{NumSatoshis: value}, nil
}

// externalInvoice registers a payment request the counterparty created, e.g. a
// refund invoice offered by the maker.
func (f *fakeEngine) externalInvoice(pr string, value int64) {
	f.mu.Lock()
	f.values[pr] = value
	f.mu.Unlock()
}

func (f *fakeEngine) paidCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paid)
}

func (f *fakeEngine) value(pr string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[pr]
}

func newTestWorkflows(t *testing.T) (*Workflows, *fakeEngine, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open() error: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	engine := newFakeEngine()
	return New(l, engine, zap.NewNop().Sugar()), engine, l
}

func createParams() CreateOrderParams {
	return CreateOrderParams{
		OwnerID:       "owner-1",
		PayTo:         "ln:maker",
		BaseSymbol:    "BTC",
		CounterSymbol: "USD",
		BaseAmount:    "1000000",
		CounterAmount: "65000000000",
		Side:          "ASK",
	}
}

func TestCreateOrder(t *testing.T) {
	w, engine, l := newTestWorkflows(t)

	res, err := w.CreateOrder(context.Background(), createParams())
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	if res.OrderID == "" {
		t.Fatalf("CreateOrder() returned empty order id")
	}
	if res.FeePaymentRequest == "" || res.DepositPaymentRequest == "" {
		t.Fatalf("CreateOrder() result missing payment requests: %+v", res)
	}
	if res.FeePaymentRequest == res.DepositPaymentRequest {
		t.Errorf("fee and deposit share a payment request")
	}

	rec, err := l.FindOrder(res.OrderID)
	if err != nil {
		t.Fatalf("FindOrder() error: %v", err)
	}
	if rec.Status != ledger.OrderCreated {
		t.Errorf("order status = %s, want CREATED", rec.Status)
	}

	// 0.1% of 1000000.
	if v := engine.values[res.FeePaymentRequest]; v != 1000 {
		t.Errorf("fee invoice value = %d, want 1000", v)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	w, _, _ := newTestWorkflows(t)

	tests := []struct {
		name   string
		mutate func(p *CreateOrderParams)
	}{
		{name: "bad side", mutate: func(p *CreateOrderParams) { p.Side = "LONG" }},
		{name: "bad base amount", mutate: func(p *CreateOrderParams) { p.BaseAmount = "ten" }},
		{name: "zero counter amount", mutate: func(p *CreateOrderParams) { p.CounterAmount = "0" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createParams()
			tt.mutate(&p)
			if _, err := w.CreateOrder(context.Background(), p); err == nil {
				t.Fatalf("CreateOrder() = nil, want error")
			}
		})
	}
}

func TestPlaceOrder(t *testing.T) {
	w, engine, l := newTestWorkflows(t)

	res, err := w.CreateOrder(context.Background(), createParams())
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}

	t.Run("unpaid fee rejected", func(t *testing.T) {
		err := w.PlaceOrder(context.Background(), res.OrderID, "refund-fee", "refund-deposit")
		var pe *PublicError
		if !errors.As(err, &pe) || !strings.Contains(pe.Message, "fee invoice has not been paid") {
			t.Fatalf("PlaceOrder() error = %v, want unpaid-fee public error", err)
		}
	})

	engine.settled[res.FeePaymentRequest] = true
	engine.settled[res.DepositPaymentRequest] = true

	feeValue := engine.values[res.FeePaymentRequest]
	depositValue := engine.values[res.DepositPaymentRequest]

	t.Run("mismatched refund value rejected", func(t *testing.T) {
		engine.externalInvoice("refund-fee-wrong", feeValue+1)
		engine.externalInvoice("refund-deposit", depositValue)
		err := w.PlaceOrder(context.Background(), res.OrderID, "refund-fee-wrong", "refund-deposit")
		var pe *PublicError
		if !errors.As(err, &pe) || !strings.Contains(pe.Message, "fee refund value does not match") {
			t.Fatalf("PlaceOrder() error = %v, want refund-mismatch public error", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		engine.externalInvoice("refund-fee", feeValue)
		engine.externalInvoice("refund-deposit", depositValue)
		if err := w.PlaceOrder(context.Background(), res.OrderID, "refund-fee", "refund-deposit"); err != nil {
			t.Fatalf("PlaceOrder() error: %v", err)
		}

		rec, _ := l.FindOrder(res.OrderID)
		if rec.Status != ledger.OrderPlaced {
			t.Errorf("order status = %s, want PLACED", rec.Status)
		}

		inv, err := l.FindInvoice(rec.ID, ledger.ForeignTypeOrder, ledger.InvoiceRefund, ledger.PurposeFee)
		if err != nil {
			t.Fatalf("refund invoice not stored: %v", err)
		}
		if inv.PaymentRequest != "refund-fee" {
			t.Errorf("stored refund = %q", inv.PaymentRequest)
		}
	})

	t.Run("second placement rejected", func(t *testing.T) {
		err := w.PlaceOrder(context.Background(), res.OrderID, "refund-fee", "refund-deposit")
		var pe *PublicError
		if !errors.As(err, &pe) {
			t.Fatalf("PlaceOrder() error = %v, want public error for non-CREATED order", err)
		}
	})
}

func TestCancelOrderPaysRefunds(t *testing.T) {
	w, engine, l := newTestWorkflows(t)

	res, err := w.CreateOrder(context.Background(), createParams())
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	engine.settled[res.FeePaymentRequest] = true
	engine.settled[res.DepositPaymentRequest] = true
	engine.externalInvoice("refund-fee", engine.values[res.FeePaymentRequest])
	engine.externalInvoice("refund-deposit", engine.values[res.DepositPaymentRequest])
	if err := w.PlaceOrder(context.Background(), res.OrderID, "refund-fee", "refund-deposit"); err != nil {
		t.Fatalf("PlaceOrder() error: %v", err)
	}

	if err := w.CancelOrder(context.Background(), res.OrderID); err != nil {
		t.Fatalf("CancelOrder() error: %v", err)
	}

	rec, _ := l.FindOrder(res.OrderID)
	if rec.Status != ledger.OrderCancelled {
		t.Errorf("order status = %s, want CANCELLED", rec.Status)
	}

	if len(engine.paid) != 2 {
		t.Fatalf("paid %d refunds, want 2: %v", len(engine.paid), engine.paid)
	}
	for _, purpose := range []string{ledger.PurposeFee, ledger.PurposeDeposit} {
		inv, err := l.FindInvoice(rec.ID, ledger.ForeignTypeOrder, ledger.InvoiceRefund, purpose)
		if err != nil {
			t.Fatalf("FindInvoice(%s) error: %v", purpose, err)
		}
		if !inv.Paid || len(inv.Preimage) == 0 {
			t.Errorf("%s refund not marked paid: %+v", purpose, inv)
		}
	}

	// A second cancel pays nothing further.
	if err := w.CancelOrder(context.Background(), res.OrderID); err != nil {
		t.Fatalf("second CancelOrder() error: %v", err)
	}
	if len(engine.paid) != 2 {
		t.Errorf("refunds paid twice: %v", engine.paid)
	}
}

func TestCancelOrderBeforePlacement(t *testing.T) {
	w, engine, l := newTestWorkflows(t)

	res, err := w.CreateOrder(context.Background(), createParams())
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}

	// No refund invoices exist yet; cancellation still succeeds.
	if err := w.CancelOrder(context.Background(), res.OrderID); err != nil {
		t.Fatalf("CancelOrder() error: %v", err)
	}
	if len(engine.paid) != 0 {
		t.Errorf("paid refunds without stored invoices: %v", engine.paid)
	}
	rec, _ := l.FindOrder(res.OrderID)
	if rec.Status != ledger.OrderCancelled {
		t.Errorf("order status = %s, want CANCELLED", rec.Status)
	}
}

func TestCreateFill(t *testing.T) {
	w, engine, l := newTestWorkflows(t)

	res, err := w.CreateOrder(context.Background(), createParams())
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	rec, _ := l.FindOrder(res.OrderID)
	if err := l.UpdateOrderStatus(rec.ID, ledger.OrderPlaced); err != nil {
		t.Fatalf("UpdateOrderStatus() error: %v", err)
	}

	fillRes, err := w.CreateFill(context.Background(), CreateFillParams{
		OrderID:    res.OrderID,
		SwapHash:   []byte("swap-hash"),
		FillAmount: "500000",
		TakerPayTo: "ln:taker",
	})
	if err != nil {
		t.Fatalf("CreateFill() error: %v", err)
	}
	if fillRes.FillID == "" || fillRes.FeePaymentRequest == "" || fillRes.DepositPaymentRequest == "" {
		t.Fatalf("CreateFill() result incomplete: %+v", fillRes)
	}

	f, err := l.FindFill(fillRes.FillID)
	if err != nil {
		t.Fatalf("FindFill() error: %v", err)
	}
	if f.OrderDocID != rec.ID || f.FillAmount != "500000" {
		t.Errorf("stored fill = %+v", f)
	}

	// 0.1% of 500000.
	if v := engine.values[fillRes.FeePaymentRequest]; v != 500 {
		t.Errorf("fee invoice value = %d, want 500", v)
	}
}

func TestCreateFillValidation(t *testing.T) {
	w, _, l := newTestWorkflows(t)

	res, err := w.CreateOrder(context.Background(), createParams())
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	rec, _ := l.FindOrder(res.OrderID)

	base := CreateFillParams{
		OrderID:    res.OrderID,
		SwapHash:   []byte("h"),
		FillAmount: "100",
	}

	t.Run("order not placed", func(t *testing.T) {
		if _, err := w.CreateFill(context.Background(), base); err == nil {
			t.Fatalf("CreateFill() = nil, want error for CREATED order")
		}
	})

	if err := l.UpdateOrderStatus(rec.ID, ledger.OrderPlaced); err != nil {
		t.Fatalf("UpdateOrderStatus() error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *CreateFillParams)
	}{
		{name: "unknown order", mutate: func(p *CreateFillParams) { p.OrderID = "order-404" }},
		{name: "missing swap hash", mutate: func(p *CreateFillParams) { p.SwapHash = nil }},
		{name: "zero amount", mutate: func(p *CreateFillParams) { p.FillAmount = "0" }},
		{name: "amount exceeds base", mutate: func(p *CreateFillParams) { p.FillAmount = "1000001" }},
		{name: "garbage amount", mutate: func(p *CreateFillParams) { p.FillAmount = "all of it" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := w.CreateFill(context.Background(), p)
			var pe *PublicError
			if !errors.As(err, &pe) {
				t.Fatalf("CreateFill() error = %v, want *PublicError", err)
			}
		})
	}
}

func TestRefundSettler(t *testing.T) {
	w, engine, l := newTestWorkflows(t)

	res, err := w.CreateOrder(context.Background(), createParams())
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	engine.settled[res.FeePaymentRequest] = true
	engine.settled[res.DepositPaymentRequest] = true
	engine.externalInvoice("refund-fee", engine.value(res.FeePaymentRequest))
	engine.externalInvoice("refund-deposit", engine.value(res.DepositPaymentRequest))
	if err := w.PlaceOrder(context.Background(), res.OrderID, "refund-fee", "refund-deposit"); err != nil {
		t.Fatalf("PlaceOrder() error: %v", err)
	}

	bus := relay.NewBroadcaster(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.RunRefundSettler(ctx, bus)
	}()

	// Let the settler register its subscription; the feed has no replay.
	time.Sleep(50 * time.Millisecond)

	// An event for an untracked order is skipped without failing the loop.
	bus.Publish(relay.Event{Type: relay.EventOrderCancelled, OrderID: "order-unknown"})
	bus.Publish(relay.Event{Type: relay.EventOrderCancelled, OrderID: res.OrderID})

	deadline := time.Now().Add(2 * time.Second)
	for engine.paidCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := engine.paidCount(); got != 2 {
		t.Fatalf("paid %d refunds, want 2", got)
	}

	rec, _ := l.FindOrder(res.OrderID)
	if rec.Status != ledger.OrderCancelled {
		t.Errorf("order status = %s, want CANCELLED", rec.Status)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("settler did not stop on context cancel")
	}
}

func TestInvoiceValueFloor(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{amount: "1000000", want: 1000},
		{amount: "10000", want: 10},
		{amount: "500", want: 1},
		{amount: "1", want: 1},
	}
	for _, tt := range tests {
		got, err := invoiceValue(tt.amount)
		if err != nil {
			t.Fatalf("invoiceValue(%s) error: %v", tt.amount, err)
		}
		if got != tt.want {
			t.Errorf("invoiceValue(%s) = %d, want %d", tt.amount, got, tt.want)
		}
	}

	if _, err := invoiceValue("0"); err == nil {
		t.Errorf("invoiceValue(0) = nil, want error")
	}
	if _, err := invoiceValue("-10"); err == nil {
		t.Errorf("invoiceValue(-10) = nil, want error")
	}
}
