// Package ledger is the document-style store used by the maker/taker
// workflows that sit above the relayer core: order, invoice and fill records
// with create/find-one semantics. It is not the relayer's canonical order
// store; that lives in pkg/store.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("record not found")

// Order workflow statuses. Distinct from the relayer's lifecycle: an order is
// CREATED locally before it is ever placed with the relayer.
const (
	OrderCreated   = "CREATED"
	OrderPlaced    = "PLACED"
	OrderCancelled = "CANCELLED"
)

// Invoice classification.
const (
	ForeignTypeOrder = "ORDER"
	ForeignTypeFill  = "FILL"

	InvoiceIncoming = "INCOMING"
	InvoiceRefund   = "REFUND"

	PurposeFee     = "FEE"
	PurposeDeposit = "DEPOSIT"
)

type Order struct {
	ID            string // document id
	OrderID       string // public order id
	OwnerID       string
	BaseSymbol    string
	CounterSymbol string
	BaseAmount    string
	CounterAmount string
	Side          string
	PayTo         string
	Status        string
}

type Invoice struct {
	ID             string
	ForeignID      string // owning order/fill document id
	ForeignType    string
	PaymentRequest string
	Type           string
	Purpose        string
	Paid           bool
	Preimage       []byte
}

type Fill struct {
	ID         string // document id
	FillID     string // public fill id
	OrderDocID string
	SwapHash   []byte
	FillAmount string
	TakerPayTo string
}

type Ledger struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	order_id       TEXT NOT NULL UNIQUE,
	owner_id       TEXT NOT NULL,
	base_symbol    TEXT NOT NULL,
	counter_symbol TEXT NOT NULL,
	base_amount    TEXT NOT NULL,
	counter_amount TEXT NOT NULL,
	side           TEXT NOT NULL,
	pay_to         TEXT NOT NULL,
	status         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS invoices (
	id              TEXT PRIMARY KEY,
	foreign_id      TEXT NOT NULL,
	foreign_type    TEXT NOT NULL,
	payment_request TEXT NOT NULL,
	type            TEXT NOT NULL,
	purpose         TEXT NOT NULL,
	paid            INTEGER NOT NULL DEFAULT 0,
	preimage        BLOB
);
CREATE INDEX IF NOT EXISTS invoices_foreign ON invoices (foreign_id, foreign_type, type, purpose);
CREATE TABLE IF NOT EXISTS fills (
	id           TEXT PRIMARY KEY,
	fill_id      TEXT NOT NULL UNIQUE,
	order_doc_id TEXT NOT NULL,
	swap_hash    BLOB NOT NULL,
	fill_amount  TEXT NOT NULL,
	taker_pay_to TEXT
);
`

func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// CreateOrder inserts a new order document, assigning its document id.
func (l *Ledger) CreateOrder(o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = OrderCreated
	}
	_, err := l.db.Exec(
		`INSERT INTO orders (id, order_id, owner_id, base_symbol, counter_symbol,
			base_amount, counter_amount, side, pay_to, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.OrderID, o.OwnerID, o.BaseSymbol, o.CounterSymbol,
		o.BaseAmount, o.CounterAmount, o.Side, o.PayTo, o.Status,
	)
	if err != nil {
		return fmt.Errorf("create order %s: %w", o.OrderID, err)
	}
	return nil
}

// FindOrder loads one order by its public order id.
func (l *Ledger) FindOrder(orderID string) (*Order, error) {
	row := l.db.QueryRow(
		`SELECT id, order_id, owner_id, base_symbol, counter_symbol,
			base_amount, counter_amount, side, pay_to, status
		 FROM orders WHERE order_id = ?`, orderID)

	var o Order
	err := row.Scan(&o.ID, &o.OrderID, &o.OwnerID, &o.BaseSymbol, &o.CounterSymbol,
		&o.BaseAmount, &o.CounterAmount, &o.Side, &o.PayTo, &o.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderID, err)
	}
	return &o, nil
}

// UpdateOrderStatus moves an order document to a new workflow status.
func (l *Ledger) UpdateOrderStatus(docID, status string) error {
	res, err := l.db.Exec(`UPDATE orders SET status = ? WHERE id = ?`, status, docID)
	if err != nil {
		return fmt.Errorf("update order %s: %w", docID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateInvoice inserts a new invoice document, assigning its id.
func (l *Ledger) CreateInvoice(inv *Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	_, err := l.db.Exec(
		`INSERT INTO invoices (id, foreign_id, foreign_type, payment_request, type, purpose, paid, preimage)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.ForeignID, inv.ForeignType, inv.PaymentRequest,
		inv.Type, inv.Purpose, boolToInt(inv.Paid), inv.Preimage,
	)
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// FindInvoice loads one invoice by owner, direction and purpose.
func (l *Ledger) FindInvoice(foreignID, foreignType, invoiceType, purpose string) (*Invoice, error) {
	row := l.db.QueryRow(
		`SELECT id, foreign_id, foreign_type, payment_request, type, purpose, paid, preimage
		 FROM invoices
		 WHERE foreign_id = ? AND foreign_type = ? AND type = ? AND purpose = ?`,
		foreignID, foreignType, invoiceType, purpose)

	var inv Invoice
	var paid int
	err := row.Scan(&inv.ID, &inv.ForeignID, &inv.ForeignType, &inv.PaymentRequest,
		&inv.Type, &inv.Purpose, &paid, &inv.Preimage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	inv.Paid = paid != 0
	return &inv, nil
}

// MarkInvoicePaid records the settlement preimage for an invoice.
func (l *Ledger) MarkInvoicePaid(invoiceID string, preimage []byte) error {
	res, err := l.db.Exec(`UPDATE invoices SET paid = 1, preimage = ? WHERE id = ?`, preimage, invoiceID)
	if err != nil {
		return fmt.Errorf("mark invoice paid %s: %w", invoiceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateFill inserts a new fill document, assigning document and public ids.
func (l *Ledger) CreateFill(f *Fill) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.FillID == "" {
		f.FillID = uuid.NewString()
	}
	_, err := l.db.Exec(
		`INSERT INTO fills (id, fill_id, order_doc_id, swap_hash, fill_amount, taker_pay_to)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.FillID, f.OrderDocID, f.SwapHash, f.FillAmount, f.TakerPayTo,
	)
	if err != nil {
		return fmt.Errorf("create fill: %w", err)
	}
	return nil
}

// FindFill loads one fill by its public fill id.
func (l *Ledger) FindFill(fillID string) (*Fill, error) {
	row := l.db.QueryRow(
		`SELECT id, fill_id, order_doc_id, swap_hash, fill_amount, taker_pay_to
		 FROM fills WHERE fill_id = ?`, fillID)

	var f Fill
	err := row.Scan(&f.ID, &f.FillID, &f.OrderDocID, &f.SwapHash, &f.FillAmount, &f.TakerPayTo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find fill %s: %w", fillID, err)
	}
	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
