// Package workflow implements the maker/taker order workflows that sit above
// the relayer core: creating orders and fills against the document ledger,
// issuing fee and deposit invoices through the payment engine, and settling
// refunds on cancellation.
package workflow

import (
	"encoding/json"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/crosslane/relayd/pkg/ledger"
	"github.com/crosslane/relayd/pkg/payments"
)

// Invoice policy. Fee and deposit are each 0.1% of the order/fill amount with
// a floor of 1 unit; invoices expire after two minutes.
const (
	feeRateBps           = 10
	minInvoiceValue      = 1
	invoiceExpirySeconds = 120
)

type Workflows struct {
	ledger *ledger.Ledger
	engine payments.Engine
	log    *zap.SugaredLogger
}

func New(l *ledger.Ledger, engine payments.Engine, log *zap.SugaredLogger) *Workflows {
	return &Workflows{ledger: l, engine: engine, log: log}
}

// PublicError is a workflow failure whose message is safe to show the user.
type PublicError struct {
	Message string
}

func (e *PublicError) Error() string { return e.Message }

func publicf(format string, args ...any) error {
	return &PublicError{Message: fmt.Sprintf(format, args...)}
}

func amount(field, s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, publicf("%s must be a base-10 integer, got %q", field, s)
	}
	return n, nil
}

func invoiceValue(amount string) (int64, error) {
	n, ok := new(big.Int).SetString(amount, 10)
	if !ok || n.Sign() <= 0 {
		return 0, publicf("amount must be a positive integer, got %q", amount)
	}
	v := new(big.Int).Div(n, big.NewInt(10000/feeRateBps))
	if !v.IsInt64() || v.Int64() < minInvoiceValue {
		if !v.IsInt64() {
			return 0, publicf("amount %s too large to invoice", amount)
		}
		return minInvoiceValue, nil
	}
	return v.Int64(), nil
}

func invoiceMemo(kind, purpose, foreignID string) string {
	memo, _ := json.Marshal(map[string]string{
		"type":    purpose,
		"kind":    kind,
		"foreign": foreignID,
	})
	return string(memo)
}
