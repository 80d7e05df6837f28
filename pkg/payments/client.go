package payments

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the payment daemon's REST gateway.
type Client struct {
	client *resty.Client
}

var _ Engine = (*Client)(nil)

func NewClient(host string) *Client {
	host = strings.TrimSuffix(host, "/")

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Client{client: client}
}

type addInvoiceRequest struct {
	Memo   string `json:"memo"`
	Value  int64  `json:"value"`
	Expiry int64  `json:"expiry"`
}

type addInvoiceResponse struct {
	PaymentRequest string `json:"payment_request"`
}

func (c *Client) AddInvoice(ctx context.Context, memo string, value int64, expirySeconds int64) (string, error) {
	var out addInvoiceResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(addInvoiceRequest{Memo: memo, Value: value, Expiry: expirySeconds}).
		SetResult(&out).
		Post("/v1/invoices")
	if err != nil {
		return "", fmt.Errorf("add invoice: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("add invoice: daemon returned %s", resp.Status())
	}
	return out.PaymentRequest, nil
}

func (c *Client) GetInvoice(ctx context.Context, paymentRequest string) (*Invoice, error) {
	var out Invoice
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/invoices/" + paymentRequest)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get invoice: daemon returned %s", resp.Status())
	}
	return &out, nil
}

type payInvoiceRequest struct {
	PaymentRequest string `json:"payment_request"`
}

type payInvoiceResponse struct {
	PaymentPreimage string `json:"payment_preimage"`
}

func (c *Client) PayInvoice(ctx context.Context, paymentRequest string) ([]byte, error) {
	var out payInvoiceResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payInvoiceRequest{PaymentRequest: paymentRequest}).
		SetResult(&out).
		Post("/v1/payments")
	if err != nil {
		return nil, fmt.Errorf("pay invoice: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pay invoice: daemon returned %s", resp.Status())
	}
	preimage, err := base64.StdEncoding.DecodeString(out.PaymentPreimage)
	if err != nil {
		return nil, fmt.Errorf("pay invoice: decode preimage: %w", err)
	}
	return preimage, nil
}

func (c *Client) GetPaymentRequestDetails(ctx context.Context, paymentRequest string) (*PaymentRequestDetails, error) {
	var out PaymentRequestDetails
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/payreq/" + paymentRequest)
	if err != nil {
		return nil, fmt.Errorf("decode payment request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("decode payment request: daemon returned %s", resp.Status())
	}
	return &out, nil
}
