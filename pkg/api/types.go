package api

import (
	"github.com/crosslane/relayd/pkg/order"
	"github.com/crosslane/relayd/pkg/relay"
)

// OrderFeedMessage is one push on the SubscribeOrders feed.
type OrderFeedMessage struct {
	OrderID     string         `json:"orderId"`
	OrderStatus string         `json:"orderStatus"`
	Order       *order.Summary `json:"order,omitempty"`
	FillAmount  string         `json:"fillAmount,omitempty"`
}

// GetOrdersResponse is the point-in-time snapshot returned by GET /v1/orders.
type GetOrdersResponse struct {
	OrderUpdates []relay.OrderUpdate `json:"orderUpdates"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
