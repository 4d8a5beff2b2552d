package delivery

// Delivery lifecycle statuses.
const (
	StatusInTransit = "in_transit"
	StatusDelivered = "delivered"
)

// Event represents a delivery lifecycle message.
type Event struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}
