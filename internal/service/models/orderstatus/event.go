package orderstatus

// Status values published to downstream services.
const (
	StatusConfirmed = "confirmed"
	StatusCanceled  = "canceled"
)

// Event is published to the order status queue.
type Event struct {
	OrderID int64   `json:"order_id"`
	Amount  float64 `json:"amount"`
	Status  string  `json:"status"`
}
