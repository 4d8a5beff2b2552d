package payment

// Payment lifecycle statuses.
const (
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
	StatusCanceled  = "canceled"
)

// Event represents a payment lifecycle message.
type Event struct {
	OrderID int64   `json:"order_id"`
	Status  string  `json:"status"`
	Amount  float64 `json:"amount"`
}
