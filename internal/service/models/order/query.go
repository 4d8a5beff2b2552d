package order

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// QueryOrdersModel represents pagination parameters for listing orders.
type QueryOrdersModel struct {
	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// Normalize fills defaults and clamps the page size.
func (q QueryOrdersModel) Normalize() QueryOrdersModel {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}

	return q
}

// Limit returns the SQL limit.
func (q QueryOrdersModel) Limit() int {
	return q.Normalize().PageSize
}

// Offset returns the SQL offset.
func (q QueryOrdersModel) Offset() int {
	n := q.Normalize()

	return (n.Page - 1) * n.PageSize
}
