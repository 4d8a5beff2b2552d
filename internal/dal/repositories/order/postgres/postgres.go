package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/order"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/orderitem"
	"github.com/jackc/pgx/v5"
)

// OrderDal represents order data access layer model.
type OrderDal struct {
	Id            int64     `db:"id"`
	OrderNumber   string    `db:"order_number"`
	CustomerId    int64     `db:"customer_id"`
	CustomerName  string    `db:"customer_name"`
	CustomerEmail string    `db:"customer_email"`
	Status        string    `db:"status"`
	EstimatedTime *string   `db:"estimated_time"`
	Version       int64     `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ToModel converts OrderDal to service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return nil, err
	}

	return &order.Order{
		ID:          o.Id,
		OrderNumber: o.OrderNumber,
		Customer: customer.Customer{
			ID:    o.CustomerId,
			Name:  o.CustomerName,
			Email: o.CustomerEmail,
		},
		Status:        status,
		EstimatedTime: o.EstimatedTime,
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		OrderItems:    []orderitem.OrderItem{}, // Will be populated separately
	}, nil
}

var orderColumns = []string{
	"o.id",
	"o.order_number",
	"o.customer_id",
	"c.name",
	"c.email",
	"o.status",
	"o.estimated_time",
	"o.version",
	"o.created_at",
	"o.updated_at",
}

// PostgresOrderRepository stores orders and their items.
type PostgresOrderRepository struct {
	conn postgres.Conn
	sb   sq.StatementBuilderType
}

// NewPostgresOrderRepository creates a new order repository on a pool or a transaction.
func NewPostgresOrderRepository(conn postgres.Conn) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Save inserts a new order or updates an existing one guarded by its version.
// Items are replaced as a whole, so Save must run inside a transaction.
func (r *PostgresOrderRepository) Save(ctx context.Context, o *order.Order) error {
	if o.Customer.ID == 0 {
		return fmt.Errorf("%w: customer must be saved before the order", domainerr.ErrInvalidEntity)
	}

	var err error
	if o.ID == 0 {
		err = r.insert(ctx, o)
	} else {
		err = r.update(ctx, o)
	}
	if err != nil {
		return err
	}

	return r.replaceItems(ctx, o)
}

func (r *PostgresOrderRepository) insert(ctx context.Context, o *order.Order) error {
	now := time.Now()
	sql, args, err := r.sb.Insert("orders").
		Columns("order_number", "customer_id", "status", "estimated_time", "version", "created_at", "updated_at").
		Values(o.OrderNumber, o.Customer.ID, o.Status.String(), o.EstimatedTime, 1, now, now).
		Suffix("RETURNING id, version, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	err = r.conn.QueryRow(ctx, sql, args...).Scan(&o.ID, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: order number %s already exists", domainerr.ErrInvalidEntity, o.OrderNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

// SaveStatus updates the status of a stored order in a single statement.
func (r *PostgresOrderRepository) SaveStatus(ctx context.Context, o *order.Order) error {
	if o.ID == 0 {
		return fmt.Errorf("%w: order must be saved before its status", domainerr.ErrInvalidEntity)
	}

	return r.updateRow(ctx, o, r.sb.Update("orders"))
}

func (r *PostgresOrderRepository) update(ctx context.Context, o *order.Order) error {
	return r.updateRow(ctx, o, r.sb.Update("orders").Set("customer_id", o.Customer.ID))
}

func (r *PostgresOrderRepository) updateRow(ctx context.Context, o *order.Order, builder sq.UpdateBuilder) error {
	sql, args, err := builder.
		Set("status", o.Status.String()).
		Set("estimated_time", o.EstimatedTime).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": o.ID, "version": o.Version}).
		Suffix("RETURNING version, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	err = r.conn.QueryRow(ctx, sql, args...).Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		exists, existsErr := r.exists(ctx, o.ID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return fmt.Errorf("order %d: %w", o.ID, domainerr.ErrEntityNotFound)
		}

		return fmt.Errorf("order %d: %w", o.ID, domainerr.ErrConcurrentUpdate)
	}
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	return nil
}

func (r *PostgresOrderRepository) exists(ctx context.Context, id int64) (bool, error) {
	sql, args, err := r.sb.Select("1").From("orders").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var one int
	err = r.conn.QueryRow(ctx, sql, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check order existence: %w", err)
	}

	return true, nil
}

func (r *PostgresOrderRepository) replaceItems(ctx context.Context, o *order.Order) error {
	sql, args, err := r.sb.Delete("order_items").Where(sq.Eq{"order_id": o.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := r.conn.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to delete order items: %w", err)
	}

	if len(o.OrderItems) == 0 {
		return nil
	}

	builder := r.sb.Insert("order_items").
		Columns("order_id", "product_sku", "quantity", "name", "description", "price").
		Suffix("RETURNING id")
	for _, item := range o.OrderItems {
		builder = builder.Values(o.ID, item.ProductSKU, item.Quantity, item.Name, item.Description, item.Price)
	}

	sql, args, err = builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		if err := rows.Scan(&o.OrderItems[i].ID); err != nil {
			return fmt.Errorf("failed to scan order item id: %w", err)
		}
		o.OrderItems[i].OrderID = o.ID
		i++
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}

	return nil
}

// FindByID returns the order with the given id.
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.findOne(ctx, sq.Eq{"o.id": id}, fmt.Sprintf("order %d", id))
}

// FindByOrderNumber returns the order with the given business key.
func (r *PostgresOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*order.Order, error) {
	return r.findOne(ctx, sq.Eq{"o.order_number": orderNumber}, "order "+orderNumber)
}

func (r *PostgresOrderRepository) findOne(ctx context.Context, where sq.Eq, subject string) (*order.Order, error) {
	orders, err := r.query(ctx, r.selectOrders().Where(where).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%s: %w", subject, domainerr.ErrEntityNotFound)
	}

	return &orders[0], nil
}

// List returns a page of orders ordered by id.
func (r *PostgresOrderRepository) List(ctx context.Context, query order.QueryOrdersModel) ([]order.Order, error) {
	return r.query(ctx, r.selectOrders().
		OrderBy("o.id ASC").
		Limit(uint64(query.Limit())).
		Offset(uint64(query.Offset())))
}

// Delete hard-deletes the order, items cascade.
func (r *PostgresOrderRepository) Delete(ctx context.Context, id int64) error {
	sql, args, err := r.sb.Delete("orders").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, domainerr.ErrEntityNotFound)
	}

	return nil
}

func (r *PostgresOrderRepository) selectOrders() sq.SelectBuilder {
	return r.sb.Select(orderColumns...).
		From("orders o").
		Join("customers c ON c.id = o.customer_id")
}

func (r *PostgresOrderRepository) query(ctx context.Context, builder sq.SelectBuilder) ([]order.Order, error) {
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var dal OrderDal
		err := rows.Scan(
			&dal.Id,
			&dal.OrderNumber,
			&dal.CustomerId,
			&dal.CustomerName,
			&dal.CustomerEmail,
			&dal.Status,
			&dal.EstimatedTime,
			&dal.Version,
			&dal.CreatedAt,
			&dal.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if err := r.attachItems(ctx, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresOrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		index[o.ID] = i
	}

	sql, args, err := r.sb.
		Select("id", "order_id", "product_sku", "quantity", "name", "description", "price").
		From("order_items").
		Where(sq.Eq{"order_id": ids}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item orderitem.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductSKU,
			&item.Quantity,
			&item.Name,
			&item.Description,
			&item.Price,
		)
		if err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		i := index[item.OrderID]
		orders[i].OrderItems = append(orders[i].OrderItems, item)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}

	return nil
}
