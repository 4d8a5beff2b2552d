package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/customer"
	"github.com/corray333/backend-labs/fulfillment/internal/service/models/domainerr"
	"github.com/jackc/pgx/v5"
)

// CustomerRepository implements the customer repository for PostgreSQL.
type CustomerRepository struct {
	conn postgres.Conn
	sb   sq.StatementBuilderType
}

// NewCustomerRepository creates a new customer repository on a pool or a transaction.
func NewCustomerRepository(conn postgres.Conn) *CustomerRepository {
	return &CustomerRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// FindByEmail returns the active customer with the given email.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	query, args, err := r.sb.Select("id", "name", "email", "created_at").
		From("customers").
		Where(sq.Expr("lower(email) = lower(?)", email)).
		Where(sq.Eq{"deleted_at": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var c customer.Customer
	err = r.conn.QueryRow(ctx, query, args...).Scan(&c.ID, &c.Name, &c.Email, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("customer %s: %w", email, domainerr.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}

	return &c, nil
}

// Save inserts a customer without id or updates its name.
func (r *CustomerRepository) Save(ctx context.Context, c *customer.Customer) error {
	if c.ID != 0 {
		query, args, err := r.sb.Update("customers").
			Set("name", c.Name).
			Where(sq.Eq{"id": c.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build update query: %w", err)
		}
		if _, err := r.conn.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update customer: %w", err)
		}

		return nil
	}

	query, args, err := r.sb.Insert("customers").
		Columns("name", "email", "created_at").
		Values(c.Name, c.Email, time.Now()).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	err = r.conn.QueryRow(ctx, query, args...).Scan(&c.ID, &c.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return fmt.Errorf("%w: customer %s already exists", domainerr.ErrInvalidEntity, c.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}

	return nil
}
