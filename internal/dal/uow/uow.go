package uow

import (
	"context"
	"errors"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/icustomerrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	customerrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/customer/postgres"
	orderrepo "github.com/corray333/backend-labs/fulfillment/internal/dal/repositories/order/postgres"
	"github.com/jackc/pgx/v5"
)

// UnitOfWork groups order and customer writes in one transaction.
type UnitOfWork struct {
	client       *postgres.Client
	tx           pgx.Tx
	orderRepo    iorderrepo.IOrderRepository
	customerRepo icustomerrepo.ICustomerRepository
}

// NewUnitOfWork creates a unit of work whose repositories use the pool until Begin is called.
func NewUnitOfWork(client *postgres.Client) *UnitOfWork {
	return &UnitOfWork{
		client:       client,
		orderRepo:    orderrepo.NewPostgresOrderRepository(client.Pool()),
		customerRepo: customerrepo.NewCustomerRepository(client.Pool()),
	}
}

// OrderRepository returns the order repository bound to the current transaction.
func (u *UnitOfWork) OrderRepository() iorderrepo.IOrderRepository {
	return u.orderRepo
}

// CustomerRepository returns the customer repository bound to the current transaction.
func (u *UnitOfWork) CustomerRepository() icustomerrepo.ICustomerRepository {
	return u.customerRepo
}

// Begin starts a transaction and rebinds the repositories to it.
func (u *UnitOfWork) Begin(ctx context.Context) error {
	tx, err := u.client.Pool().Begin(ctx)
	if err != nil {
		return err
	}

	u.tx = tx
	u.orderRepo = orderrepo.NewPostgresOrderRepository(tx)
	u.customerRepo = customerrepo.NewCustomerRepository(tx)

	return nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Commit(ctx)
}

// Rollback rolls the transaction back. Rolling back a committed transaction is a no-op.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}

	return err
}
