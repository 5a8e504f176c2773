package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whatsdesk/whatsdesk/internal/domain"
)

// ErrAddressTaken is returned when a normalized address would collide with a
// different existing customer.
var ErrAddressTaken = errors.New("address already belongs to another customer")

// CustomerRepository manages customer persistence.
type CustomerRepository interface {
	Create(ctx context.Context, customer *domain.Customer) error
	Update(ctx context.Context, customer *domain.Customer) error
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	GetByAddress(ctx context.Context, address string) (*domain.Customer, error)
	List(ctx context.Context, limit, offset int) ([]domain.Customer, error)
	SoftRemove(ctx context.Context, id string) error
}

type customerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository builds the repository.
func NewCustomerRepository(pool *pgxpool.Pool) CustomerRepository {
	return &customerRepository{pool: pool}
}

func (r *customerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	const query = `
        INSERT INTO customers (name, address, company)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		customer.Name,
		customer.Address,
		customer.Company,
	).Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAddressTaken
		}
		return err
	}
	return nil
}

func (r *customerRepository) Update(ctx context.Context, customer *domain.Customer) error {
	const query = `
        UPDATE customers SET name=$1, address=$2, company=$3, updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query,
		customer.Name,
		customer.Address,
		customer.Company,
		customer.ID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAddressTaken
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *customerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	const query = `
        SELECT id, name, address, company, removed, created_at, updated_at
        FROM customers WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *customerRepository) GetByAddress(ctx context.Context, address string) (*domain.Customer, error) {
	const query = `
        SELECT id, name, address, company, removed, created_at, updated_at
        FROM customers WHERE address=$1`
	return r.fetchSingle(ctx, query, address)
}

func (r *customerRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Customer, error) {
	var customer domain.Customer
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Address,
		&customer.Company,
		&customer.Removed,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) List(ctx context.Context, limit, offset int) ([]domain.Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, name, address, company, removed, created_at, updated_at
        FROM customers WHERE removed = FALSE
        ORDER BY name ASC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Customer
	for rows.Next() {
		var customer domain.Customer
		if err := rows.Scan(
			&customer.ID,
			&customer.Name,
			&customer.Address,
			&customer.Company,
			&customer.Removed,
			&customer.CreatedAt,
			&customer.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, customer)
	}
	return result, rows.Err()
}

// SoftRemove hides the customer from listings; conversations keep the
// reference, so the row is never deleted.
func (r *customerRepository) SoftRemove(ctx context.Context, id string) error {
	const query = `UPDATE customers SET removed=TRUE, updated_at=NOW() WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
