package customer

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/patronkit/patronkit/pkg/pg"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repo struct {
	db DB
}

// NewStore returns a Postgres-backed Store.
func NewStore(db DB) Store {
	return &repo{db: db}
}

func (r *repo) Get(ctx context.Context, userID uuid.UUID) (*ExternalCustomer, error) {
	var c ExternalCustomer
	query := `SELECT user_id, processor_customer_id, created_at FROM external_customers WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&c.UserID, &c.ProcessorCustomerID, &c.CreatedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repo) Insert(ctx context.Context, c *ExternalCustomer) (bool, error) {
	query := `
		INSERT INTO external_customers (user_id, processor_customer_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, c.UserID, c.ProcessorCustomerID, c.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
