package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/contact"
)

const createContactMessageSQL = `INSERT INTO contact_messages (id, name, email, message, created_at)
	VALUES ($1, $2, $3, $4, $5)`

var _ contact.Repository = (*ContactRepository)(nil)

// ContactRepository implements contact.Repository backed by PostgreSQL.
type ContactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository returns a ContactRepository that uses the given pool.
func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

// Create stores a contact message.
func (r *ContactRepository) Create(ctx context.Context, m *contact.Message) error {
	if _, err := r.pool.Exec(ctx, createContactMessageSQL, m.ID, m.Name, m.Email, m.Body, m.CreatedAt); err != nil {
		return fmt.Errorf("creating contact message: %w", err)
	}
	return nil
}
