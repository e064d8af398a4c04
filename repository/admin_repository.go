package repository

import (
	"context"
	"errors"
	"fmt"

	"wagerbook/database"
	"wagerbook/models"

	"github.com/jackc/pgx/v5"
)

// AdminRepository implements the AdminRepository interface
type AdminRepository struct {
	q queryable
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db *database.DB) *AdminRepository {
	return &AdminRepository{q: db.Pool}
}

// newAdminRepositoryWithTx creates a new admin repository with a transaction
func newAdminRepositoryWithTx(tx queryable) *AdminRepository {
	return &AdminRepository{q: tx}
}

const adminColumns = `id, username, category, disputes, chat_handle, created_at`

func scanAdmin(row rowScanner) (*models.Admin, error) {
	var admin models.Admin
	err := row.Scan(
		&admin.ID,
		&admin.Username,
		&admin.Category,
		&admin.Disputes,
		&admin.ChatHandle,
		&admin.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

// Create inserts an admin. Admin management lives outside this service; this
// is used for seeding.
func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	query := `
		INSERT INTO admins (username, category, disputes, chat_handle)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, admin.Username, admin.Category, admin.Disputes, admin.ChatHandle).Scan(
		&admin.ID,
		&admin.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create admin %q: %w", admin.Username, err)
	}

	return nil
}

// GetByID retrieves an admin by id
func (r *AdminRepository) GetByID(ctx context.Context, id int64) (*models.Admin, error) {
	query := `SELECT ` + adminColumns + ` FROM admins WHERE id = $1`

	admin, err := scanAdmin(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin %d: %w", id, err)
	}

	return admin, nil
}

// LockEligibleByCategory locks all admins of a category except excludeID.
// Rows are locked in id order so two concurrent assignments cannot deadlock,
// and the second one reads the counters the first one committed.
func (r *AdminRepository) LockEligibleByCategory(ctx context.Context, category string, excludeID int64) ([]*models.Admin, error) {
	query := `
		SELECT ` + adminColumns + `
		FROM admins
		WHERE category = $1 AND id <> $2
		ORDER BY id
		FOR UPDATE
	`

	rows, err := r.q.Query(ctx, query, category, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock admins for category %q: %w", category, err)
	}
	defer rows.Close()

	var admins []*models.Admin
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, admin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate admins: %w", err)
	}

	return admins, nil
}

// AdjustDisputes adds delta to the admin's open dispute counter, clamped at zero
func (r *AdminRepository) AdjustDisputes(ctx context.Context, id int64, delta int) error {
	query := `
		UPDATE admins
		SET disputes = GREATEST(disputes + $2, 0)
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust disputes for admin %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("admin %d not found", id)
	}

	return nil
}
