package repository

import (
	"context"
	"errors"
	"fmt"

	"wagerbook/database"
	"wagerbook/models"

	"github.com/jackc/pgx/v5"
)

// WagerRepository implements the WagerRepository interface
type WagerRepository struct {
	q queryable
}

// NewWagerRepository creates a new wager repository
func NewWagerRepository(db *database.DB) *WagerRepository {
	return &WagerRepository{q: db.Pool}
}

// newWagerRepositoryWithTx creates a new wager repository with a transaction
func newWagerRepositoryWithTx(tx queryable) *WagerRepository {
	return &WagerRepository{q: tx}
}

const wagerColumns = `
	id, player_one, player_two, stake, amount, category, description, status,
	winner, invite_code, platform_fee, claimed_at, settled_at, created_at, updated_at`

func scanWager(row rowScanner) (*models.Wager, error) {
	var wager models.Wager
	err := row.Scan(
		&wager.ID,
		&wager.PlayerOne,
		&wager.PlayerTwo,
		&wager.Stake,
		&wager.Amount,
		&wager.Category,
		&wager.Description,
		&wager.Status,
		&wager.Winner,
		&wager.InviteCode,
		&wager.PlatformFee,
		&wager.ClaimedAt,
		&wager.SettledAt,
		&wager.CreatedAt,
		&wager.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &wager, nil
}

func (r *WagerRepository) getOne(ctx context.Context, query string, arg any) (*models.Wager, error) {
	wager, err := scanWager(r.q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return wager, err
}

func (r *WagerRepository) list(ctx context.Context, query string, args ...any) ([]*models.Wager, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wagers []*models.Wager
	for rows.Next() {
		wager, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wager: %w", err)
		}
		wagers = append(wagers, wager)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wagers: %w", err)
	}

	return wagers, nil
}

// Create inserts a new wager
func (r *WagerRepository) Create(ctx context.Context, wager *models.Wager) error {
	query := `
		INSERT INTO wagers (player_one, player_two, stake, amount, category, description, status, invite_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		wager.PlayerOne,
		wager.PlayerTwo,
		wager.Stake,
		wager.Amount,
		wager.Category,
		wager.Description,
		wager.Status,
		wager.InviteCode,
	).Scan(&wager.ID, &wager.CreatedAt, &wager.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wager: %w", err)
	}

	return nil
}

// GetByID retrieves a wager by id
func (r *WagerRepository) GetByID(ctx context.Context, id int64) (*models.Wager, error) {
	wager, err := r.getOne(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get wager %d: %w", id, err)
	}
	return wager, nil
}

// GetForUpdate retrieves a wager and locks the row for the rest of the transaction
func (r *WagerRepository) GetForUpdate(ctx context.Context, id int64) (*models.Wager, error) {
	wager, err := r.getOne(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wager %d: %w", id, err)
	}
	return wager, nil
}

// GetByInviteCode retrieves a wager by its invite code
func (r *WagerRepository) GetByInviteCode(ctx context.Context, code string) (*models.Wager, error) {
	wager, err := r.getOne(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE invite_code = $1`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get wager by invite code: %w", err)
	}
	return wager, nil
}

// ListByUser returns wagers the user plays in, newest first. Deleted wagers are omitted.
func (r *WagerRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Wager, error) {
	query := `
		SELECT ` + wagerColumns + `
		FROM wagers
		WHERE (player_one = $1 OR player_two = $1)
		  AND status <> 'DELETED'
		ORDER BY created_at DESC, id DESC
	`

	wagers, err := r.list(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wagers for user %d: %w", userID, err)
	}
	return wagers, nil
}

// ListPendingClaims returns ACTIVE wagers with a claimed winner, oldest claim first
func (r *WagerRepository) ListPendingClaims(ctx context.Context) ([]*models.Wager, error) {
	query := `
		SELECT ` + wagerColumns + `
		FROM wagers
		WHERE status = 'ACTIVE' AND winner IS NOT NULL
		ORDER BY claimed_at ASC
	`

	wagers, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending claims: %w", err)
	}
	return wagers, nil
}

// Update persists the mutable wager fields
func (r *WagerRepository) Update(ctx context.Context, wager *models.Wager) error {
	query := `
		UPDATE wagers
		SET player_two = $2,
		    stake = $3,
		    amount = $4,
		    category = $5,
		    description = $6,
		    status = $7,
		    winner = $8,
		    platform_fee = $9,
		    claimed_at = $10,
		    settled_at = $11,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		wager.ID,
		wager.PlayerTwo,
		wager.Stake,
		wager.Amount,
		wager.Category,
		wager.Description,
		wager.Status,
		wager.Winner,
		wager.PlatformFee,
		wager.ClaimedAt,
		wager.SettledAt,
	).Scan(&wager.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("wager %d not found", wager.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update wager %d: %w", wager.ID, err)
	}

	return nil
}
