package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wagerbook/database"
	"wagerbook/models"
	"wagerbook/service"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// TransactionRepository implements the TransactionRepository interface
type TransactionRepository struct {
	q queryable
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

// newTransactionRepositoryWithTx creates a new transaction repository with a transaction
func newTransactionRepositoryWithTx(tx queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

const transactionColumns = `
	id, user_id, amount, rail, direction, kind, status, external_ref, external_amount,
	counterparty, source, retries, idempotency_key, wager_id, balance_before, balance_after,
	metadata, failure_reason, next_attempt_at, created_at, updated_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var metadataJSON []byte

	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Rail,
		&tx.Direction,
		&tx.Kind,
		&tx.Status,
		&tx.ExternalRef,
		&tx.ExternalAmount,
		&tx.Counterparty,
		&tx.Source,
		&tx.Retries,
		&tx.IdempotencyKey,
		&tx.WagerID,
		&tx.BalanceBefore,
		&tx.BalanceAfter,
		&metadataJSON,
		&tx.FailureReason,
		&tx.NextAttemptAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
		}
	}

	return &tx, nil
}

func (r *TransactionRepository) getOne(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	tx, err := scanTransaction(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return tx, err
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txs, nil
}

// Create inserts a transaction row
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	metadata := tx.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction metadata: %w", err)
	}

	query := `
		INSERT INTO transactions
		(user_id, amount, rail, direction, kind, status, external_ref, external_amount,
		 counterparty, source, idempotency_key, wager_id, balance_before, balance_after,
		 metadata, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, retries, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		tx.UserID,
		tx.Amount,
		tx.Rail,
		tx.Direction,
		tx.Kind,
		tx.Status,
		tx.ExternalRef,
		tx.ExternalAmount,
		tx.Counterparty,
		tx.Source,
		tx.IdempotencyKey,
		tx.WagerID,
		tx.BalanceBefore,
		tx.BalanceAfter,
		metadataJSON,
		tx.FailureReason,
	).Scan(&tx.ID, &tx.Retries, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("failed to create transaction for user %d: %w", tx.UserID, service.ErrDuplicateReference)
		}
		return fmt.Errorf("failed to create transaction for user %d: %w", tx.UserID, err)
	}

	tx.Metadata = metadata
	return nil
}

// GetByID retrieves a transaction by id
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	tx, err := r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}
	return tx, nil
}

// GetForUpdate retrieves a transaction and locks the row for the rest of the transaction
func (r *TransactionRepository) GetForUpdate(ctx context.Context, id int64) (*models.Transaction, error) {
	tx, err := r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction %d: %w", id, err)
	}
	return tx, nil
}

// GetByExternalRefForUpdate finds and locks the deposit or withdrawal carrying a rail reference
func (r *TransactionRepository) GetByExternalRefForUpdate(ctx context.Context, rail models.Rail, ref string) (*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE rail = $1 AND external_ref = $2 AND kind IN ('deposit', 'withdrawal')
		FOR UPDATE
	`

	tx, err := r.getOne(ctx, query, rail, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by reference %q: %w", ref, err)
	}
	return tx, nil
}

// ListByUser returns a user's transactions, newest first
func (r *TransactionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	txs, err := r.list(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %d: %w", userID, err)
	}
	return txs, nil
}

// ListPending returns PENDING rail transactions created before the cutoff, oldest first
func (r *TransactionRepository) ListPending(ctx context.Context, createdBefore time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = 'PENDING' AND rail IN ('FIAT', 'CRYPTO') AND created_at < $1
		ORDER BY created_at ASC
	`

	txs, err := r.list(ctx, query, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txs, nil
}

// Finalize moves a PENDING row to its terminal status
func (r *TransactionRepository) Finalize(ctx context.Context, tx *models.Transaction) error {
	if tx.Status == models.TransactionStatusPending {
		return fmt.Errorf("transaction %d: cannot finalize to PENDING", tx.ID)
	}

	query := `
		UPDATE transactions
		SET status = $2,
		    failure_reason = $3,
		    balance_before = $4,
		    balance_after = $5,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		tx.ID,
		tx.Status,
		tx.FailureReason,
		tx.BalanceBefore,
		tx.BalanceAfter,
	).Scan(&tx.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("transaction %d is not pending", tx.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to finalize transaction %d: %w", tx.ID, err)
	}

	return nil
}

// IncrementRetries bumps the retry counter of a PENDING row and pushes its next attempt out
func (r *TransactionRepository) IncrementRetries(ctx context.Context, id int64, nextAttemptAt time.Time) (int, error) {
	query := `
		UPDATE transactions
		SET retries = retries + 1, next_attempt_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING retries
	`

	var retries int
	err := r.q.QueryRow(ctx, query, id, nextAttemptAt).Scan(&retries)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("transaction %d is not pending", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment retries for transaction %d: %w", id, err)
	}

	return retries, nil
}

// SetExternalRef attaches a rail reference to a PENDING row and sets when it is next checked
func (r *TransactionRepository) SetExternalRef(ctx context.Context, id int64, ref string, nextAttemptAt time.Time) error {
	query := `
		UPDATE transactions
		SET external_ref = $2, next_attempt_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`

	result, err := r.q.Exec(ctx, query, id, ref, nextAttemptAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("failed to set reference on transaction %d: %w", id, service.ErrDuplicateReference)
		}
		return fmt.Errorf("failed to set reference on transaction %d: %w", id, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d is not pending", id)
	}

	return nil
}
