package repository

import (
	"context"
	"errors"
	"fmt"

	"wagerbook/database"
	"wagerbook/models"

	"github.com/jackc/pgx/v5"
)

// DisputeChatRepository implements the DisputeChatRepository interface
type DisputeChatRepository struct {
	q queryable
}

// NewDisputeChatRepository creates a new dispute chat repository
func NewDisputeChatRepository(db *database.DB) *DisputeChatRepository {
	return &DisputeChatRepository{q: db.Pool}
}

// newDisputeChatRepositoryWithTx creates a new dispute chat repository with a transaction
func newDisputeChatRepositoryWithTx(tx queryable) *DisputeChatRepository {
	return &DisputeChatRepository{q: tx}
}

const disputeChatColumns = `id, admin_id, wager_id, status, channel_ref, created_at, closed_at`

func scanDisputeChat(row rowScanner) (*models.DisputeChat, error) {
	var chat models.DisputeChat
	err := row.Scan(
		&chat.ID,
		&chat.AdminID,
		&chat.WagerID,
		&chat.Status,
		&chat.ChannelRef,
		&chat.CreatedAt,
		&chat.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// Create inserts a dispute chat
func (r *DisputeChatRepository) Create(ctx context.Context, chat *models.DisputeChat) error {
	if chat.Status == "" {
		chat.Status = models.DisputeChatOpen
	}

	query := `
		INSERT INTO dispute_chats (admin_id, wager_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, chat.AdminID, chat.WagerID, chat.Status).Scan(&chat.ID, &chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create dispute chat for wager %d: %w", chat.WagerID, err)
	}

	return nil
}

// GetByID retrieves a dispute chat by id
func (r *DisputeChatRepository) GetByID(ctx context.Context, id int64) (*models.DisputeChat, error) {
	chat, err := scanDisputeChat(r.q.QueryRow(ctx, `SELECT `+disputeChatColumns+` FROM dispute_chats WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute chat %d: %w", id, err)
	}
	return chat, nil
}

// GetByWagerID retrieves the dispute chat of a wager
func (r *DisputeChatRepository) GetByWagerID(ctx context.Context, wagerID int64) (*models.DisputeChat, error) {
	chat, err := scanDisputeChat(r.q.QueryRow(ctx, `SELECT `+disputeChatColumns+` FROM dispute_chats WHERE wager_id = $1`, wagerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute chat for wager %d: %w", wagerID, err)
	}
	return chat, nil
}

// SetChannelRef records the messenger thread opened for a chat
func (r *DisputeChatRepository) SetChannelRef(ctx context.Context, id int64, ref string) error {
	result, err := r.q.Exec(ctx, `UPDATE dispute_chats SET channel_ref = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("failed to set channel on dispute chat %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("dispute chat %d not found", id)
	}
	return nil
}

// Close marks an open chat closed
func (r *DisputeChatRepository) Close(ctx context.Context, id int64) error {
	query := `
		UPDATE dispute_chats
		SET status = 'closed', closed_at = NOW()
		WHERE id = $1 AND status = 'open'
	`

	result, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to close dispute chat %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("dispute chat %d is not open", id)
	}
	return nil
}

// AddMessage appends a message to a chat log
func (r *DisputeChatRepository) AddMessage(ctx context.Context, msg *models.DisputeMessage) error {
	query := `
		INSERT INTO dispute_messages (chat_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query, msg.ChatID, msg.SenderID, msg.Body).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add message to dispute chat %d: %w", msg.ChatID, err)
	}
	return nil
}

// ListMessages returns a chat log in posting order
func (r *DisputeChatRepository) ListMessages(ctx context.Context, chatID int64) ([]*models.DisputeMessage, error) {
	query := `
		SELECT id, chat_id, sender_id, body, created_at
		FROM dispute_messages
		WHERE chat_id = $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for dispute chat %d: %w", chatID, err)
	}
	defer rows.Close()

	var messages []*models.DisputeMessage
	for rows.Next() {
		var msg models.DisputeMessage
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispute message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dispute messages: %w", err)
	}

	return messages, nil
}
