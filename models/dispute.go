package models

import (
	"time"
)

// Admin mediates disputes for one wager category
type Admin struct {
	ID         int64     `db:"id"`
	Username   string    `db:"username"`
	Category   string    `db:"category"`
	Disputes   int       `db:"disputes"` // Open disputes currently assigned
	ChatHandle *string   `db:"chat_handle"`
	CreatedAt  time.Time `db:"created_at"`
}

// DisputeChatStatus represents whether mediation is ongoing
type DisputeChatStatus string

const (
	DisputeChatOpen   DisputeChatStatus = "open"
	DisputeChatClosed DisputeChatStatus = "closed"
)

// DisputeChat is the mediation record for a contested wager
type DisputeChat struct {
	ID         int64             `db:"id"`
	AdminID    int64             `db:"admin_id"`
	WagerID    int64             `db:"wager_id"`
	Status     DisputeChatStatus `db:"status"`
	ChannelRef *string           `db:"channel_ref"` // Discord thread id once opened
	CreatedAt  time.Time         `db:"created_at"`
	ClosedAt   *time.Time        `db:"closed_at"`
}

// DisputeMessage is one entry in a dispute chat log. A nil SenderID is a system message.
type DisputeMessage struct {
	ID        int64     `db:"id"`
	ChatID    int64     `db:"chat_id"`
	SenderID  *int64    `db:"sender_id"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
}
