package models

import (
	"time"
)

// User is an account holding a balance in cents
type User struct {
	ID         int64     `db:"id"`
	Username   string    `db:"username"`
	Email      string    `db:"email"`
	ChatHandle *string   `db:"chat_handle"` // Discord user id used for mediation threads
	Balance    int64     `db:"balance"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
