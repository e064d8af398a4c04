package models

import (
	"fmt"
	"time"
)

// WagerStatus represents the state of a wager
type WagerStatus string

const (
	WagerStatusPending WagerStatus = "PENDING"
	WagerStatusActive  WagerStatus = "ACTIVE"
	WagerStatusDispute WagerStatus = "DISPUTE"
	WagerStatusSettled WagerStatus = "SETTLED"
	WagerStatusDeleted WagerStatus = "DELETED"
)

// Wager is a two-party staked bet. Amount is always twice the stake.
type Wager struct {
	ID          int64       `db:"id"`
	PlayerOne   int64       `db:"player_one"`
	PlayerTwo   *int64      `db:"player_two"`
	Stake       int64       `db:"stake"`
	Amount      int64       `db:"amount"`
	Category    string      `db:"category"`
	Description string      `db:"description"`
	Status      WagerStatus `db:"status"`
	Winner      *int64      `db:"winner"`
	InviteCode  string      `db:"invite_code"`
	PlatformFee *int64      `db:"platform_fee"`
	ClaimedAt   *time.Time  `db:"claimed_at"`
	SettledAt   *time.Time  `db:"settled_at"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

// IsPlayer checks if a user is one of the wager's players
func (w *Wager) IsPlayer(userID int64) bool {
	return w.PlayerOne == userID || (w.PlayerTwo != nil && *w.PlayerTwo == userID)
}

// Opponent returns the other player's id, or 0 when userID is not a player
// or the wager has no second player yet
func (w *Wager) Opponent(userID int64) int64 {
	if w.PlayerTwo == nil {
		return 0
	}
	switch userID {
	case w.PlayerOne:
		return *w.PlayerTwo
	case *w.PlayerTwo:
		return w.PlayerOne
	}
	return 0
}

// HasPendingClaim reports whether a player has claimed the prize and the claim
// is still awaiting accept, contest or timeout
func (w *Wager) HasPendingClaim() bool {
	return w.Status == WagerStatusActive && w.Winner != nil
}

// IsTerminal reports whether the wager can no longer change
func (w *Wager) IsTerminal() bool {
	return w.Status == WagerStatusSettled || w.Status == WagerStatusDeleted
}

// SettlementJobID is the scheduler key for this wager's auto-settlement job
func (w *Wager) SettlementJobID() string {
	return SettlementJobID(w.ID)
}

// SettlementJobID builds the scheduler key for a wager's auto-settlement job
func SettlementJobID(wagerID int64) string {
	return fmt.Sprintf("wager-%d", wagerID)
}
