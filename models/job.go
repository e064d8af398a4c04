package models

import (
	"encoding/json"
	"time"
)

// Job names carried on the job queue
const (
	JobSettleWager       = "settle-wager"
	JobContestWager      = "contest-wager"
	JobWithdrawalConfirm = "withdrawal-confirm"
	JobDepositConfirm    = "deposit-confirm"
)

// SettleWagerPayload is carried by the auto-settlement job
type SettleWagerPayload struct {
	WagerID    int64 `json:"wagerId"`
	ClaimantID int64 `json:"claimantId"`
	OpponentID int64 `json:"opponentId"`
}

// ContestWagerPayload is carried by the job that opens mediation for a disputed wager
type ContestWagerPayload struct {
	WagerID int64 `json:"wagerId"`
}

// TransactionPayload is carried by deposit and withdrawal confirmation jobs
type TransactionPayload struct {
	TransactionID int64 `json:"transactionId"`
}

// ScheduledJob is a time-delayed job held by the settlement scheduler
type ScheduledJob struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	FireAt  time.Time       `json:"fireAt"`
	Attempt int             `json:"attempt"`
}
