package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rail is the channel a money movement travels through
type Rail string

const (
	RailFiat   Rail = "FIAT"
	RailCrypto Rail = "CRYPTO"
	RailWallet Rail = "WALLET" // Internal stake, refund and payout movements
)

// Direction is whether money enters or leaves a user's balance
type Direction string

const (
	DirectionDeposit    Direction = "DEPOSIT"
	DirectionWithdrawal Direction = "WITHDRAWAL"
)

// TransactionKind classifies what caused a balance movement
type TransactionKind string

const (
	TransactionKindDeposit            TransactionKind = "deposit"
	TransactionKindWithdrawal         TransactionKind = "withdrawal"
	TransactionKindWithdrawalReversal TransactionKind = "withdrawal_reversal"
	TransactionKindWagerStake         TransactionKind = "wager_stake"
	TransactionKindWagerRefund        TransactionKind = "wager_refund"
	TransactionKindWagerPayout        TransactionKind = "wager_payout"
)

// TransactionStatus represents the lifecycle of a transaction
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// Transaction is one row per money movement. Rows are immutable once SUCCESS or
// FAILED; while PENDING only Retries, ExternalRef and NextAttemptAt change.
type Transaction struct {
	ID             int64               `db:"id"`
	UserID         int64               `db:"user_id"`
	Amount         int64               `db:"amount"` // Positive, in cents
	Rail           Rail                `db:"rail"`
	Direction      Direction           `db:"direction"`
	Kind           TransactionKind     `db:"kind"`
	Status         TransactionStatus   `db:"status"`
	ExternalRef    *string             `db:"external_ref"`
	ExternalAmount decimal.NullDecimal `db:"external_amount"` // Rail-native amount, e.g. token units
	Counterparty   string              `db:"counterparty"`    // Expected recipient
	Source         string              `db:"source"`          // Expected sender
	Retries        int                 `db:"retries"`
	IdempotencyKey *string             `db:"idempotency_key"`
	WagerID        *int64              `db:"wager_id"`
	BalanceBefore  *int64              `db:"balance_before"`
	BalanceAfter   *int64              `db:"balance_after"`
	Metadata       map[string]any      `db:"metadata"`
	FailureReason  *string             `db:"failure_reason"`
	NextAttemptAt  *time.Time          `db:"next_attempt_at"` // Earliest time the reconciler may check the rail again
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
}

// IsPending reports whether the transaction still awaits reconciliation
func (t *Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// DueAt reports whether a reconciliation attempt may run at now
func (t *Transaction) DueAt(now time.Time) bool {
	return t.NextAttemptAt == nil || !now.Before(*t.NextAttemptAt)
}

// SignedAmount returns the balance delta this transaction represents
func (t *Transaction) SignedAmount() int64 {
	if t.Direction == DirectionWithdrawal {
		return -t.Amount
	}
	return t.Amount
}
