package service

import (
	"context"
	"fmt"
	"time"

	"wagerbook/events"
	"wagerbook/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Mutation describes one balance movement. Delta is signed: positive credits
// the user, negative debits.
type Mutation struct {
	UserID         int64
	Delta          int64
	Rail           models.Rail
	Kind           models.TransactionKind
	Status         models.TransactionStatus // Defaults to SUCCESS
	WagerID        *int64
	ExternalRef    *string
	ExternalAmount decimal.NullDecimal
	Counterparty   string
	Source         string
	IdempotencyKey *string
	Metadata       map[string]any
}

func (m Mutation) direction() models.Direction {
	if m.Delta < 0 {
		return models.DirectionWithdrawal
	}
	return models.DirectionDeposit
}

func (m Mutation) transaction(status models.TransactionStatus) *models.Transaction {
	amount := m.Delta
	if amount < 0 {
		amount = -amount
	}
	return &models.Transaction{
		UserID:         m.UserID,
		Amount:         amount,
		Rail:           m.Rail,
		Direction:      m.direction(),
		Kind:           m.Kind,
		Status:         status,
		ExternalRef:    m.ExternalRef,
		ExternalAmount: m.ExternalAmount,
		Counterparty:   m.Counterparty,
		Source:         m.Source,
		IdempotencyKey: m.IdempotencyKey,
		WagerID:        m.WagerID,
		Metadata:       m.Metadata,
	}
}

// LedgerService is the only writer of user balances. Every method runs inside
// the caller's unit of work so the balance write and its transaction row
// commit or roll back together.
type LedgerService struct{}

// NewLedgerService creates a new ledger service
func NewLedgerService() *LedgerService {
	return &LedgerService{}
}

// Apply locks the user row, applies the delta and records the transaction.
// A delta that would leave the balance negative fails with ErrInsufficientFunds
// before anything is written.
func (l *LedgerService) Apply(ctx context.Context, uow UnitOfWork, m Mutation) (*models.Transaction, error) {
	if m.Delta == 0 {
		return nil, ErrInvalidAmount
	}

	user, err := uow.UserRepository().GetForUpdate(ctx, m.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", m.UserID, ErrUserNotFound)
	}

	oldBalance := user.Balance
	newBalance := oldBalance + m.Delta
	if newBalance < 0 {
		return nil, fmt.Errorf("user %d has %d, needs %d: %w", m.UserID, oldBalance, -m.Delta, ErrInsufficientFunds)
	}

	if err := uow.UserRepository().UpdateBalance(ctx, m.UserID, newBalance); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	status := m.Status
	if status == "" {
		status = models.TransactionStatusSuccess
	}
	tx := m.transaction(status)
	tx.BalanceBefore = &oldBalance
	tx.BalanceAfter = &newBalance

	if err := uow.TransactionRepository().Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:        m.UserID,
		TransactionID: tx.ID,
		OldBalance:    oldBalance,
		NewBalance:    newBalance,
		Kind:          m.Kind,
		ChangeAmount:  m.Delta,
	})

	log.WithFields(log.Fields{
		"userID":        m.UserID,
		"transactionID": tx.ID,
		"kind":          m.Kind,
		"delta":         m.Delta,
		"newBalance":    newBalance,
	}).Debug("Applied balance mutation")

	return tx, nil
}

// RecordPending inserts a PENDING deposit without touching the balance. The
// credit happens in Confirm.
func (l *LedgerService) RecordPending(ctx context.Context, uow UnitOfWork, m Mutation) (*models.Transaction, error) {
	if m.Delta <= 0 {
		return nil, ErrInvalidAmount
	}

	tx := m.transaction(models.TransactionStatusPending)
	if err := uow.TransactionRepository().Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record pending transaction: %w", err)
	}

	return tx, nil
}

// Confirm moves a PENDING transaction to SUCCESS. Deposits are credited now;
// withdrawals were debited when they were initiated and only change status.
func (l *LedgerService) Confirm(ctx context.Context, uow UnitOfWork, txID int64) (*models.Transaction, error) {
	tx, err := l.lockPending(ctx, uow, txID)
	if err != nil {
		return nil, err
	}

	if tx.Direction == models.DirectionDeposit {
		user, err := uow.UserRepository().GetForUpdate(ctx, tx.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock user: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("user %d: %w", tx.UserID, ErrUserNotFound)
		}

		oldBalance := user.Balance
		newBalance := oldBalance + tx.Amount
		if err := uow.UserRepository().UpdateBalance(ctx, tx.UserID, newBalance); err != nil {
			return nil, fmt.Errorf("failed to update balance: %w", err)
		}
		tx.BalanceBefore = &oldBalance
		tx.BalanceAfter = &newBalance

		uow.EventBus().Publish(events.BalanceChangeEvent{
			UserID:        tx.UserID,
			TransactionID: tx.ID,
			OldBalance:    oldBalance,
			NewBalance:    newBalance,
			Kind:          tx.Kind,
			ChangeAmount:  tx.Amount,
		})
	}

	tx.Status = models.TransactionStatusSuccess
	if err := uow.TransactionRepository().Finalize(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to confirm transaction: %w", err)
	}

	uow.EventBus().Publish(events.TransactionConfirmedEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Rail:          tx.Rail,
		Direction:     tx.Direction,
		Amount:        tx.Amount,
	})

	return tx, nil
}

// Fail moves a PENDING transaction to FAILED. A withdrawal's optimistic debit
// is credited back with a withdrawal_reversal row in the same unit of work.
func (l *LedgerService) Fail(ctx context.Context, uow UnitOfWork, txID int64, reason string) (*models.Transaction, error) {
	tx, err := l.lockPending(ctx, uow, txID)
	if err != nil {
		return nil, err
	}

	tx.Status = models.TransactionStatusFailed
	tx.FailureReason = &reason
	if err := uow.TransactionRepository().Finalize(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to fail transaction: %w", err)
	}

	if tx.Direction == models.DirectionWithdrawal {
		_, err := l.Apply(ctx, uow, Mutation{
			UserID:  tx.UserID,
			Delta:   tx.Amount,
			Rail:    tx.Rail,
			Kind:    models.TransactionKindWithdrawalReversal,
			WagerID: tx.WagerID,
			Metadata: map[string]any{
				"reversedTransactionId": tx.ID,
				"reason":                reason,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to reverse withdrawal %d: %w", tx.ID, err)
		}
	}

	uow.EventBus().Publish(events.TransactionFailedEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Rail:          tx.Rail,
		Direction:     tx.Direction,
		Amount:        tx.Amount,
		Reason:        reason,
	})

	return tx, nil
}

// IncrementRetries bumps the retry counter of a PENDING transaction. Attempts
// arriving before nextAttemptAt are skipped by the reconciler.
func (l *LedgerService) IncrementRetries(ctx context.Context, uow UnitOfWork, txID int64, nextAttemptAt time.Time) (int, error) {
	retries, err := uow.TransactionRepository().IncrementRetries(ctx, txID, nextAttemptAt)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retries: %w", err)
	}
	return retries, nil
}

// AttachExternalRef stores the rail reference of a PENDING transaction
func (l *LedgerService) AttachExternalRef(ctx context.Context, uow UnitOfWork, txID int64, ref string, nextAttemptAt time.Time) error {
	if err := uow.TransactionRepository().SetExternalRef(ctx, txID, ref, nextAttemptAt); err != nil {
		return fmt.Errorf("failed to attach external reference: %w", err)
	}
	return nil
}

func (l *LedgerService) lockPending(ctx context.Context, uow UnitOfWork, txID int64) (*models.Transaction, error) {
	tx, err := uow.TransactionRepository().GetForUpdate(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction %d: %w", txID, ErrTransactionNotFound)
	}
	if !tx.IsPending() {
		return nil, fmt.Errorf("transaction %d is %s: %w", txID, tx.Status, ErrTransactionFinal)
	}
	return tx, nil
}
