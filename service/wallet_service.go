package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wagerbook/config"
	"wagerbook/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type walletService struct {
	uowFactory UnitOfWorkFactory
	ledger     *LedgerService
	guard      IdempotencyGuard
	jobs       JobQueue
	rates      RateProvider
	config     *config.Config
}

// NewWalletService creates a new wallet service
func NewWalletService(
	uowFactory UnitOfWorkFactory,
	ledger *LedgerService,
	guard IdempotencyGuard,
	jobs JobQueue,
	rates RateProvider,
	cfg *config.Config,
) WalletService {
	return &walletService{
		uowFactory: uowFactory,
		ledger:     ledger,
		guard:      guard,
		jobs:       jobs,
		rates:      rates,
		config:     cfg,
	}
}

// Withdraw debits the user optimistically and records a PENDING withdrawal
// for the reconciler. A repeated idempotency key inside the guard's window
// returns a duplicate outcome without touching the ledger.
func (s *walletService) Withdraw(ctx context.Context, userID int64, req WithdrawalRequest) (*WithdrawalOutcome, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, ErrMissingIdempotencyKey
	}
	if !isExternalRail(req.Rail) {
		return nil, fmt.Errorf("rail %q: %w", req.Rail, ErrUnsupportedRail)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount %d: %w", req.Amount, ErrInvalidAmount)
	}
	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		return nil, fmt.Errorf("destination is required: %w", ErrInvalidRequest)
	}

	scope := idempotencyScope(req.Rail)
	scopedKey := fmt.Sprintf("%d:%s", userID, key)

	admission, err := s.guard.Admit(ctx, scope, scopedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if admission == models.AdmissionDuplicate {
		log.WithFields(log.Fields{
			"userID": userID,
			"key":    key,
		}).Info("Duplicate withdrawal request suppressed")
		return &WithdrawalOutcome{Duplicate: true}, nil
	}

	tx, err := s.recordWithdrawal(ctx, userID, req.Rail, req.Amount, destination, key)
	if err != nil {
		if relErr := s.guard.Release(ctx, scope, scopedKey); relErr != nil {
			log.WithError(relErr).WithField("userID", userID).Warn("Failed to release idempotency key")
		}
		return nil, err
	}

	// The payout is initiated by the confirmation job. A lost enqueue is picked
	// up by Reconciler.RecoverPending on the next start.
	if err := s.jobs.Enqueue(ctx, models.JobWithdrawalConfirm, models.TransactionPayload{TransactionID: tx.ID}, 0); err != nil {
		log.WithError(err).WithField("transactionID", tx.ID).Error("Failed to enqueue withdrawal confirmation")
	}

	log.WithFields(log.Fields{
		"userID":        userID,
		"transactionID": tx.ID,
		"rail":          req.Rail,
		"amount":        req.Amount,
	}).Info("Withdrawal initiated")

	return &WithdrawalOutcome{Transaction: tx}, nil
}

func (s *walletService) recordWithdrawal(ctx context.Context, userID int64, rail models.Rail, amount int64, destination, key string) (*models.Transaction, error) {
	native, err := s.rates.FromCents(ctx, rail, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to convert amount: %w", err)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	tx, err := s.ledger.Apply(ctx, uow, Mutation{
		UserID:         userID,
		Delta:          -amount,
		Rail:           rail,
		Kind:           models.TransactionKindWithdrawal,
		Status:         models.TransactionStatusPending,
		ExternalAmount: decimal.NewNullDecimal(native),
		Counterparty:   destination,
		Source:         s.platformAccount(rail),
		IdempotencyKey: &key,
	})
	if errors.Is(err, ErrInsufficientFunds) {
		return nil, fmt.Errorf("withdrawal of %d: %w", amount, ErrInsufficientBalance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to debit withdrawal: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return tx, nil
}

// Deposit records a PENDING deposit the user says they have sent. The balance
// is credited only once the rail confirms it.
func (s *walletService) Deposit(ctx context.Context, userID int64, req DepositRequest) (*models.Transaction, error) {
	if !isExternalRail(req.Rail) {
		return nil, fmt.Errorf("rail %q: %w", req.Rail, ErrUnsupportedRail)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("amount %s: %w", req.Amount, ErrInvalidAmount)
	}
	reference := strings.TrimSpace(req.Reference)
	source := strings.TrimSpace(req.Source)
	if reference == "" || source == "" {
		return nil, fmt.Errorf("reference and source are required: %w", ErrInvalidRequest)
	}

	cents, err := s.rates.ToCents(ctx, req.Rail, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to convert amount: %w", err)
	}
	if cents <= 0 {
		return nil, fmt.Errorf("amount %s rounds to zero: %w", req.Amount, ErrInvalidAmount)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}

	tx, err := s.ledger.RecordPending(ctx, uow, Mutation{
		UserID:         userID,
		Delta:          cents,
		Rail:           req.Rail,
		Kind:           models.TransactionKindDeposit,
		ExternalRef:    &reference,
		ExternalAmount: decimal.NewNullDecimal(req.Amount),
		Counterparty:   s.platformAccount(req.Rail),
		Source:         source,
	})
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.jobs.Enqueue(ctx, models.JobDepositConfirm, models.TransactionPayload{TransactionID: tx.ID}, s.config.Reconciler.InitialDelay); err != nil {
		log.WithError(err).WithField("transactionID", tx.ID).Error("Failed to enqueue deposit confirmation")
	}

	log.WithFields(log.Fields{
		"userID":        userID,
		"transactionID": tx.ID,
		"rail":          req.Rail,
		"reference":     reference,
		"cents":         cents,
	}).Info("Deposit recorded")

	return tx, nil
}

// Balance returns the user with their current balance
func (s *walletService) Balance(ctx context.Context, userID int64) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}

	return user, nil
}

// History returns the user's most recent transactions
func (s *walletService) History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	txs, err := uow.TransactionRepository().ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return txs, nil
}

func (s *walletService) platformAccount(rail models.Rail) string {
	if rail == models.RailCrypto {
		return s.config.Crypto.PlatformAddress
	}
	return s.config.Fiat.PlatformAccount
}

func isExternalRail(rail models.Rail) bool {
	return rail == models.RailFiat || rail == models.RailCrypto
}

func idempotencyScope(rail models.Rail) string {
	if rail == models.RailFiat {
		return models.IdempotencyScopeFiat
	}
	return models.IdempotencyScopeWallet
}
