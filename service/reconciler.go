package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wagerbook/config"
	"wagerbook/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Reconciliation outcomes reported to metrics
const (
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
	OutcomeRetry     = "retry"
	OutcomeInitiated = "initiated"
	OutcomeSkipped   = "skipped"
)

const reasonRetryBudgetExhausted = "retry budget exhausted"

// reconcileResult carries what must happen once the unit of work commits
type reconcileResult struct {
	tx      *models.Transaction
	outcome string
	email   string
	retryIn time.Duration
}

type reconciler struct {
	uowFactory UnitOfWorkFactory
	ledger     *LedgerService
	fiat       FiatGateway
	chain      ChainClient
	rates      RateProvider
	jobs       JobQueue
	notifier   Notifier
	metrics    Metrics
	config     *config.Config
	now        func() time.Time
}

// NewReconciler creates a new transaction reconciler
func NewReconciler(
	uowFactory UnitOfWorkFactory,
	ledger *LedgerService,
	fiat FiatGateway,
	chain ChainClient,
	rates RateProvider,
	jobs JobQueue,
	notifier Notifier,
	metrics Metrics,
	cfg *config.Config,
) Reconciler {
	return &reconciler{
		uowFactory: uowFactory,
		ledger:     ledger,
		fiat:       fiat,
		chain:      chain,
		rates:      rates,
		jobs:       jobs,
		notifier:   notifier,
		metrics:    metrics,
		config:     cfg,
		now:        time.Now,
	}
}

// Reconcile drives one PENDING rail transaction towards SUCCESS or FAILED.
// Withdrawals without a rail reference have their payout initiated first.
func (r *reconciler) Reconcile(ctx context.Context, txID int64) error {
	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	tx, err := uow.TransactionRepository().GetForUpdate(ctx, txID)
	if err != nil {
		return fmt.Errorf("failed to lock transaction: %w", err)
	}
	if tx == nil {
		return fmt.Errorf("transaction %d: %w", txID, ErrTransactionNotFound)
	}
	if !tx.IsPending() {
		log.WithFields(log.Fields{
			"transactionID": txID,
			"status":        tx.Status,
		}).Debug("Transaction already final, nothing to reconcile")
		return nil
	}
	if !isExternalRail(tx.Rail) {
		return fmt.Errorf("transaction %d on rail %s: %w", txID, tx.Rail, ErrUnsupportedRail)
	}
	// Redelivered or recovered jobs arriving early must not spend a retry
	if !tx.DueAt(r.now()) {
		log.WithFields(log.Fields{
			"transactionID": txID,
			"nextAttemptAt": tx.NextAttemptAt,
		}).Debug("Reconciliation attempt not due yet, skipping")
		r.metrics.RecordReconciliation(ctx, tx.Rail, OutcomeSkipped)
		return nil
	}

	var result *reconcileResult
	if tx.Direction == models.DirectionWithdrawal && tx.ExternalRef == nil {
		result, err = r.initiate(ctx, uow, tx)
	} else {
		result, err = r.check(ctx, uow, tx)
	}
	if err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.afterCommit(ctx, result)
	return nil
}

// ApplyFiatEvent resolves the transaction named by a verified webhook event.
// Unknown references and events for rows already final are ignored.
func (r *reconciler) ApplyFiatEvent(ctx context.Context, event models.FiatEvent) error {
	conf := event.Confirmation()
	if conf.Reference == "" {
		return fmt.Errorf("fiat event without reference: %w", ErrInvalidRequest)
	}

	logger := log.WithFields(log.Fields{
		"event":     event.Event,
		"reference": conf.Reference,
	})

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	tx, err := uow.TransactionRepository().GetByExternalRefForUpdate(ctx, models.RailFiat, conf.Reference)
	if err != nil {
		return fmt.Errorf("failed to find transaction: %w", err)
	}
	if tx == nil {
		logger.Warn("Ignoring fiat event for unknown reference")
		return nil
	}
	if !tx.IsPending() {
		logger.WithField("status", tx.Status).Info("Ignoring fiat event for final transaction")
		return nil
	}
	if !eventMatchesDirection(event.Event, tx.Direction) {
		logger.WithField("direction", tx.Direction).Warn("Ignoring fiat event for wrong direction")
		return nil
	}
	if conf.Status == models.ConfirmationPending {
		logger.Debug("Ignoring non-terminal fiat event")
		return nil
	}

	result, err := r.resolve(ctx, uow, tx, &conf)
	if err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.afterCommit(ctx, result)
	return nil
}

// RecoverPending re-enqueues confirmation jobs for PENDING rail transactions
// older than the cutoff, covering enqueues lost to a crash
func (r *reconciler) RecoverPending(ctx context.Context, olderThan time.Duration) (int, error) {
	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	txs, err := uow.TransactionRepository().ListPending(ctx, r.now().Add(-olderThan))
	uow.Rollback()
	if err != nil {
		return 0, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	for i, tx := range txs {
		var delay time.Duration
		if tx.NextAttemptAt != nil {
			delay = max(tx.NextAttemptAt.Sub(r.now()), 0)
		}
		if err := r.jobs.Enqueue(ctx, confirmJobName(tx.Direction), models.TransactionPayload{TransactionID: tx.ID}, delay); err != nil {
			return i, fmt.Errorf("failed to enqueue confirmation for transaction %d: %w", tx.ID, err)
		}
	}

	if len(txs) > 0 {
		log.WithField("count", len(txs)).Info("Re-enqueued pending transactions")
	}

	return len(txs), nil
}

// initiate sends the payout on the rail and stores its reference. It does not
// consume a retry; the first confirmation check is scheduled after RetryDelay.
// If the commit storing the reference fails, the next attempt sends the same
// wd-{id} reference again and the rail must treat it as the same payout.
func (r *reconciler) initiate(ctx context.Context, uow UnitOfWork, tx *models.Transaction) (*reconcileResult, error) {
	amount := tx.ExternalAmount.Decimal
	if !tx.ExternalAmount.Valid {
		converted, err := r.rates.FromCents(ctx, tx.Rail, tx.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to convert amount: %w", err)
		}
		amount = converted
	}

	req := TransferRequest{
		Reference: fmt.Sprintf("wd-%d", tx.ID),
		Recipient: tx.Counterparty,
		Amount:    amount,
		Currency:  r.currency(tx.Rail),
	}

	var ref string
	var err error
	if tx.Rail == models.RailFiat {
		ref, err = r.fiat.Transfer(ctx, req)
	} else {
		ref, err = r.chain.Broadcast(ctx, req)
	}
	if err != nil {
		log.WithError(err).WithField("transactionID", tx.ID).Warn("Payout initiation failed")
		return r.retryOrFail(ctx, uow, tx)
	}

	if err := r.ledger.AttachExternalRef(ctx, uow, tx.ID, ref, r.now().Add(r.config.Reconciler.RetryDelay)); err != nil {
		return nil, err
	}
	tx.ExternalRef = &ref

	log.WithFields(log.Fields{
		"transactionID": tx.ID,
		"rail":          tx.Rail,
		"reference":     ref,
	}).Info("Payout initiated")

	return &reconcileResult{tx: tx, outcome: OutcomeInitiated, retryIn: r.config.Reconciler.RetryDelay}, nil
}

// check asks the rail for the transfer's state and acts on it
func (r *reconciler) check(ctx context.Context, uow UnitOfWork, tx *models.Transaction) (*reconcileResult, error) {
	var conf *models.Confirmation
	var err error
	if tx.Rail == models.RailFiat {
		conf, err = r.fiat.Verify(ctx, *tx.ExternalRef)
	} else {
		conf, err = r.chain.GetConfirmation(ctx, *tx.ExternalRef)
	}
	if err != nil {
		log.WithError(err).WithField("transactionID", tx.ID).Warn("Rail confirmation lookup failed")
		return r.retryOrFail(ctx, uow, tx)
	}
	if conf == nil || conf.Status == models.ConfirmationPending {
		return r.retryOrFail(ctx, uow, tx)
	}

	return r.resolve(ctx, uow, tx, conf)
}

// resolve finalizes a transaction against a terminal confirmation
func (r *reconciler) resolve(ctx context.Context, uow UnitOfWork, tx *models.Transaction, conf *models.Confirmation) (*reconcileResult, error) {
	if conf.Status == models.ConfirmationFailed {
		reason := conf.Reason
		if reason == "" {
			reason = "rejected by rail"
		}
		return r.fail(ctx, uow, tx, reason)
	}

	if problem, err := r.validate(ctx, tx, conf); err != nil {
		return nil, err
	} else if problem != "" {
		return r.fail(ctx, uow, tx, problem)
	}

	confirmed, err := r.ledger.Confirm(ctx, uow, tx.ID)
	if err != nil {
		return nil, err
	}
	return &reconcileResult{tx: confirmed, outcome: OutcomeConfirmed, email: r.email(ctx, uow, tx.UserID)}, nil
}

// validate returns a non-empty description when the confirmation disagrees
// with the recorded transaction
func (r *reconciler) validate(ctx context.Context, tx *models.Transaction, conf *models.Confirmation) (string, error) {
	expected := tx.ExternalAmount.Decimal
	if !tx.ExternalAmount.Valid {
		converted, err := r.rates.FromCents(ctx, tx.Rail, tx.Amount)
		if err != nil {
			return "", fmt.Errorf("failed to convert amount: %w", err)
		}
		expected = converted
	}

	if conf.Amount.Sub(expected).Abs().GreaterThan(r.tolerance(tx.Rail)) {
		return fmt.Sprintf("amount mismatch: expected %s, got %s", expected, conf.Amount), nil
	}
	if !strings.EqualFold(strings.TrimSpace(conf.Recipient), strings.TrimSpace(tx.Counterparty)) {
		return fmt.Sprintf("recipient mismatch: expected %s, got %s", tx.Counterparty, conf.Recipient), nil
	}
	if !strings.EqualFold(strings.TrimSpace(conf.Sender), strings.TrimSpace(tx.Source)) {
		return fmt.Sprintf("sender mismatch: expected %s, got %s", tx.Source, conf.Sender), nil
	}
	return "", nil
}

// retryOrFail spends one retry, or fails the transaction when none are left
func (r *reconciler) retryOrFail(ctx context.Context, uow UnitOfWork, tx *models.Transaction) (*reconcileResult, error) {
	if tx.Retries >= r.config.Reconciler.MaxRetries {
		return r.fail(ctx, uow, tx, reasonRetryBudgetExhausted)
	}

	retries, err := r.ledger.IncrementRetries(ctx, uow, tx.ID, r.now().Add(r.config.Reconciler.RetryDelay))
	if err != nil {
		return nil, err
	}
	tx.Retries = retries

	return &reconcileResult{tx: tx, outcome: OutcomeRetry, retryIn: r.config.Reconciler.RetryDelay}, nil
}

func (r *reconciler) fail(ctx context.Context, uow UnitOfWork, tx *models.Transaction, reason string) (*reconcileResult, error) {
	failed, err := r.ledger.Fail(ctx, uow, tx.ID, reason)
	if err != nil {
		return nil, err
	}
	return &reconcileResult{tx: failed, outcome: OutcomeFailed, email: r.email(ctx, uow, tx.UserID)}, nil
}

// afterCommit schedules follow-up checks and sends notifications. Errors are
// logged; the transaction state is already committed.
func (r *reconciler) afterCommit(ctx context.Context, result *reconcileResult) {
	tx := result.tx
	r.metrics.RecordReconciliation(ctx, tx.Rail, result.outcome)

	logger := log.WithFields(log.Fields{
		"transactionID": tx.ID,
		"rail":          tx.Rail,
		"direction":     tx.Direction,
		"outcome":       result.outcome,
		"retries":       tx.Retries,
	})

	switch result.outcome {
	case OutcomeRetry, OutcomeInitiated:
		if err := r.jobs.Enqueue(ctx, confirmJobName(tx.Direction), models.TransactionPayload{TransactionID: tx.ID}, result.retryIn); err != nil {
			logger.WithError(err).Error("Failed to enqueue confirmation retry")
		}
		logger.Info("Transaction still pending")
		return
	case OutcomeConfirmed:
		logger.Info("Transaction confirmed")
		r.notify(ctx, tx, result.email, NotifyTransactionConfirmed)
	case OutcomeFailed:
		logger.WithField("reason", derefString(tx.FailureReason)).Warn("Transaction failed")
		r.notify(ctx, tx, result.email, NotifyTransactionFailed)
	}
}

func (r *reconciler) notify(ctx context.Context, tx *models.Transaction, email, template string) {
	data := map[string]any{
		"transactionId": tx.ID,
		"rail":          tx.Rail,
		"direction":     tx.Direction,
		"amount":        tx.Amount,
	}
	if tx.FailureReason != nil {
		data["reason"] = *tx.FailureReason
	}

	err := r.notifier.Notify(ctx, Notification{
		UserID:   tx.UserID,
		Email:    email,
		Template: template,
		Data:     data,
	})
	if err != nil {
		log.WithError(err).WithField("transactionID", tx.ID).Warn("Failed to send transaction notification")
	}
}

func (r *reconciler) email(ctx context.Context, uow UnitOfWork, userID int64) string {
	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil || user == nil {
		return ""
	}
	return user.Email
}

func (r *reconciler) tolerance(rail models.Rail) decimal.Decimal {
	if rail == models.RailCrypto {
		return r.config.Crypto.Tolerance
	}
	return r.config.Fiat.Tolerance
}

func (r *reconciler) currency(rail models.Rail) string {
	if rail == models.RailCrypto {
		return r.config.Crypto.Asset
	}
	return "USD"
}

func confirmJobName(direction models.Direction) string {
	if direction == models.DirectionWithdrawal {
		return models.JobWithdrawalConfirm
	}
	return models.JobDepositConfirm
}

// eventMatchesDirection reports whether a webhook event can settle a
// transaction of the given direction: charges are deposits, transfers payouts
func eventMatchesDirection(event string, direction models.Direction) bool {
	switch event {
	case models.FiatEventChargeSuccess:
		return direction == models.DirectionDeposit
	case models.FiatEventTransferSuccess, models.FiatEventTransferFailed, models.FiatEventTransferReversed:
		return direction == models.DirectionWithdrawal
	}
	return false
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
