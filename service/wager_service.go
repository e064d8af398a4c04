package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"wagerbook/config"
	"wagerbook/events"
	"wagerbook/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const inviteCodeAttempts = 5

type wagerService struct {
	uowFactory UnitOfWorkFactory
	ledger     *LedgerService
	disputes   *DisputeService
	scheduler  SettlementScheduler
	jobs       JobQueue
	notifier   Notifier
	metrics    Metrics
	fees       *FeeSchedule
	config     config.WagerConfig
	now        func() time.Time
}

// NewWagerService creates a new wager service
func NewWagerService(
	uowFactory UnitOfWorkFactory,
	ledger *LedgerService,
	disputes *DisputeService,
	scheduler SettlementScheduler,
	jobs JobQueue,
	notifier Notifier,
	metrics Metrics,
	fees *FeeSchedule,
	cfg config.WagerConfig,
) WagerService {
	return &wagerService{
		uowFactory: uowFactory,
		ledger:     ledger,
		disputes:   disputes,
		scheduler:  scheduler,
		jobs:       jobs,
		notifier:   notifier,
		metrics:    metrics,
		fees:       fees,
		config:     cfg,
		now:        time.Now,
	}
}

// Create opens a PENDING wager and debits the creator's stake
func (s *wagerService) Create(ctx context.Context, userID int64, req CreateWagerRequest) (*models.Wager, error) {
	if req.Stake < s.config.MinStake {
		return nil, fmt.Errorf("stake %d below minimum %d: %w", req.Stake, s.config.MinStake, ErrInvalidStake)
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, fmt.Errorf("category is required: %w", ErrInvalidRequest)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	code, err := s.newInviteCode(ctx, uow)
	if err != nil {
		return nil, err
	}

	wager := &models.Wager{
		PlayerOne:   userID,
		Stake:       req.Stake,
		Amount:      2 * req.Stake,
		Category:    category,
		Description: strings.TrimSpace(req.Description),
		Status:      models.WagerStatusPending,
		InviteCode:  code,
	}
	if err := uow.WagerRepository().Create(ctx, wager); err != nil {
		return nil, fmt.Errorf("failed to create wager: %w", err)
	}

	if _, err := s.debitStake(ctx, uow, userID, wager.ID, req.Stake); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.WagerCreatedEvent{
		WagerID:    wager.ID,
		CreatorID:  userID,
		Stake:      wager.Stake,
		Category:   wager.Category,
		InviteCode: wager.InviteCode,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"wagerID": wager.ID,
		"userID":  userID,
		"stake":   wager.Stake,
	}).Info("Wager created")

	return wager, nil
}

// Update patches a PENDING wager. A stake change moves only the difference.
func (s *wagerService) Update(ctx context.Context, userID, wagerID int64, req UpdateWagerRequest) (*models.Wager, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := s.lockWager(ctx, uow, wagerID)
	if err != nil {
		return nil, err
	}
	if wager.PlayerOne != userID {
		return nil, fmt.Errorf("only the creator can update wager %d: %w", wagerID, ErrForbidden)
	}
	if wager.Status != models.WagerStatusPending {
		return nil, fmt.Errorf("wager %d is %s: %w", wagerID, wager.Status, ErrInvalidState)
	}

	if req.Stake != nil && *req.Stake != wager.Stake {
		newStake := *req.Stake
		if newStake < s.config.MinStake {
			return nil, fmt.Errorf("stake %d below minimum %d: %w", newStake, s.config.MinStake, ErrInvalidStake)
		}

		// balance + oldStake >= newStake is the same as the debit of the difference succeeding
		if diff := newStake - wager.Stake; diff > 0 {
			if _, err := s.debitStake(ctx, uow, userID, wager.ID, diff); err != nil {
				return nil, err
			}
		} else {
			if _, err := s.ledger.Apply(ctx, uow, Mutation{
				UserID:  userID,
				Delta:   -diff,
				Rail:    models.RailWallet,
				Kind:    models.TransactionKindWagerRefund,
				WagerID: &wager.ID,
			}); err != nil {
				return nil, fmt.Errorf("failed to refund stake difference: %w", err)
			}
		}

		wager.Stake = newStake
		wager.Amount = 2 * newStake
	}

	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return nil, fmt.Errorf("category is required: %w", ErrInvalidRequest)
		}
		wager.Category = category
	}
	if req.Description != nil {
		wager.Description = strings.TrimSpace(*req.Description)
	}

	if err := uow.WagerRepository().Update(ctx, wager); err != nil {
		return nil, fmt.Errorf("failed to update wager: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return wager, nil
}

// Join adds the second player and activates the wager
func (s *wagerService) Join(ctx context.Context, userID, wagerID int64) (*models.Wager, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := s.lockWager(ctx, uow, wagerID)
	if err != nil {
		return nil, err
	}
	if wager.PlayerOne == userID {
		return nil, fmt.Errorf("creator cannot join own wager: %w", ErrInvalidOperation)
	}
	if wager.PlayerTwo != nil || wager.Status != models.WagerStatusPending {
		return nil, fmt.Errorf("wager %d is not open: %w", wagerID, ErrCapacityExceeded)
	}

	if _, err := s.debitStake(ctx, uow, userID, wager.ID, wager.Amount/2); err != nil {
		return nil, err
	}

	wager.PlayerTwo = &userID
	wager.Status = models.WagerStatusActive
	if err := uow.WagerRepository().Update(ctx, wager); err != nil {
		return nil, fmt.Errorf("failed to update wager: %w", err)
	}

	uow.EventBus().Publish(events.WagerJoinedEvent{
		WagerID:   wager.ID,
		CreatorID: wager.PlayerOne,
		JoinerID:  userID,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"wagerID":  wager.ID,
		"joinerID": userID,
	}).Info("Wager joined")

	return wager, nil
}

// JoinByInvite resolves an invite code and joins that wager
func (s *wagerService) JoinByInvite(ctx context.Context, userID int64, code string) (*models.Wager, error) {
	wager, err := s.FindByInvite(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.Join(ctx, userID, wager.ID)
}

// FindByInvite looks up a wager by invite code
func (s *wagerService) FindByInvite(ctx context.Context, code string) (*models.Wager, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := uow.WagerRepository().GetByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("failed to find wager: %w", err)
	}
	if wager == nil || wager.Status == models.WagerStatusDeleted {
		return nil, fmt.Errorf("invite code %q: %w", code, ErrNotFound)
	}

	return wager, nil
}

// Get returns a wager by id
func (s *wagerService) Get(ctx context.Context, wagerID int64) (*models.Wager, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := uow.WagerRepository().GetByID(ctx, wagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wager: %w", err)
	}
	if wager == nil {
		return nil, fmt.Errorf("wager %d: %w", wagerID, ErrNotFound)
	}

	return wager, nil
}

// ListByUser returns the wagers a user plays in
func (s *wagerService) ListByUser(ctx context.Context, userID int64) ([]*models.Wager, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wagers, err := uow.WagerRepository().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wagers: %w", err)
	}

	return wagers, nil
}

// Claim records a player's claim to the pot and starts the claim window
func (s *wagerService) Claim(ctx context.Context, userID, wagerID int64) (*models.Wager, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := s.lockWager(ctx, uow, wagerID)
	if err != nil {
		return nil, err
	}
	if wager.Status == models.WagerStatusSettled {
		return nil, fmt.Errorf("wager %d: %w", wagerID, ErrAlreadySettled)
	}
	if !wager.IsPlayer(userID) {
		return nil, fmt.Errorf("user %d does not play in wager %d: %w", userID, wagerID, ErrForbidden)
	}
	if wager.Status != models.WagerStatusActive {
		return nil, fmt.Errorf("wager %d is %s: %w", wagerID, wager.Status, ErrInvalidState)
	}
	if wager.Winner != nil {
		return nil, fmt.Errorf("wager %d: %w", wagerID, ErrClaimPending)
	}

	now := s.now()
	opponentID := wager.Opponent(userID)
	wager.Winner = &userID
	wager.ClaimedAt = &now
	if err := uow.WagerRepository().Update(ctx, wager); err != nil {
		return nil, fmt.Errorf("failed to update wager: %w", err)
	}

	job, err := settlementJob(models.SettleWagerPayload{
		WagerID:    wager.ID,
		ClaimantID: userID,
		OpponentID: opponentID,
	}, now.Add(s.config.ClaimWindow))
	if err != nil {
		return nil, err
	}
	// Scheduled before commit so a committed claim always has a timer. If the
	// commit then fails the orphan job finds no pending claim and does nothing.
	if err := s.scheduler.Schedule(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to schedule settlement: %w", err)
	}

	uow.EventBus().Publish(events.PrizeClaimedEvent{
		WagerID:    wager.ID,
		ClaimantID: userID,
		OpponentID: opponentID,
	})

	if err := uow.Commit(); err != nil {
		s.cancelSettlement(ctx, wager.ID)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"wagerID":    wager.ID,
		"claimantID": userID,
		"fireAt":     job.FireAt,
	}).Info("Prize claimed")

	s.notifyUser(ctx, opponentID, NotifyPrizeClaimed, map[string]any{
		"wagerId":    wager.ID,
		"claimantId": userID,
		"deadline":   job.FireAt,
	})

	return wager, nil
}

// AcceptClaim settles the wager in favour of the claimant. Only the opponent can accept.
func (s *wagerService) AcceptClaim(ctx context.Context, userID, wagerID int64) (*models.Wager, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := s.lockPendingClaim(ctx, uow, userID, wagerID)
	if err != nil {
		return nil, err
	}

	settled, err := s.settle(ctx, uow, wager, *wager.Winner, events.SettlementAccepted)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.cancelSettlement(ctx, wager.ID)
	s.afterSettle(ctx, settled)

	return wager, nil
}

// ContestClaim rejects the claim and moves the wager into mediation
func (s *wagerService) ContestClaim(ctx context.Context, userID, wagerID int64) (*models.Wager, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := s.lockPendingClaim(ctx, uow, userID, wagerID)
	if err != nil {
		return nil, err
	}

	wager.Winner = nil
	wager.ClaimedAt = nil
	wager.Status = models.WagerStatusDispute
	if err := uow.WagerRepository().Update(ctx, wager); err != nil {
		return nil, fmt.Errorf("failed to update wager: %w", err)
	}

	assignment, err := s.disputes.Assign(ctx, uow, wager)
	if err != nil {
		return nil, fmt.Errorf("failed to assign dispute: %w", err)
	}

	uow.EventBus().Publish(events.WagerDisputedEvent{
		WagerID: wager.ID,
		AdminID: assignment.Admin.ID,
		ChatID:  assignment.Chat.ID,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.cancelSettlement(ctx, wager.ID)
	s.metrics.RecordDispute(ctx, wager.Category)

	if err := s.jobs.Enqueue(ctx, models.JobContestWager, models.ContestWagerPayload{WagerID: wager.ID}, 0); err != nil {
		log.WithError(err).WithField("wagerID", wager.ID).Error("Failed to enqueue mediation job")
	}

	log.WithFields(log.Fields{
		"wagerID": wager.ID,
		"adminID": assignment.Admin.ID,
	}).Info("Claim contested")

	return wager, nil
}

// AutoSettle is fired when a claim window elapses. It does nothing unless the
// same claim is still pending.
func (s *wagerService) AutoSettle(ctx context.Context, payload models.SettleWagerPayload) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := uow.WagerRepository().GetForUpdate(ctx, payload.WagerID)
	if err != nil {
		return fmt.Errorf("failed to lock wager: %w", err)
	}
	if wager == nil || !wager.HasPendingClaim() || *wager.Winner != payload.ClaimantID {
		log.WithFields(log.Fields{
			"wagerID":    payload.WagerID,
			"claimantID": payload.ClaimantID,
		}).Info("Skipping auto-settlement, claim no longer pending")
		return nil
	}

	settled, err := s.settle(ctx, uow, wager, payload.ClaimantID, events.SettlementAutoSettled)
	if err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.afterSettle(ctx, settled)

	return nil
}

// Delete withdraws an unjoined wager and refunds the creator's stake
func (s *wagerService) Delete(ctx context.Context, userID, wagerID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := s.lockWager(ctx, uow, wagerID)
	if err != nil {
		return err
	}
	if wager.PlayerOne != userID {
		return fmt.Errorf("only the creator can delete wager %d: %w", wagerID, ErrForbidden)
	}
	if wager.Status != models.WagerStatusPending {
		return fmt.Errorf("wager %d is %s: %w", wagerID, wager.Status, ErrInvalidState)
	}

	if _, err := s.ledger.Apply(ctx, uow, Mutation{
		UserID:  userID,
		Delta:   wager.Stake,
		Rail:    models.RailWallet,
		Kind:    models.TransactionKindWagerRefund,
		WagerID: &wager.ID,
	}); err != nil {
		return fmt.Errorf("failed to refund stake: %w", err)
	}

	wager.Status = models.WagerStatusDeleted
	if err := uow.WagerRepository().Update(ctx, wager); err != nil {
		return fmt.Errorf("failed to update wager: %w", err)
	}

	uow.EventBus().Publish(events.WagerDeletedEvent{
		WagerID:   wager.ID,
		CreatorID: userID,
		Refunded:  wager.Stake,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ResolveDispute settles a disputed wager in favour of the named player and
// closes the mediation chat
func (s *wagerService) ResolveDispute(ctx context.Context, wagerID int64, username string) (*models.Wager, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	wager, err := s.lockWager(ctx, uow, wagerID)
	if err != nil {
		return nil, err
	}
	if wager.Status == models.WagerStatusSettled {
		return nil, fmt.Errorf("wager %d: %w", wagerID, ErrAlreadySettled)
	}
	if wager.Status != models.WagerStatusDispute {
		return nil, fmt.Errorf("wager %d is %s: %w", wagerID, wager.Status, ErrInvalidState)
	}

	winner, err := uow.UserRepository().GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("unknown user %q: %w", username, ErrInvalidUsername)
	}
	if !wager.IsPlayer(winner.ID) {
		return nil, fmt.Errorf("user %q does not play in wager %d: %w", username, wagerID, ErrInvalidUsername)
	}

	settled, err := s.settle(ctx, uow, wager, winner.ID, events.SettlementResolved)
	if err != nil {
		return nil, err
	}

	if err := s.disputes.Close(ctx, uow, wager.ID); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.afterSettle(ctx, settled)

	return wager, nil
}

// RecoverPendingSettlements reschedules claim timers that are missing from the
// scheduler, e.g. after its store was lost. Returns how many were rescheduled.
func (s *wagerService) RecoverPendingSettlements(ctx context.Context) (int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	wagers, err := uow.WagerRepository().ListPendingClaims(ctx)
	uow.Rollback()
	if err != nil {
		return 0, fmt.Errorf("failed to list pending claims: %w", err)
	}

	now := s.now()
	recovered := 0
	for _, wager := range wagers {
		exists, err := s.scheduler.Exists(ctx, wager.SettlementJobID())
		if err != nil {
			return recovered, fmt.Errorf("failed to check settlement job: %w", err)
		}
		if exists {
			continue
		}

		fireAt := now
		if wager.ClaimedAt != nil {
			if deadline := wager.ClaimedAt.Add(s.config.ClaimWindow); deadline.After(now) {
				fireAt = deadline
			}
		}

		job, err := settlementJob(models.SettleWagerPayload{
			WagerID:    wager.ID,
			ClaimantID: *wager.Winner,
			OpponentID: wager.Opponent(*wager.Winner),
		}, fireAt)
		if err != nil {
			return recovered, err
		}
		if err := s.scheduler.Schedule(ctx, job); err != nil {
			return recovered, fmt.Errorf("failed to reschedule wager %d: %w", wager.ID, err)
		}
		recovered++
	}

	if recovered > 0 {
		log.WithField("count", recovered).Info("Recovered pending settlements")
	}

	return recovered, nil
}

func (s *wagerService) lockWager(ctx context.Context, uow UnitOfWork, wagerID int64) (*models.Wager, error) {
	wager, err := uow.WagerRepository().GetForUpdate(ctx, wagerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wager: %w", err)
	}
	if wager == nil || wager.Status == models.WagerStatusDeleted {
		return nil, fmt.Errorf("wager %d: %w", wagerID, ErrNotFound)
	}
	return wager, nil
}

// lockPendingClaim loads a wager for accept or contest: it must carry a pending
// claim and userID must be the claimant's opponent
func (s *wagerService) lockPendingClaim(ctx context.Context, uow UnitOfWork, userID, wagerID int64) (*models.Wager, error) {
	wager, err := s.lockWager(ctx, uow, wagerID)
	if err != nil {
		return nil, err
	}
	if wager.Status == models.WagerStatusSettled {
		return nil, fmt.Errorf("wager %d: %w", wagerID, ErrAlreadySettled)
	}
	if !wager.HasPendingClaim() {
		return nil, fmt.Errorf("wager %d has no pending claim: %w", wagerID, ErrInvalidState)
	}
	if wager.Opponent(*wager.Winner) != userID {
		return nil, fmt.Errorf("only the claimant's opponent can respond: %w", ErrForbidden)
	}
	return wager, nil
}

func (s *wagerService) debitStake(ctx context.Context, uow UnitOfWork, userID, wagerID, amount int64) (*models.Transaction, error) {
	tx, err := s.ledger.Apply(ctx, uow, Mutation{
		UserID:  userID,
		Delta:   -amount,
		Rail:    models.RailWallet,
		Kind:    models.TransactionKindWagerStake,
		WagerID: &wagerID,
	})
	if errors.Is(err, ErrInsufficientFunds) {
		return nil, fmt.Errorf("stake of %d: %w", amount, ErrInsufficientBalance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to debit stake: %w", err)
	}
	return tx, nil
}

// settle pays the winner the pot less the platform fee and marks the wager SETTLED
func (s *wagerService) settle(ctx context.Context, uow UnitOfWork, wager *models.Wager, winnerID int64, reason events.SettlementReason) (*events.WagerSettledEvent, error) {
	fee := s.fees.PlatformFee(wager.Amount)
	payout := s.fees.Payout(wager.Amount)

	if payout > 0 {
		if _, err := s.ledger.Apply(ctx, uow, Mutation{
			UserID:  winnerID,
			Delta:   payout,
			Rail:    models.RailWallet,
			Kind:    models.TransactionKindWagerPayout,
			WagerID: &wager.ID,
			Metadata: map[string]any{
				"amount":      wager.Amount,
				"platformFee": fee,
				"reason":      string(reason),
			},
		}); err != nil {
			return nil, fmt.Errorf("failed to pay out wager: %w", err)
		}
	}

	now := s.now()
	wager.Winner = &winnerID
	wager.Status = models.WagerStatusSettled
	wager.PlatformFee = &fee
	wager.SettledAt = &now
	if err := uow.WagerRepository().Update(ctx, wager); err != nil {
		return nil, fmt.Errorf("failed to update wager: %w", err)
	}

	event := events.WagerSettledEvent{
		WagerID:     wager.ID,
		WinnerID:    winnerID,
		LoserID:     wager.Opponent(winnerID),
		Amount:      wager.Amount,
		PlatformFee: fee,
		Payout:      payout,
		Reason:      reason,
	}
	uow.EventBus().Publish(event)

	return &event, nil
}

// afterSettle runs post-commit side effects of a settlement
func (s *wagerService) afterSettle(ctx context.Context, settled *events.WagerSettledEvent) {
	s.metrics.RecordSettlement(ctx, string(settled.Reason), settled.Amount, settled.PlatformFee)

	log.WithFields(log.Fields{
		"wagerID":  settled.WagerID,
		"winnerID": settled.WinnerID,
		"payout":   settled.Payout,
		"fee":      settled.PlatformFee,
		"reason":   settled.Reason,
	}).Info("Wager settled")

	data := map[string]any{
		"wagerId":  settled.WagerID,
		"winnerId": settled.WinnerID,
		"payout":   settled.Payout,
		"reason":   settled.Reason,
	}
	s.notifyUser(ctx, settled.WinnerID, NotifyWagerSettled, data)
	if settled.Reason != events.SettlementAccepted {
		s.notifyUser(ctx, settled.LoserID, NotifyWagerSettled, data)
	}
}

func (s *wagerService) cancelSettlement(ctx context.Context, wagerID int64) {
	if err := s.scheduler.Cancel(ctx, models.SettlementJobID(wagerID)); err != nil {
		log.WithError(err).WithField("wagerID", wagerID).Warn("Failed to cancel settlement job")
	}
}

// notifyUser looks up the recipient's email and hands the notification off.
// Failures are logged; the triggering change is already committed.
func (s *wagerService) notifyUser(ctx context.Context, userID int64, template string, data map[string]any) {
	if userID == 0 {
		return
	}

	n := Notification{UserID: userID, Template: template, Data: data}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err == nil {
		if user, err := uow.UserRepository().GetByID(ctx, userID); err == nil && user != nil {
			n.Email = user.Email
		}
		uow.Rollback()
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"userID":   userID,
			"template": template,
		}).Warn("Failed to send notification")
	}
}

func (s *wagerService) newInviteCode(ctx context.Context, uow UnitOfWork) (string, error) {
	for i := 0; i < inviteCodeAttempts; i++ {
		code := inviteCode()
		existing, err := uow.WagerRepository().GetByInviteCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check invite code: %w", err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique invite code after %d attempts", inviteCodeAttempts)
}

// inviteCode returns eight uppercase hex characters from a random UUID
func inviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
}

func settlementJob(payload models.SettleWagerPayload, fireAt time.Time) (models.ScheduledJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.ScheduledJob{}, fmt.Errorf("failed to encode settlement payload: %w", err)
	}
	return models.ScheduledJob{
		ID:      models.SettlementJobID(payload.WagerID),
		Name:    models.JobSettleWager,
		Payload: raw,
		FireAt:  fireAt,
	}, nil
}
