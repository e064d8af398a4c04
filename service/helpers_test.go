package service

import (
	"testing"
	"time"

	"wagerbook/config"
	"wagerbook/models"

	"github.com/stretchr/testify/mock"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// testHarness holds every mock a service under test can reach
type testHarness struct {
	cfg       *config.Config
	factory   *MockUnitOfWorkFactory
	uow       *MockUnitOfWork
	users     *MockUserRepository
	wagers    *MockWagerRepository
	txs       *MockTransactionRepository
	admins    *MockAdminRepository
	chats     *MockDisputeChatRepository
	bus       *MockEventPublisher
	scheduler *MockSettlementScheduler
	jobs      *MockJobQueue
	notifier  *MockNotifier
	metrics   *MockMetrics
	messenger *MockMessenger
	guard     *MockIdempotencyGuard
	fiat      *MockFiatGateway
	chain     *MockChainClient
	rates     *MockRateProvider
	ledger    *LedgerService
}

func newTestHarness() *testHarness {
	h := &testHarness{
		cfg:       config.NewTestConfig(),
		factory:   new(MockUnitOfWorkFactory),
		uow:       new(MockUnitOfWork),
		users:     new(MockUserRepository),
		wagers:    new(MockWagerRepository),
		txs:       new(MockTransactionRepository),
		admins:    new(MockAdminRepository),
		chats:     new(MockDisputeChatRepository),
		bus:       new(MockEventPublisher),
		scheduler: new(MockSettlementScheduler),
		jobs:      new(MockJobQueue),
		notifier:  new(MockNotifier),
		metrics:   new(MockMetrics),
		messenger: new(MockMessenger),
		guard:     new(MockIdempotencyGuard),
		fiat:      new(MockFiatGateway),
		chain:     new(MockChainClient),
		rates:     new(MockRateProvider),
		ledger:    NewLedgerService(),
	}

	h.uow.SetRepositories(h.users, h.wagers, h.txs)
	h.uow.SetDisputeRepositories(h.admins, h.chats)
	h.uow.SetEventBus(h.bus)
	h.factory.On("Create").Return(h.uow)

	h.bus.On("Publish", mock.Anything).Maybe()
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.metrics.On("RecordDispute", mock.Anything, mock.Anything).Maybe()
	h.metrics.On("RecordSettlement", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	h.metrics.On("RecordReconciliation", mock.Anything, mock.Anything, mock.Anything).Maybe()

	return h
}

func (h *testHarness) wagerService() *wagerService {
	disputes := NewDisputeService(h.factory, h.messenger, h.notifier, h.cfg.Wager)
	svc := NewWagerService(h.factory, h.ledger, disputes, h.scheduler, h.jobs, h.notifier, h.metrics, NewFeeSchedule(h.cfg.Fees), h.cfg.Wager).(*wagerService)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func (h *testHarness) disputeService() *DisputeService {
	return NewDisputeService(h.factory, h.messenger, h.notifier, h.cfg.Wager)
}

func (h *testHarness) walletService() WalletService {
	return NewWalletService(h.factory, h.ledger, h.guard, h.jobs, h.rates, h.cfg)
}

func (h *testHarness) reconciler() *reconciler {
	r := NewReconciler(h.factory, h.ledger, h.fiat, h.chain, h.rates, h.jobs, h.notifier, h.metrics, h.cfg).(*reconciler)
	r.now = func() time.Time { return fixedNow }
	return r
}

// expectTransaction allows any number of units of work to begin, commit and roll back
func (h *testHarness) expectTransaction() {
	h.uow.On("Begin", mock.Anything).Return(nil)
	h.uow.On("Commit").Return(nil).Maybe()
	h.uow.On("Rollback").Return(nil)
}

// expectApply sets up the ledger calls for one balance mutation
func (h *testHarness) expectApply(userID, balance, delta int64, kind models.TransactionKind) {
	h.users.On("GetForUpdate", mock.Anything, userID).Return(&models.User{ID: userID, Username: "player", Balance: balance}, nil).Once()
	h.users.On("UpdateBalance", mock.Anything, userID, balance+delta).Return(nil).Once()
	h.txs.On("Create", mock.Anything, mock.MatchedBy(func(tx *models.Transaction) bool {
		return tx.UserID == userID && tx.Kind == kind && tx.SignedAmount() == delta
	})).Return(nil).Once()
}

// allowEmailLookups answers the post-commit email lookups used for notifications
func (h *testHarness) allowEmailLookups() {
	h.users.On("GetByID", mock.Anything, mock.Anything).Return(&models.User{Email: "player@example.com"}, nil).Maybe()
}

func assertAllMockExpectations(t *testing.T, mocks ...interface{}) {
	for _, m := range mocks {
		if mockObj, ok := m.(interface{ AssertExpectations(mock.TestingT) bool }); ok {
			mockObj.AssertExpectations(t)
		}
	}
}

func activeWager(id, playerOne, playerTwo, stake int64) *models.Wager {
	return &models.Wager{
		ID:         id,
		PlayerOne:  playerOne,
		PlayerTwo:  &playerTwo,
		Stake:      stake,
		Amount:     2 * stake,
		Category:   "football",
		Status:     models.WagerStatusActive,
		InviteCode: "ABCD1234",
	}
}

func pendingWager(id, creator, stake int64) *models.Wager {
	return &models.Wager{
		ID:         id,
		PlayerOne:  creator,
		Stake:      stake,
		Amount:     2 * stake,
		Category:   "football",
		Status:     models.WagerStatusPending,
		InviteCode: "ABCD1234",
	}
}

func claimedWager(id, playerOne, playerTwo, stake, claimant int64) *models.Wager {
	w := activeWager(id, playerOne, playerTwo, stake)
	claimedAt := fixedNow.Add(-time.Hour)
	w.Winner = &claimant
	w.ClaimedAt = &claimedAt
	return w
}

func int64Ptr(v int64) *int64 {
	return &v
}

func stringPtr(v string) *string {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}
