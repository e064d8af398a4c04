package service

import (
	"context"
	"time"

	"wagerbook/events"
	"wagerbook/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetForUpdate(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateBalance(ctx context.Context, id int64, newBalance int64) error {
	args := m.Called(ctx, id, newBalance)
	return args.Error(0)
}

// MockWagerRepository is a mock implementation of WagerRepository
type MockWagerRepository struct {
	mock.Mock
}

func (m *MockWagerRepository) Create(ctx context.Context, wager *models.Wager) error {
	args := m.Called(ctx, wager)
	return args.Error(0)
}

func (m *MockWagerRepository) GetByID(ctx context.Context, id int64) (*models.Wager, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wager), args.Error(1)
}

func (m *MockWagerRepository) GetForUpdate(ctx context.Context, id int64) (*models.Wager, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wager), args.Error(1)
}

func (m *MockWagerRepository) GetByInviteCode(ctx context.Context, code string) (*models.Wager, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wager), args.Error(1)
}

func (m *MockWagerRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Wager, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Wager), args.Error(1)
}

func (m *MockWagerRepository) ListPendingClaims(ctx context.Context) ([]*models.Wager, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Wager), args.Error(1)
}

func (m *MockWagerRepository) Update(ctx context.Context, wager *models.Wager) error {
	args := m.Called(ctx, wager)
	return args.Error(0)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetForUpdate(ctx context.Context, id int64) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByExternalRefForUpdate(ctx context.Context, rail models.Rail, ref string) (*models.Transaction, error) {
	args := m.Called(ctx, rail, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListPending(ctx context.Context, createdBefore time.Time) ([]*models.Transaction, error) {
	args := m.Called(ctx, createdBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Finalize(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) IncrementRetries(ctx context.Context, id int64, nextAttemptAt time.Time) (int, error) {
	args := m.Called(ctx, id, nextAttemptAt)
	return args.Int(0), args.Error(1)
}

func (m *MockTransactionRepository) SetExternalRef(ctx context.Context, id int64, ref string, nextAttemptAt time.Time) error {
	args := m.Called(ctx, id, ref, nextAttemptAt)
	return args.Error(0)
}

// MockAdminRepository is a mock implementation of AdminRepository
type MockAdminRepository struct {
	mock.Mock
}

func (m *MockAdminRepository) GetByID(ctx context.Context, id int64) (*models.Admin, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Admin), args.Error(1)
}

func (m *MockAdminRepository) LockEligibleByCategory(ctx context.Context, category string, excludeID int64) ([]*models.Admin, error) {
	args := m.Called(ctx, category, excludeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Admin), args.Error(1)
}

func (m *MockAdminRepository) AdjustDisputes(ctx context.Context, id int64, delta int) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

// MockDisputeChatRepository is a mock implementation of DisputeChatRepository
type MockDisputeChatRepository struct {
	mock.Mock
}

func (m *MockDisputeChatRepository) Create(ctx context.Context, chat *models.DisputeChat) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

func (m *MockDisputeChatRepository) GetByID(ctx context.Context, id int64) (*models.DisputeChat, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DisputeChat), args.Error(1)
}

func (m *MockDisputeChatRepository) GetByWagerID(ctx context.Context, wagerID int64) (*models.DisputeChat, error) {
	args := m.Called(ctx, wagerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DisputeChat), args.Error(1)
}

func (m *MockDisputeChatRepository) SetChannelRef(ctx context.Context, id int64, ref string) error {
	args := m.Called(ctx, id, ref)
	return args.Error(0)
}

func (m *MockDisputeChatRepository) Close(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDisputeChatRepository) AddMessage(ctx context.Context, msg *models.DisputeMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockDisputeChatRepository) ListMessages(ctx context.Context, chatID int64) ([]*models.DisputeMessage, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DisputeMessage), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// return whatever was installed with SetRepositories rather than recorded calls.
type MockUnitOfWork struct {
	mock.Mock

	userRepo        UserRepository
	wagerRepo       WagerRepository
	transactionRepo TransactionRepository
	adminRepo       AdminRepository
	disputeChatRepo DisputeChatRepository
	eventBus        EventPublisher
}

// SetRepositories installs the repositories returned by the getters. Nil
// arguments leave the getter returning nil.
func (m *MockUnitOfWork) SetRepositories(users UserRepository, wagers WagerRepository, transactions TransactionRepository) {
	m.userRepo = users
	m.wagerRepo = wagers
	m.transactionRepo = transactions
}

// SetDisputeRepositories installs the admin and dispute chat repositories
func (m *MockUnitOfWork) SetDisputeRepositories(admins AdminRepository, chats DisputeChatRepository) {
	m.adminRepo = admins
	m.disputeChatRepo = chats
}

// SetEventBus installs the publisher returned by EventBus
func (m *MockUnitOfWork) SetEventBus(bus EventPublisher) {
	m.eventBus = bus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository {
	return m.userRepo
}

func (m *MockUnitOfWork) WagerRepository() WagerRepository {
	return m.wagerRepo
}

func (m *MockUnitOfWork) TransactionRepository() TransactionRepository {
	return m.transactionRepo
}

func (m *MockUnitOfWork) AdminRepository() AdminRepository {
	return m.adminRepo
}

func (m *MockUnitOfWork) DisputeChatRepository() DisputeChatRepository {
	return m.disputeChatRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockIdempotencyGuard is a mock implementation of IdempotencyGuard
type MockIdempotencyGuard struct {
	mock.Mock
}

func (m *MockIdempotencyGuard) Admit(ctx context.Context, scope, key string) (models.Admission, error) {
	args := m.Called(ctx, scope, key)
	return args.Get(0).(models.Admission), args.Error(1)
}

func (m *MockIdempotencyGuard) Release(ctx context.Context, scope, key string) error {
	args := m.Called(ctx, scope, key)
	return args.Error(0)
}

// MockSettlementScheduler is a mock implementation of SettlementScheduler
type MockSettlementScheduler struct {
	mock.Mock
}

func (m *MockSettlementScheduler) Schedule(ctx context.Context, job models.ScheduledJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockSettlementScheduler) Cancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSettlementScheduler) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockJobQueue is a mock implementation of JobQueue
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Enqueue(ctx context.Context, name string, payload any, delay time.Duration) error {
	args := m.Called(ctx, name, payload, delay)
	return args.Error(0)
}

// MockFiatGateway is a mock implementation of FiatGateway
type MockFiatGateway struct {
	mock.Mock
}

func (m *MockFiatGateway) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockFiatGateway) Verify(ctx context.Context, ref string) (*models.Confirmation, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Confirmation), args.Error(1)
}

// MockChainClient is a mock implementation of ChainClient
type MockChainClient struct {
	mock.Mock
}

func (m *MockChainClient) Broadcast(ctx context.Context, req TransferRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockChainClient) GetConfirmation(ctx context.Context, ref string) (*models.Confirmation, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Confirmation), args.Error(1)
}

// MockRateProvider is a mock implementation of RateProvider
type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) FromCents(ctx context.Context, rail models.Rail, cents int64) (decimal.Decimal, error) {
	args := m.Called(ctx, rail, cents)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRateProvider) ToCents(ctx context.Context, rail models.Rail, amount decimal.Decimal) (int64, error) {
	args := m.Called(ctx, rail, amount)
	return args.Get(0).(int64), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockMessenger is a mock implementation of Messenger
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) OpenChannel(ctx context.Context, ch MediationChannel) (string, error) {
	args := m.Called(ctx, ch)
	return args.String(0), args.Error(1)
}

func (m *MockMessenger) Post(ctx context.Context, channelRef, body string) error {
	args := m.Called(ctx, channelRef, body)
	return args.Error(0)
}

// MockMetrics is a mock implementation of Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordDispute(ctx context.Context, category string) {
	m.Called(ctx, category)
}

func (m *MockMetrics) RecordSettlement(ctx context.Context, reason string, amount, fee int64) {
	m.Called(ctx, reason, amount, fee)
}

func (m *MockMetrics) RecordReconciliation(ctx context.Context, rail models.Rail, outcome string) {
	m.Called(ctx, rail, outcome)
}
