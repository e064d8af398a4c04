package api

import (
	"context"
	"time"

	"wagerbook/models"
	"wagerbook/service"

	"github.com/stretchr/testify/mock"
)

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) Register(ctx context.Context, req service.RegisterUserRequest) (*models.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) Get(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockWalletService struct {
	mock.Mock
}

func (m *mockWalletService) Withdraw(ctx context.Context, userID int64, req service.WithdrawalRequest) (*service.WithdrawalOutcome, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.WithdrawalOutcome), args.Error(1)
}

func (m *mockWalletService) Deposit(ctx context.Context, userID int64, req service.DepositRequest) (*models.Transaction, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockWalletService) Balance(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockWalletService) History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

type mockWagerService struct {
	mock.Mock
}

func (m *mockWagerService) wager(args mock.Arguments) (*models.Wager, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wager), args.Error(1)
}

func (m *mockWagerService) Create(ctx context.Context, userID int64, req service.CreateWagerRequest) (*models.Wager, error) {
	return m.wager(m.Called(ctx, userID, req))
}

func (m *mockWagerService) Update(ctx context.Context, userID, wagerID int64, req service.UpdateWagerRequest) (*models.Wager, error) {
	return m.wager(m.Called(ctx, userID, wagerID, req))
}

func (m *mockWagerService) Join(ctx context.Context, userID, wagerID int64) (*models.Wager, error) {
	return m.wager(m.Called(ctx, userID, wagerID))
}

func (m *mockWagerService) JoinByInvite(ctx context.Context, userID int64, code string) (*models.Wager, error) {
	return m.wager(m.Called(ctx, userID, code))
}

func (m *mockWagerService) FindByInvite(ctx context.Context, code string) (*models.Wager, error) {
	return m.wager(m.Called(ctx, code))
}

func (m *mockWagerService) Get(ctx context.Context, wagerID int64) (*models.Wager, error) {
	return m.wager(m.Called(ctx, wagerID))
}

func (m *mockWagerService) ListByUser(ctx context.Context, userID int64) ([]*models.Wager, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Wager), args.Error(1)
}

func (m *mockWagerService) Claim(ctx context.Context, userID, wagerID int64) (*models.Wager, error) {
	return m.wager(m.Called(ctx, userID, wagerID))
}

func (m *mockWagerService) AcceptClaim(ctx context.Context, userID, wagerID int64) (*models.Wager, error) {
	return m.wager(m.Called(ctx, userID, wagerID))
}

func (m *mockWagerService) ContestClaim(ctx context.Context, userID, wagerID int64) (*models.Wager, error) {
	return m.wager(m.Called(ctx, userID, wagerID))
}

func (m *mockWagerService) AutoSettle(ctx context.Context, payload models.SettleWagerPayload) error {
	return m.Called(ctx, payload).Error(0)
}

func (m *mockWagerService) Delete(ctx context.Context, userID, wagerID int64) error {
	return m.Called(ctx, userID, wagerID).Error(0)
}

func (m *mockWagerService) ResolveDispute(ctx context.Context, wagerID int64, username string) (*models.Wager, error) {
	return m.wager(m.Called(ctx, wagerID, username))
}

func (m *mockWagerService) RecoverPendingSettlements(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Reconcile(ctx context.Context, txID int64) error {
	return m.Called(ctx, txID).Error(0)
}

func (m *mockReconciler) ApplyFiatEvent(ctx context.Context, event models.FiatEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockReconciler) RecoverPending(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

type mockMediator struct {
	mock.Mock
}

func (m *mockMediator) OpenChannel(ctx context.Context, wagerID int64) error {
	return m.Called(ctx, wagerID).Error(0)
}

func (m *mockMediator) PostMessage(ctx context.Context, chatID int64, senderID *int64, body string) (*models.DisputeMessage, error) {
	args := m.Called(ctx, chatID, senderID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DisputeMessage), args.Error(1)
}
