package repository

import (
	"context"
	"testing"
	"time"

	"wagerbook/events"
	"wagerbook/models"
	"wagerbook/repository/testutil"
	"wagerbook/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRepository_CreateAndFinalize(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)

	users := NewUserRepository(testDB.DB)
	repo := NewTransactionRepository(testDB.DB)
	ctx := context.Background()

	user := testutil.CreateTestUser("depositor")
	require.NoError(t, users.Create(ctx, user))

	deposit := testutil.CreateTestDeposit(user.ID, models.RailCrypto, 2500)
	deposit.ExternalAmount = decimal.NewNullDecimal(decimal.RequireFromString("25.000001"))
	require.NoError(t, repo.Create(ctx, deposit))
	require.NotZero(t, deposit.ID)
	assert.Equal(t, 0, deposit.Retries)

	t.Run("round trips decimal amount and metadata", func(t *testing.T) {
		found, err := repo.GetByID(ctx, deposit.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.True(t, found.ExternalAmount.Valid)
		assert.True(t, found.ExternalAmount.Decimal.Equal(decimal.RequireFromString("25.000001")))
		assert.Equal(t, true, found.Metadata["test"])
		assert.Equal(t, models.TransactionStatusPending, found.Status)
	})

	t.Run("duplicate reference rejected", func(t *testing.T) {
		dup := testutil.CreateTestDeposit(user.ID, models.RailCrypto, 2500)
		dup.ExternalRef = deposit.ExternalRef
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, service.ErrDuplicateReference)
	})

	t.Run("retries increment while pending", func(t *testing.T) {
		next := time.Now().Add(5 * time.Minute).Truncate(time.Microsecond)
		retries, err := repo.IncrementRetries(ctx, deposit.ID, next)
		require.NoError(t, err)
		assert.Equal(t, 1, retries)

		found, err := repo.GetByID(ctx, deposit.ID)
		require.NoError(t, err)
		require.NotNil(t, found.NextAttemptAt)
		assert.True(t, next.Equal(*found.NextAttemptAt))
		assert.False(t, found.DueAt(time.Now()))
	})

	t.Run("lists pending before cutoff", func(t *testing.T) {
		pending, err := repo.ListPending(ctx, time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, deposit.ID, pending[0].ID)

		none, err := repo.ListPending(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("finalize once", func(t *testing.T) {
		before, after := int64(0), int64(2500)
		deposit.Status = models.TransactionStatusSuccess
		deposit.BalanceBefore = &before
		deposit.BalanceAfter = &after
		require.NoError(t, repo.Finalize(ctx, deposit))

		again := *deposit
		again.Status = models.TransactionStatusFailed
		assert.Error(t, repo.Finalize(ctx, &again))

		_, err := repo.IncrementRetries(ctx, deposit.ID, time.Now())
		assert.Error(t, err)
		assert.Error(t, repo.SetExternalRef(ctx, deposit.ID, "other", time.Now()))

		final, err := repo.GetByID(ctx, deposit.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusSuccess, final.Status)
		assert.Equal(t, int64(2500), *final.BalanceAfter)
	})
}

func TestTransactionRepository_ExternalRefLookup(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	user := testutil.CreateTestUser("withdrawer")
	require.NoError(t, NewUserRepository(testDB.DB).Create(ctx, user))

	withdrawal := &models.Transaction{
		UserID:       user.ID,
		Amount:       500,
		Rail:         models.RailFiat,
		Direction:    models.DirectionWithdrawal,
		Kind:         models.TransactionKindWithdrawal,
		Status:       models.TransactionStatusPending,
		Counterparty: "ACCT_user",
		Source:       "ACCT_platform",
	}
	require.NoError(t, NewTransactionRepository(testDB.DB).Create(ctx, withdrawal))

	uow := NewUnitOfWorkFactory(testDB.DB, events.NewBus()).Create()
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	repo := uow.TransactionRepository()
	require.NoError(t, repo.SetExternalRef(ctx, withdrawal.ID, "TRF_123", time.Now().Add(time.Minute)))

	found, err := repo.GetByExternalRefForUpdate(ctx, models.RailFiat, "TRF_123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, withdrawal.ID, found.ID)

	otherRail, err := repo.GetByExternalRefForUpdate(ctx, models.RailCrypto, "TRF_123")
	require.NoError(t, err)
	assert.Nil(t, otherRail)
}
