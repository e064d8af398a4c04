package repository

import (
	"context"
	"testing"

	"wagerbook/models"
	"wagerbook/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisputeChatRepository(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	users := NewUserRepository(testDB.DB)
	p1 := testutil.CreateTestUser("p1")
	p2 := testutil.CreateTestUser("p2")
	require.NoError(t, users.Create(ctx, p1))
	require.NoError(t, users.Create(ctx, p2))

	wager := testutil.CreateActiveTestWager(p1.ID, p2.ID, 1000)
	wager.Status = models.WagerStatusDispute
	require.NoError(t, NewWagerRepository(testDB.DB).Create(ctx, wager))

	admin := testutil.CreateTestAdmin("mod", "football", 0)
	require.NoError(t, NewAdminRepository(testDB.DB).Create(ctx, admin))

	repo := NewDisputeChatRepository(testDB.DB)
	chat := &models.DisputeChat{AdminID: admin.ID, WagerID: wager.ID}
	require.NoError(t, repo.Create(ctx, chat))
	assert.Equal(t, models.DisputeChatOpen, chat.Status)

	t.Run("one chat per wager", func(t *testing.T) {
		assert.Error(t, repo.Create(ctx, &models.DisputeChat{AdminID: admin.ID, WagerID: wager.ID}))
	})

	t.Run("messages are kept in order", func(t *testing.T) {
		require.NoError(t, repo.AddMessage(ctx, &models.DisputeMessage{ChatID: chat.ID, Body: "opened"}))
		require.NoError(t, repo.AddMessage(ctx, &models.DisputeMessage{ChatID: chat.ID, SenderID: &p1.ID, Body: "I won"}))

		messages, err := repo.ListMessages(ctx, chat.ID)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Nil(t, messages[0].SenderID)
		assert.Equal(t, "I won", messages[1].Body)
	})

	t.Run("channel ref and close", func(t *testing.T) {
		require.NoError(t, repo.SetChannelRef(ctx, chat.ID, "thread-1"))
		require.NoError(t, repo.Close(ctx, chat.ID))
		assert.Error(t, repo.Close(ctx, chat.ID))

		found, err := repo.GetByWagerID(ctx, wager.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "thread-1", *found.ChannelRef)
		assert.Equal(t, models.DisputeChatClosed, found.Status)
		assert.NotNil(t, found.ClosedAt)
	})
}
