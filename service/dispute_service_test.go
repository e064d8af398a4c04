package service

import (
	"context"
	"testing"

	"wagerbook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDisputeService_Assign(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		disputes []int
		wantID   int64
		wantLoad int
	}{
		{"least loaded wins", []int{3, 1, 4}, 3, 2},
		{"ties go to lowest id", []int{2, 2, 5}, 2, 3},
		{"single admin", []int{7}, 2, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHarness()
			svc := h.disputeService()

			admins := make([]*models.Admin, len(tt.disputes))
			for i, d := range tt.disputes {
				admins[i] = &models.Admin{ID: int64(i + 2), Username: "admin", Category: "football", Disputes: d}
			}
			h.admins.On("LockEligibleByCategory", mock.Anything, "football", int64(1)).Return(admins, nil)
			h.admins.On("AdjustDisputes", mock.Anything, tt.wantID, 1).Return(nil)
			h.chats.On("Create", mock.Anything, mock.Anything).Return(nil)
			h.chats.On("AddMessage", mock.Anything, mock.Anything).Return(nil)

			assignment, err := svc.Assign(ctx, h.uow, activeWager(1, 10, 20, 1000))

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, assignment.Admin.ID)
			assert.Equal(t, tt.wantLoad, assignment.Admin.Disputes)
			assert.Equal(t, models.DisputeChatOpen, assignment.Chat.Status)
			h.admins.AssertExpectations(t)
		})
	}

	t.Run("empty category falls back to the super admin", func(t *testing.T) {
		h := newTestHarness()
		svc := h.disputeService()

		h.admins.On("LockEligibleByCategory", mock.Anything, "football", int64(1)).Return([]*models.Admin{}, nil)
		h.admins.On("GetByID", mock.Anything, int64(1)).Return(&models.Admin{ID: 1, Username: "root", Disputes: 6}, nil)
		h.admins.On("AdjustDisputes", mock.Anything, int64(1), 1).Return(nil)
		h.chats.On("Create", mock.Anything, mock.MatchedBy(func(c *models.DisputeChat) bool {
			return c.AdminID == 1 && c.WagerID == 1
		})).Return(nil)
		h.chats.On("AddMessage", mock.Anything, mock.Anything).Return(nil)

		assignment, err := svc.Assign(ctx, h.uow, activeWager(1, 10, 20, 1000))

		require.NoError(t, err)
		assert.Equal(t, int64(1), assignment.Admin.ID)
		assert.Equal(t, 7, assignment.Admin.Disputes)
		assertAllMockExpectations(t, h.admins, h.chats)
	})

	t.Run("no category admin and no super admin", func(t *testing.T) {
		h := newTestHarness()
		svc := h.disputeService()

		h.admins.On("LockEligibleByCategory", mock.Anything, "football", int64(1)).Return([]*models.Admin{}, nil)
		h.admins.On("GetByID", mock.Anything, int64(1)).Return(nil, nil)

		_, err := svc.Assign(ctx, h.uow, activeWager(1, 10, 20, 1000))

		assert.ErrorIs(t, err, ErrNoEligibleAdmin)
		h.admins.AssertNotCalled(t, "AdjustDisputes", mock.Anything, mock.Anything, mock.Anything)
		h.chats.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestDisputeService_OpenChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("opens a thread with players and admin and notifies players", func(t *testing.T) {
		h := newTestHarness()
		h.expectTransaction()
		svc := h.disputeService()

		h.chats.On("GetByWagerID", mock.Anything, int64(1)).Return(&models.DisputeChat{ID: 9, AdminID: 3, WagerID: 1, Status: models.DisputeChatOpen}, nil)
		h.wagers.On("GetByID", mock.Anything, int64(1)).Return(activeWager(1, 10, 20, 1000), nil)
		h.admins.On("GetByID", mock.Anything, int64(3)).Return(&models.Admin{ID: 3, Username: "ben", ChatHandle: stringPtr("ben#1")}, nil)
		h.users.On("GetByID", mock.Anything, int64(10)).Return(&models.User{ID: 10, Username: "alice", Email: "alice@example.com", ChatHandle: stringPtr("alice#1")}, nil)
		h.users.On("GetByID", mock.Anything, int64(20)).Return(&models.User{ID: 20, Username: "bob", Email: "bob@example.com"}, nil)
		h.messenger.On("OpenChannel", mock.Anything, mock.MatchedBy(func(ch MediationChannel) bool {
			return ch.WagerID == 1 && assert.ObjectsAreEqual([]string{"alice#1", "ben#1"}, ch.Participants)
		})).Return("thread-42", nil)
		h.chats.On("SetChannelRef", mock.Anything, int64(9), "thread-42").Return(nil)

		err := svc.OpenChannel(ctx, 1)

		require.NoError(t, err)
		h.uow.AssertCalled(t, "Commit")
		h.notifier.AssertNumberOfCalls(t, "Notify", 2)
		h.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n Notification) bool {
			return n.UserID == 20 && n.Email == "bob@example.com" && n.Template == NotifyWagerDisputed
		}))
		assertAllMockExpectations(t, h.messenger, h.chats)
	})

	t.Run("already opened", func(t *testing.T) {
		h := newTestHarness()
		h.expectTransaction()
		svc := h.disputeService()

		h.chats.On("GetByWagerID", mock.Anything, int64(1)).Return(&models.DisputeChat{ID: 9, AdminID: 3, Status: models.DisputeChatOpen, ChannelRef: stringPtr("thread-42")}, nil)

		err := svc.OpenChannel(ctx, 1)

		require.NoError(t, err)
		h.messenger.AssertNotCalled(t, "OpenChannel", mock.Anything, mock.Anything)
	})

	t.Run("messenger failure is returned for retry", func(t *testing.T) {
		h := newTestHarness()
		h.expectTransaction()
		svc := h.disputeService()

		h.chats.On("GetByWagerID", mock.Anything, int64(1)).Return(&models.DisputeChat{ID: 9, AdminID: 3, Status: models.DisputeChatOpen}, nil)
		h.wagers.On("GetByID", mock.Anything, int64(1)).Return(activeWager(1, 10, 20, 1000), nil)
		h.admins.On("GetByID", mock.Anything, int64(3)).Return(nil, nil)
		h.users.On("GetByID", mock.Anything, mock.Anything).Return(nil, nil)
		h.messenger.On("OpenChannel", mock.Anything, mock.Anything).Return("", assert.AnError)

		err := svc.OpenChannel(ctx, 1)

		assert.ErrorIs(t, err, assert.AnError)
		h.chats.AssertNotCalled(t, "SetChannelRef", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDisputeService_PostMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and mirrors the message", func(t *testing.T) {
		h := newTestHarness()
		h.expectTransaction()
		svc := h.disputeService()

		h.chats.On("GetByID", mock.Anything, int64(9)).Return(&models.DisputeChat{ID: 9, Status: models.DisputeChatOpen, ChannelRef: stringPtr("thread-42")}, nil)
		h.chats.On("AddMessage", mock.Anything, mock.MatchedBy(func(m *models.DisputeMessage) bool {
			return m.ChatID == 9 && *m.SenderID == 10 && m.Body == "I won fair and square"
		})).Return(nil)
		h.messenger.On("Post", mock.Anything, "thread-42", "I won fair and square").Return(nil)

		msg, err := svc.PostMessage(ctx, 9, int64Ptr(10), "  I won fair and square ")

		require.NoError(t, err)
		assert.Equal(t, "I won fair and square", msg.Body)
		h.messenger.AssertExpectations(t)
	})

	t.Run("closed chat", func(t *testing.T) {
		h := newTestHarness()
		h.expectTransaction()
		svc := h.disputeService()

		h.chats.On("GetByID", mock.Anything, int64(9)).Return(&models.DisputeChat{ID: 9, Status: models.DisputeChatClosed}, nil)

		_, err := svc.PostMessage(ctx, 9, int64Ptr(10), "hello")

		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("empty body", func(t *testing.T) {
		h := newTestHarness()
		svc := h.disputeService()

		_, err := svc.PostMessage(ctx, 9, nil, "   ")

		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestDisputeService_Close(t *testing.T) {
	ctx := context.Background()

	t.Run("no chat is a no-op", func(t *testing.T) {
		h := newTestHarness()
		svc := h.disputeService()

		h.chats.On("GetByWagerID", mock.Anything, int64(1)).Return(nil, nil)

		require.NoError(t, svc.Close(ctx, h.uow, 1))
		h.admins.AssertNotCalled(t, "AdjustDisputes", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("already closed", func(t *testing.T) {
		h := newTestHarness()
		svc := h.disputeService()

		h.chats.On("GetByWagerID", mock.Anything, int64(1)).Return(&models.DisputeChat{ID: 9, AdminID: 3, Status: models.DisputeChatClosed}, nil)

		require.NoError(t, svc.Close(ctx, h.uow, 1))
		h.chats.AssertNotCalled(t, "Close", mock.Anything, mock.Anything)
	})
}
