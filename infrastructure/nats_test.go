package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"wagerbook/events"
	"wagerbook/models"
	"wagerbook/service"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSJobQueue(t *testing.T) {
	ctx := context.Background()
	client := setupNATS(t)

	queue := NewNATSJobQueue(client, 5, 100*time.Millisecond)
	require.NoError(t, queue.Setup())

	t.Run("delivers payload", func(t *testing.T) {
		received := make(chan models.TransactionPayload, 1)
		require.NoError(t, queue.Consume(models.JobDepositConfirm, func(_ context.Context, raw json.RawMessage) error {
			var payload models.TransactionPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return err
			}
			received <- payload
			return nil
		}))

		require.NoError(t, queue.Enqueue(ctx, models.JobDepositConfirm, models.TransactionPayload{TransactionID: 42}, 0))

		select {
		case payload := <-received:
			assert.Equal(t, int64(42), payload.TransactionID)
		case <-time.After(5 * time.Second):
			t.Fatal("job was not delivered")
		}
	})

	t.Run("delayed job waits", func(t *testing.T) {
		delivered := make(chan time.Time, 1)
		require.NoError(t, queue.Consume(models.JobWithdrawalConfirm, func(context.Context, json.RawMessage) error {
			delivered <- time.Now()
			return nil
		}))

		start := time.Now()
		require.NoError(t, queue.Enqueue(ctx, models.JobWithdrawalConfirm, models.TransactionPayload{TransactionID: 7}, 700*time.Millisecond))

		select {
		case at := <-delivered:
			assert.GreaterOrEqual(t, at.Sub(start), 600*time.Millisecond)
		case <-time.After(5 * time.Second):
			t.Fatal("delayed job was not delivered")
		}
	})

	t.Run("failed job is redelivered", func(t *testing.T) {
		var calls atomic.Int32
		done := make(chan struct{})
		require.NoError(t, queue.Consume(models.JobContestWager, func(context.Context, json.RawMessage) error {
			if calls.Add(1) < 3 {
				return fmt.Errorf("transient failure")
			}
			close(done)
			return nil
		}))

		require.NoError(t, queue.Enqueue(ctx, models.JobContestWager, models.ContestWagerPayload{WagerID: 9}, 0))

		select {
		case <-done:
			assert.Equal(t, int32(3), calls.Load())
		case <-time.After(10 * time.Second):
			t.Fatal("job was not retried")
		}
	})
}

func TestNATSEventPublisher(t *testing.T) {
	client := setupNATS(t)

	publisher := NewNATSEventPublisher(client)
	require.NoError(t, publisher.Setup())

	envelopes := make(chan EventEnvelope, 1)
	sub, err := client.Conn().Subscribe(SubjectFor(events.EventTypeWagerSettled), func(msg *nats.Msg) {
		var envelope EventEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err == nil {
			envelopes <- envelope
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	bus := events.NewBus()
	publisher.Attach(bus)
	bus.Emit(context.Background(), events.WagerSettledEvent{
		WagerID:     1,
		WinnerID:    2,
		LoserID:     3,
		Amount:      2000,
		PlatformFee: 160,
		Payout:      1840,
		Reason:      events.SettlementAccepted,
	})

	select {
	case envelope := <-envelopes:
		assert.Equal(t, string(events.EventTypeWagerSettled), envelope.EventType)
		assert.Equal(t, "wagerbook", envelope.SourceService)
		assert.NotEmpty(t, envelope.EventID)

		var payload events.WagerSettledEvent
		require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
		assert.Equal(t, int64(1840), payload.Payout)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not forwarded")
	}
}

func TestNATSNotifier(t *testing.T) {
	ctx := context.Background()
	client := setupNATS(t)

	notifier := NewNATSNotifier(client)
	require.NoError(t, notifier.Setup())

	received := make(chan service.Notification, 2)
	sub, err := client.Conn().Subscribe(SubjectEmailNotify, func(msg *nats.Msg) {
		var n service.Notification
		if err := json.Unmarshal(msg.Data, &n); err == nil {
			received <- n
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	require.NoError(t, notifier.Notify(ctx, service.Notification{UserID: 1, Template: service.NotifyWagerSettled}))
	require.NoError(t, notifier.Notify(ctx, service.Notification{
		UserID:   2,
		Email:    "bob@example.com",
		Template: service.NotifyPrizeClaimed,
		Data:     map[string]any{"wagerId": 5},
	}))

	select {
	case n := <-received:
		assert.Equal(t, int64(2), n.UserID)
		assert.Equal(t, service.NotifyPrizeClaimed, n.Template)
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not published")
	}
}

func TestNATSRailClient(t *testing.T) {
	ctx := context.Background()
	client := setupNATS(t)
	rails := NewNATSRailClient(client, time.Second)

	t.Run("no responders is transient", func(t *testing.T) {
		_, err := rails.Transfer(ctx, service.TransferRequest{Reference: "wd-1"})

		assert.ErrorIs(t, err, service.ErrRailUnavailable)
		assert.Equal(t, service.KindTransient, service.KindOf(err))
	})

	t.Run("broadcast returns the hash", func(t *testing.T) {
		sub, err := client.Conn().Subscribe(SubjectCryptoBroadcast, func(msg *nats.Msg) {
			var req service.TransferRequest
			_ = json.Unmarshal(msg.Data, &req)
			reply, _ := json.Marshal(RailReply{Reference: "0xhash-" + req.Reference})
			_ = msg.Respond(reply)
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = sub.Unsubscribe() })

		hash, err := rails.Broadcast(ctx, service.TransferRequest{Reference: "wd-2", Amount: decimal.NewFromInt(5)})

		require.NoError(t, err)
		assert.Equal(t, "0xhash-wd-2", hash)
	})

	t.Run("confirmation is decoded", func(t *testing.T) {
		sub, err := client.Conn().Subscribe(SubjectFiatVerify, func(msg *nats.Msg) {
			reply, _ := json.Marshal(RailReply{Confirmation: &models.Confirmation{
				Reference: "ref-1",
				Status:    models.ConfirmationConfirmed,
				Amount:    decimal.RequireFromString("12.50"),
			}})
			_ = msg.Respond(reply)
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = sub.Unsubscribe() })

		conf, err := rails.Verify(ctx, "ref-1")

		require.NoError(t, err)
		assert.Equal(t, models.ConfirmationConfirmed, conf.Status)
		assert.True(t, conf.Amount.Equal(decimal.RequireFromString("12.5")))
	})

	t.Run("adapter error is transient", func(t *testing.T) {
		sub, err := client.Conn().Subscribe(SubjectCryptoConfirmation, func(msg *nats.Msg) {
			reply, _ := json.Marshal(RailReply{Error: "node syncing"})
			_ = msg.Respond(reply)
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = sub.Unsubscribe() })

		_, err = rails.GetConfirmation(ctx, "0xabc")

		assert.ErrorIs(t, err, service.ErrRailUnavailable)
	})
}
