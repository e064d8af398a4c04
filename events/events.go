package events

import (
	"context"
	"sync"

	"wagerbook/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange        EventType = "balance_change"
	EventTypeWagerCreated         EventType = "wager_created"
	EventTypeWagerJoined          EventType = "wager_joined"
	EventTypePrizeClaimed         EventType = "prize_claimed"
	EventTypeWagerSettled         EventType = "wager_settled"
	EventTypeWagerDisputed        EventType = "wager_disputed"
	EventTypeWagerDeleted         EventType = "wager_deleted"
	EventTypeTransactionConfirmed EventType = "transaction_confirmed"
	EventTypeTransactionFailed    EventType = "transaction_failed"
)

// AllEventTypes lists every event type the bus can carry
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeBalanceChange,
		EventTypeWagerCreated,
		EventTypeWagerJoined,
		EventTypePrizeClaimed,
		EventTypeWagerSettled,
		EventTypeWagerDisputed,
		EventTypeWagerDeleted,
		EventTypeTransactionConfirmed,
		EventTypeTransactionFailed,
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	UserID        int64                  `json:"userId"`
	TransactionID int64                  `json:"transactionId"`
	OldBalance    int64                  `json:"oldBalance"`
	NewBalance    int64                  `json:"newBalance"`
	Kind          models.TransactionKind `json:"kind"`
	ChangeAmount  int64                  `json:"changeAmount"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// WagerCreatedEvent is emitted when a player opens a wager
type WagerCreatedEvent struct {
	WagerID    int64  `json:"wagerId"`
	CreatorID  int64  `json:"creatorId"`
	Stake      int64  `json:"stake"`
	Category   string `json:"category"`
	InviteCode string `json:"inviteCode"`
}

func (e WagerCreatedEvent) Type() EventType {
	return EventTypeWagerCreated
}

// WagerJoinedEvent is emitted when the second player joins
type WagerJoinedEvent struct {
	WagerID   int64 `json:"wagerId"`
	CreatorID int64 `json:"creatorId"`
	JoinerID  int64 `json:"joinerId"`
}

func (e WagerJoinedEvent) Type() EventType {
	return EventTypeWagerJoined
}

// PrizeClaimedEvent is emitted when a player claims the pot
type PrizeClaimedEvent struct {
	WagerID    int64 `json:"wagerId"`
	ClaimantID int64 `json:"claimantId"`
	OpponentID int64 `json:"opponentId"`
}

func (e PrizeClaimedEvent) Type() EventType {
	return EventTypePrizeClaimed
}

// SettlementReason describes how a wager reached SETTLED
type SettlementReason string

const (
	SettlementAccepted    SettlementReason = "accepted"
	SettlementAutoSettled SettlementReason = "auto_settled"
	SettlementResolved    SettlementReason = "resolved"
)

// WagerSettledEvent is emitted when the pot is paid out
type WagerSettledEvent struct {
	WagerID     int64            `json:"wagerId"`
	WinnerID    int64            `json:"winnerId"`
	LoserID     int64            `json:"loserId"`
	Amount      int64            `json:"amount"`
	PlatformFee int64            `json:"platformFee"`
	Payout      int64            `json:"payout"`
	Reason      SettlementReason `json:"reason"`
}

func (e WagerSettledEvent) Type() EventType {
	return EventTypeWagerSettled
}

// WagerDisputedEvent is emitted when a claim is contested and an admin assigned
type WagerDisputedEvent struct {
	WagerID int64 `json:"wagerId"`
	AdminID int64 `json:"adminId"`
	ChatID  int64 `json:"chatId"`
}

func (e WagerDisputedEvent) Type() EventType {
	return EventTypeWagerDisputed
}

// WagerDeletedEvent is emitted when a creator withdraws an unjoined wager
type WagerDeletedEvent struct {
	WagerID   int64 `json:"wagerId"`
	CreatorID int64 `json:"creatorId"`
	Refunded  int64 `json:"refunded"`
}

func (e WagerDeletedEvent) Type() EventType {
	return EventTypeWagerDeleted
}

// TransactionConfirmedEvent is emitted when a rail movement reaches SUCCESS
type TransactionConfirmedEvent struct {
	TransactionID int64            `json:"transactionId"`
	UserID        int64            `json:"userId"`
	Rail          models.Rail      `json:"rail"`
	Direction     models.Direction `json:"direction"`
	Amount        int64            `json:"amount"`
}

func (e TransactionConfirmedEvent) Type() EventType {
	return EventTypeTransactionConfirmed
}

// TransactionFailedEvent is emitted when a rail movement reaches FAILED
type TransactionFailedEvent struct {
	TransactionID int64            `json:"transactionId"`
	UserID        int64            `json:"userId"`
	Rail          models.Rail      `json:"rail"`
	Direction     models.Direction `json:"direction"`
	Amount        int64            `json:"amount"`
	Reason        string           `json:"reason"`
}

func (e TransactionFailedEvent) Type() EventType {
	return EventTypeTransactionFailed
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds a handler for every known event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes() {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work until it commits.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush is called after a successful commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing transactional bus")

	// Handlers outlive the request that committed the transaction
	eventCtx := context.WithoutCancel(ctx)

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// Discard is called after a rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
