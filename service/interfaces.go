package service

import (
	"context"
	"time"

	"wagerbook/events"
	"wagerbook/models"

	"github.com/shopspring/decimal"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user by id, nil when absent
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetForUpdate retrieves a user and locks the row until the unit of work ends
	GetForUpdate(ctx context.Context, id int64) (*models.User, error)

	// GetByUsername retrieves a user by username, nil when absent
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// Create inserts a new user and fills in its id and timestamps
	Create(ctx context.Context, user *models.User) error

	// UpdateBalance writes a new balance for a user
	UpdateBalance(ctx context.Context, id int64, newBalance int64) error
}

// WagerRepository defines the interface for wager data access
type WagerRepository interface {
	Create(ctx context.Context, wager *models.Wager) error
	GetByID(ctx context.Context, id int64) (*models.Wager, error)

	// GetForUpdate retrieves a wager and locks the row so that accept, contest
	// and auto-settlement serialize on it
	GetForUpdate(ctx context.Context, id int64) (*models.Wager, error)

	GetByInviteCode(ctx context.Context, code string) (*models.Wager, error)

	// ListByUser returns wagers the user plays in, newest first
	ListByUser(ctx context.Context, userID int64) ([]*models.Wager, error)

	// ListPendingClaims returns ACTIVE wagers with a claimed winner
	ListPendingClaims(ctx context.Context) ([]*models.Wager, error)

	// Update persists the mutable wager fields
	Update(ctx context.Context, wager *models.Wager) error
}

// TransactionRepository defines the interface for the transaction ledger
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetForUpdate(ctx context.Context, id int64) (*models.Transaction, error)

	// GetByExternalRefForUpdate finds the deposit or withdrawal row carrying a rail reference
	GetByExternalRefForUpdate(ctx context.Context, rail models.Rail, ref string) (*models.Transaction, error)

	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)

	// ListPending returns PENDING rail transactions created before the cutoff
	ListPending(ctx context.Context, createdBefore time.Time) ([]*models.Transaction, error)

	// Finalize moves a PENDING row to SUCCESS or FAILED and records the balance snapshot
	Finalize(ctx context.Context, tx *models.Transaction) error

	// IncrementRetries bumps the retry counter of a PENDING row, sets its next
	// attempt time and returns the new count
	IncrementRetries(ctx context.Context, id int64, nextAttemptAt time.Time) (int, error)

	// SetExternalRef attaches a rail reference to a PENDING row
	SetExternalRef(ctx context.Context, id int64, ref string, nextAttemptAt time.Time) error
}

// AdminRepository defines the interface for dispute mediators
type AdminRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Admin, error)

	// LockEligibleByCategory locks every admin of a category except excludeID,
	// in id order so concurrent assignments acquire locks consistently
	LockEligibleByCategory(ctx context.Context, category string, excludeID int64) ([]*models.Admin, error)

	// AdjustDisputes adds delta to the admin's disputes counter, never below zero
	AdjustDisputes(ctx context.Context, id int64, delta int) error
}

// DisputeChatRepository defines the interface for mediation records
type DisputeChatRepository interface {
	Create(ctx context.Context, chat *models.DisputeChat) error
	GetByID(ctx context.Context, id int64) (*models.DisputeChat, error)
	GetByWagerID(ctx context.Context, wagerID int64) (*models.DisputeChat, error)
	SetChannelRef(ctx context.Context, id int64, ref string) error
	Close(ctx context.Context, id int64) error
	AddMessage(ctx context.Context, msg *models.DisputeMessage) error
	ListMessages(ctx context.Context, chatID int64) ([]*models.DisputeMessage, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork wraps one database transaction and the repositories bound to it
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() UserRepository
	WagerRepository() WagerRepository
	TransactionRepository() TransactionRepository
	AdminRepository() AdminRepository
	DisputeChatRepository() DisputeChatRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// IdempotencyGuard suppresses duplicate money-moving requests within a TTL window
type IdempotencyGuard interface {
	// Admit records the key as in flight, or reports it as a duplicate
	Admit(ctx context.Context, scope, key string) (models.Admission, error)

	// Release forgets a key so a synchronously failed request can be retried
	Release(ctx context.Context, scope, key string) error
}

// SettlementScheduler holds at most one delayed job per id
type SettlementScheduler interface {
	// Schedule stores a job, replacing any existing job with the same id
	Schedule(ctx context.Context, job models.ScheduledJob) error

	// Cancel removes a job; removing an absent job is not an error
	Cancel(ctx context.Context, id string) error

	Exists(ctx context.Context, id string) (bool, error)
}

// JobQueue delivers background jobs, optionally after a delay
type JobQueue interface {
	Enqueue(ctx context.Context, name string, payload any, delay time.Duration) error
}

// TransferRequest asks a rail to move money out of the platform. The rail
// deduplicates on Reference: resending a reference never pays out twice.
type TransferRequest struct {
	Reference string          `json:"reference"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"` // Rail-native units
	Currency  string          `json:"currency"`
}

// FiatGateway is the bank-transfer payment provider
type FiatGateway interface {
	// Transfer initiates a payout and returns the provider reference
	Transfer(ctx context.Context, req TransferRequest) (string, error)

	// Verify looks up the current state of a transfer or charge
	Verify(ctx context.Context, ref string) (*models.Confirmation, error)
}

// ChainClient is the blockchain rail
type ChainClient interface {
	// Broadcast sends a payout transaction and returns its hash
	Broadcast(ctx context.Context, req TransferRequest) (string, error)

	// GetConfirmation reports whether a transaction is confirmed on chain
	GetConfirmation(ctx context.Context, ref string) (*models.Confirmation, error)
}

// RateProvider converts between ledger cents and rail-native amounts
type RateProvider interface {
	FromCents(ctx context.Context, rail models.Rail, cents int64) (decimal.Decimal, error)
	ToCents(ctx context.Context, rail models.Rail, amount decimal.Decimal) (int64, error)
}

// Notification templates
const (
	NotifyPrizeClaimed         = "prize_claimed"
	NotifyWagerSettled         = "wager_settled"
	NotifyWagerDisputed        = "wager_disputed"
	NotifyTransactionConfirmed = "transaction_confirmed"
	NotifyTransactionFailed    = "transaction_failed"
)

// Notification is a message to a user; formatting and delivery are external
type Notification struct {
	UserID   int64          `json:"userId"`
	Email    string         `json:"email,omitempty"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
}

// Notifier hands notifications to the delivery service
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// MediationChannel describes a dispute thread to open
type MediationChannel struct {
	WagerID      int64
	Title        string
	Intro        string
	Participants []string // Chat handles to invite
}

// Messenger opens and writes to mediation channels
type Messenger interface {
	OpenChannel(ctx context.Context, ch MediationChannel) (string, error)
	Post(ctx context.Context, channelRef, body string) error
}

// Metrics records business counters
type Metrics interface {
	RecordDispute(ctx context.Context, category string)
	RecordSettlement(ctx context.Context, reason string, amount, fee int64)
	RecordReconciliation(ctx context.Context, rail models.Rail, outcome string)
}

// CreateWagerRequest holds the fields a creator supplies
type CreateWagerRequest struct {
	Stake       int64  `json:"stake" binding:"required" validate:"required,gt=0"`
	Category    string `json:"category" binding:"required" validate:"required,max=64"`
	Description string `json:"description" validate:"max=1000"`
}

// UpdateWagerRequest patches a PENDING wager; nil fields are left unchanged
type UpdateWagerRequest struct {
	Stake       *int64  `json:"stake" validate:"omitempty,gt=0"`
	Category    *string `json:"category" validate:"omitempty,min=1,max=64"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

// WagerService drives the wager lifecycle
type WagerService interface {
	Create(ctx context.Context, userID int64, req CreateWagerRequest) (*models.Wager, error)
	Update(ctx context.Context, userID, wagerID int64, req UpdateWagerRequest) (*models.Wager, error)
	Join(ctx context.Context, userID, wagerID int64) (*models.Wager, error)
	JoinByInvite(ctx context.Context, userID int64, code string) (*models.Wager, error)
	FindByInvite(ctx context.Context, code string) (*models.Wager, error)
	Get(ctx context.Context, wagerID int64) (*models.Wager, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Wager, error)
	Claim(ctx context.Context, userID, wagerID int64) (*models.Wager, error)
	AcceptClaim(ctx context.Context, userID, wagerID int64) (*models.Wager, error)
	ContestClaim(ctx context.Context, userID, wagerID int64) (*models.Wager, error)
	AutoSettle(ctx context.Context, payload models.SettleWagerPayload) error
	Delete(ctx context.Context, userID, wagerID int64) error
	ResolveDispute(ctx context.Context, wagerID int64, username string) (*models.Wager, error)
	RecoverPendingSettlements(ctx context.Context) (int, error)
}

// WithdrawalRequest asks to move balance out through a rail
type WithdrawalRequest struct {
	Rail           models.Rail `json:"rail" validate:"required,oneof=FIAT CRYPTO"`
	Amount         int64       `json:"amount" validate:"required,gt=0"` // Cents
	Destination    string      `json:"destination" validate:"required"`
	IdempotencyKey string      `json:"-"`
}

// DepositRequest declares an incoming transfer the user has made or will make
type DepositRequest struct {
	Rail      models.Rail     `json:"rail" validate:"required,oneof=FIAT CRYPTO"`
	Amount    decimal.Decimal `json:"amount"` // Rail-native units
	Reference string          `json:"reference" validate:"required"`
	Source    string          `json:"source" validate:"required"`
}

// WithdrawalOutcome tells the caller whether the withdrawal was started by this request
type WithdrawalOutcome struct {
	Transaction *models.Transaction
	Duplicate   bool // Another request with the same key is still processing
}

// WalletService is the deposit and withdrawal entry point for both rails
type WalletService interface {
	Withdraw(ctx context.Context, userID int64, req WithdrawalRequest) (*WithdrawalOutcome, error)
	Deposit(ctx context.Context, userID int64, req DepositRequest) (*models.Transaction, error)
	Balance(ctx context.Context, userID int64) (*models.User, error)
	History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)
}

// Reconciler confirms pending rail transactions
type Reconciler interface {
	Reconcile(ctx context.Context, txID int64) error
	ApplyFiatEvent(ctx context.Context, event models.FiatEvent) error
	RecoverPending(ctx context.Context, olderThan time.Duration) (int, error)
}

// DisputeMediator handles post-commit mediation work
type DisputeMediator interface {
	OpenChannel(ctx context.Context, wagerID int64) error
	PostMessage(ctx context.Context, chatID int64, senderID *int64, body string) (*models.DisputeMessage, error)
}
