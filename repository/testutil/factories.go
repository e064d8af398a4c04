package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"

	"wagerbook/models"
)

var sequence atomic.Int64

func next() int64 {
	return sequence.Add(1)
}

// CreateTestUser creates a test user with default values
func CreateTestUser(username string) *models.User {
	return &models.User{
		Username: username,
		Email:    username + "@example.com",
		Balance:  100_000,
	}
}

// CreateTestUserWithBalance creates a test user with a specific balance
func CreateTestUserWithBalance(username string, balance int64) *models.User {
	user := CreateTestUser(username)
	user.Balance = balance
	return user
}

// CreateTestWager creates a PENDING wager opened by creatorID
func CreateTestWager(creatorID int64, stake int64) *models.Wager {
	return &models.Wager{
		PlayerOne:   creatorID,
		Stake:       stake,
		Amount:      2 * stake,
		Category:    "football",
		Description: "test wager",
		Status:      models.WagerStatusPending,
		InviteCode:  fmt.Sprintf("T%07d", next()),
	}
}

// CreateActiveTestWager creates an ACTIVE wager between two players
func CreateActiveTestWager(playerOne, playerTwo int64, stake int64) *models.Wager {
	wager := CreateTestWager(playerOne, stake)
	wager.PlayerTwo = &playerTwo
	wager.Status = models.WagerStatusActive
	return wager
}

// CreateTestDeposit creates a PENDING rail deposit
func CreateTestDeposit(userID int64, rail models.Rail, amount int64) *models.Transaction {
	ref := strings.ToLower(string(rail)) + fmt.Sprintf("-ref-%d", next())
	return &models.Transaction{
		UserID:       userID,
		Amount:       amount,
		Rail:         rail,
		Direction:    models.DirectionDeposit,
		Kind:         models.TransactionKindDeposit,
		Status:       models.TransactionStatusPending,
		ExternalRef:  &ref,
		Counterparty: "platform",
		Source:       "depositor",
		Metadata:     map[string]any{"test": true},
	}
}

// CreateTestAdmin creates an admin for a category with a given dispute load
func CreateTestAdmin(username, category string, disputes int) *models.Admin {
	return &models.Admin{
		Username: username,
		Category: category,
		Disputes: disputes,
	}
}
