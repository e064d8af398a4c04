package api

import (
	"net/http"
	"strconv"
	"strings"

	"wagerbook/models"
	"wagerbook/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// HeaderIdempotencyKey is required on withdrawals
const HeaderIdempotencyKey = "Idempotency-Key"

type balanceResponse struct {
	UserID  int64 `json:"userId"`
	Balance int64 `json:"balance"`
}

type transactionResponse struct {
	ID             int64                    `json:"id"`
	Amount         int64                    `json:"amount"`
	Rail           models.Rail              `json:"rail"`
	Direction      models.Direction         `json:"direction"`
	Kind           models.TransactionKind   `json:"kind"`
	Status         models.TransactionStatus `json:"status"`
	ExternalRef    *string                  `json:"externalRef,omitempty"`
	ExternalAmount *decimal.Decimal         `json:"externalAmount,omitempty"`
	BalanceAfter   *int64                   `json:"balanceAfter,omitempty"`
	FailureReason  *string                  `json:"failureReason,omitempty"`
	CreatedAt      string                   `json:"createdAt"`
}

func toTransactionResponse(tx *models.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:            tx.ID,
		Amount:        tx.Amount,
		Rail:          tx.Rail,
		Direction:     tx.Direction,
		Kind:          tx.Kind,
		Status:        tx.Status,
		ExternalRef:   tx.ExternalRef,
		BalanceAfter:  tx.BalanceAfter,
		FailureReason: tx.FailureReason,
		CreatedAt:     tx.CreatedAt.UTC().Format(timeLayout),
	}
	if tx.ExternalAmount.Valid {
		amount := tx.ExternalAmount.Decimal
		resp.ExternalAmount = &amount
	}
	return resp
}

func (s *Server) balance(c *gin.Context) {
	user, err := s.services.Wallet.Balance(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{UserID: user.ID, Balance: user.Balance})
}

func (s *Server) history(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	txs, err := s.services.Wallet.History(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, toTransactionResponse(tx))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) withdraw(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key == "" {
		respondError(c, service.ErrMissingIdempotencyKey)
		return
	}

	var req service.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondInvalid(c, err)
		return
	}
	req.IdempotencyKey = key

	outcome, err := s.services.Wallet.Withdraw(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	if outcome.Duplicate {
		c.JSON(http.StatusAccepted, gin.H{"status": "processing"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":      "pending",
		"transaction": toTransactionResponse(outcome.Transaction),
	})
}

func (s *Server) deposit(c *gin.Context) {
	var req service.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondInvalid(c, err)
		return
	}

	tx, err := s.services.Wallet.Deposit(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toTransactionResponse(tx))
}
