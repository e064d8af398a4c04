package api

import (
	"context"
	"net/http"
	"time"

	"wagerbook/models"
	"wagerbook/service"

	"github.com/gin-gonic/gin"
)

const timeLayout = time.RFC3339

type wagerResponse struct {
	ID          int64              `json:"id"`
	PlayerOne   int64              `json:"playerOne"`
	PlayerTwo   *int64             `json:"playerTwo,omitempty"`
	Stake       int64              `json:"stake"`
	Amount      int64              `json:"amount"`
	Category    string             `json:"category"`
	Description string             `json:"description"`
	Status      models.WagerStatus `json:"status"`
	Winner      *int64             `json:"winner,omitempty"`
	InviteCode  string             `json:"inviteCode"`
	PlatformFee *int64             `json:"platformFee,omitempty"`
	ClaimedAt   *string            `json:"claimedAt,omitempty"`
	SettledAt   *string            `json:"settledAt,omitempty"`
	CreatedAt   string             `json:"createdAt"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}

func toWagerResponse(w *models.Wager) wagerResponse {
	return wagerResponse{
		ID:          w.ID,
		PlayerOne:   w.PlayerOne,
		PlayerTwo:   w.PlayerTwo,
		Stake:       w.Stake,
		Amount:      w.Amount,
		Category:    w.Category,
		Description: w.Description,
		Status:      w.Status,
		Winner:      w.Winner,
		InviteCode:  w.InviteCode,
		PlatformFee: w.PlatformFee,
		ClaimedAt:   formatTime(w.ClaimedAt),
		SettledAt:   formatTime(w.SettledAt),
		CreatedAt:   w.CreatedAt.UTC().Format(timeLayout),
	}
}

type resolveRequest struct {
	Winner string `json:"winner" validate:"required"`
}

func (s *Server) createWager(c *gin.Context) {
	var req service.CreateWagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondInvalid(c, err)
		return
	}

	wager, err := s.services.Wagers.Create(c.Request.Context(), currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toWagerResponse(wager))
}

func (s *Server) listWagers(c *gin.Context) {
	wagers, err := s.services.Wagers.ListByUser(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]wagerResponse, 0, len(wagers))
	for _, w := range wagers {
		resp = append(resp, toWagerResponse(w))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getWager(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.respondWager(c, http.StatusOK)(s.services.Wagers.Get(c.Request.Context(), id))
}

func (s *Server) findByInvite(c *gin.Context) {
	s.respondWager(c, http.StatusOK)(s.services.Wagers.FindByInvite(c.Request.Context(), c.Param("code")))
}

func (s *Server) joinByInvite(c *gin.Context) {
	s.respondWager(c, http.StatusOK)(s.services.Wagers.JoinByInvite(c.Request.Context(), currentUser(c), c.Param("code")))
}

func (s *Server) updateWager(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.UpdateWagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondInvalid(c, err)
		return
	}

	s.respondWager(c, http.StatusOK)(s.services.Wagers.Update(c.Request.Context(), currentUser(c), id, req))
}

func (s *Server) deleteWager(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.services.Wagers.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) joinWager(c *gin.Context) {
	s.wagerAction(c, s.services.Wagers.Join)
}

func (s *Server) claimPrize(c *gin.Context) {
	s.wagerAction(c, s.services.Wagers.Claim)
}

func (s *Server) acceptClaim(c *gin.Context) {
	s.wagerAction(c, s.services.Wagers.AcceptClaim)
}

func (s *Server) contestClaim(c *gin.Context) {
	s.wagerAction(c, s.services.Wagers.ContestClaim)
}

func (s *Server) resolveDispute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondInvalid(c, err)
		return
	}

	s.respondWager(c, http.StatusOK)(s.services.Wagers.ResolveDispute(c.Request.Context(), id, req.Winner))
}

// wagerAction runs a player action on the wager named in the path
func (s *Server) wagerAction(c *gin.Context, action func(ctx context.Context, userID, wagerID int64) (*models.Wager, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.respondWager(c, http.StatusOK)(action(c.Request.Context(), currentUser(c), id))
}

func (s *Server) respondWager(c *gin.Context, status int) func(*models.Wager, error) {
	return func(wager *models.Wager, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(status, toWagerResponse(wager))
	}
}
