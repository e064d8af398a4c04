package api

import (
	"net/http"

	"wagerbook/models"
	"wagerbook/service"

	"github.com/gin-gonic/gin"
)

type userResponse struct {
	ID         int64   `json:"id"`
	Username   string  `json:"username"`
	Email      string  `json:"email,omitempty"`
	ChatHandle *string `json:"chatHandle,omitempty"`
	Balance    int64   `json:"balance"`
}

type messageRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

type messageResponse struct {
	ID       int64  `json:"id"`
	ChatID   int64  `json:"chatId"`
	SenderID *int64 `json:"senderId,omitempty"`
	Body     string `json:"body"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		ChatHandle: u.ChatHandle,
		Balance:    u.Balance,
	}
}

func (s *Server) registerUser(c *gin.Context) {
	var req service.RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondInvalid(c, err)
		return
	}

	user, err := s.services.Users.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(user))
}

func (s *Server) me(c *gin.Context) {
	user, err := s.services.Users.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (s *Server) postDisputeMessage(c *gin.Context) {
	userID := currentUser(c)
	s.postMessage(c, &userID)
}

// postAdminMessage posts as the system
func (s *Server) postAdminMessage(c *gin.Context) {
	s.postMessage(c, nil)
}

func (s *Server) postMessage(c *gin.Context, senderID *int64) {
	chatID, ok := pathID(c)
	if !ok {
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondInvalid(c, err)
		return
	}

	msg, err := s.services.Disputes.PostMessage(c.Request.Context(), chatID, senderID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, messageResponse{
		ID:       msg.ID,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Body:     msg.Body,
	})
}
