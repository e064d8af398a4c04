package service

import (
	"context"
	"fmt"
	"strings"

	"wagerbook/models"

	log "github.com/sirupsen/logrus"
)

// RegisterUserRequest holds the fields of a new account
type RegisterUserRequest struct {
	Username   string  `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email      string  `json:"email" validate:"omitempty,email"`
	ChatHandle *string `json:"chatHandle" validate:"omitempty,numeric"`
}

// UserService manages accounts
type UserService interface {
	Register(ctx context.Context, req RegisterUserRequest) (*models.User, error)
	Get(ctx context.Context, userID int64) (*models.User, error)
}

// userService implements the UserService interface
type userService struct {
	uowFactory UnitOfWorkFactory
}

// NewUserService creates a new user service
func NewUserService(uowFactory UnitOfWorkFactory) UserService {
	return &userService{uowFactory: uowFactory}
}

// Register creates an account with a zero balance. Funds arrive through deposits.
func (s *userService) Register(ctx context.Context, req RegisterUserRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, ErrInvalidUsername
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user := &models.User{
		Username:   username,
		Email:      strings.TrimSpace(req.Email),
		ChatHandle: req.ChatHandle,
	}
	if err := uow.UserRepository().Create(ctx, user); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"userId":   user.ID,
		"username": user.Username,
	}).Info("Registered user")
	return user, nil
}

// Get returns a user by id
func (s *userService) Get(ctx context.Context, userID int64) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
