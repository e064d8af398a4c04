package service

import (
	"context"
	"fmt"
	"strings"

	"wagerbook/config"
	"wagerbook/models"

	log "github.com/sirupsen/logrus"
)

// Assignment is the outcome of routing a contested wager to a mediator
type Assignment struct {
	Admin *models.Admin
	Chat  *models.DisputeChat
}

// DisputeService assigns mediators and manages mediation chats
type DisputeService struct {
	uowFactory UnitOfWorkFactory
	messenger  Messenger
	notifier   Notifier
	config     config.WagerConfig
}

// NewDisputeService creates a new dispute service
func NewDisputeService(uowFactory UnitOfWorkFactory, messenger Messenger, notifier Notifier, cfg config.WagerConfig) *DisputeService {
	return &DisputeService{
		uowFactory: uowFactory,
		messenger:  messenger,
		notifier:   notifier,
		config:     cfg,
	}
}

// Assign picks the least-loaded admin of the wager's category, or the super
// admin when the category has none, bumps their counter and opens a chat
// seeded with a system message. The admin rows stay
// locked until the caller's unit of work ends, so a concurrent assignment in
// the same category sees the incremented counter.
func (s *DisputeService) Assign(ctx context.Context, uow UnitOfWork, wager *models.Wager) (*Assignment, error) {
	admins, err := uow.AdminRepository().LockEligibleByCategory(ctx, wager.Category, s.config.SuperAdminID)
	if err != nil {
		return nil, fmt.Errorf("failed to load admins: %w", err)
	}
	if len(admins) == 0 {
		fallback, err := s.superAdmin(ctx, uow, wager)
		if err != nil {
			return nil, err
		}
		admins = []*models.Admin{fallback}
	}

	// Admins arrive in id order, so strict less-than breaks ties on the lowest id
	chosen := admins[0]
	for _, a := range admins[1:] {
		if a.Disputes < chosen.Disputes {
			chosen = a
		}
	}

	if err := uow.AdminRepository().AdjustDisputes(ctx, chosen.ID, 1); err != nil {
		return nil, fmt.Errorf("failed to increment admin disputes: %w", err)
	}
	chosen.Disputes++

	chat := &models.DisputeChat{
		AdminID: chosen.ID,
		WagerID: wager.ID,
		Status:  models.DisputeChatOpen,
	}
	if err := uow.DisputeChatRepository().Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create dispute chat: %w", err)
	}

	intro := &models.DisputeMessage{
		ChatID: chat.ID,
		Body:   fmt.Sprintf("Dispute opened for wager #%d. %s will mediate.", wager.ID, chosen.Username),
	}
	if err := uow.DisputeChatRepository().AddMessage(ctx, intro); err != nil {
		return nil, fmt.Errorf("failed to seed dispute chat: %w", err)
	}

	log.WithFields(log.Fields{
		"wagerID":  wager.ID,
		"adminID":  chosen.ID,
		"disputes": chosen.Disputes,
		"category": wager.Category,
	}).Info("Assigned dispute to admin")

	return &Assignment{Admin: chosen, Chat: chat}, nil
}

// superAdmin loads the mediator for categories without an eligible admin
func (s *DisputeService) superAdmin(ctx context.Context, uow UnitOfWork, wager *models.Wager) (*models.Admin, error) {
	admin, err := uow.AdminRepository().GetByID(ctx, s.config.SuperAdminID)
	if err != nil {
		return nil, fmt.Errorf("failed to load super admin: %w", err)
	}
	if admin == nil {
		return nil, fmt.Errorf("category %q: %w", wager.Category, ErrNoEligibleAdmin)
	}

	log.WithFields(log.Fields{
		"wagerID":  wager.ID,
		"category": wager.Category,
		"adminID":  admin.ID,
	}).Warn("No eligible admin in category, falling back to super admin")

	return admin, nil
}

// OpenChannel opens the mediation thread for a disputed wager, invites both
// players and the assigned admin, then notifies the players. It runs after the
// contest has committed and does nothing when the thread already exists or the
// dispute is closed.
func (s *DisputeService) OpenChannel(ctx context.Context, wagerID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	chat, err := uow.DisputeChatRepository().GetByWagerID(ctx, wagerID)
	if err != nil {
		return fmt.Errorf("failed to get dispute chat: %w", err)
	}
	if chat == nil {
		return fmt.Errorf("dispute chat for wager %d: %w", wagerID, ErrNotFound)
	}
	if chat.ChannelRef != nil || chat.Status == models.DisputeChatClosed {
		return nil
	}

	wager, err := uow.WagerRepository().GetByID(ctx, wagerID)
	if err != nil {
		return fmt.Errorf("failed to get wager: %w", err)
	}
	if wager == nil {
		return fmt.Errorf("wager %d: %w", wagerID, ErrNotFound)
	}

	admin, err := uow.AdminRepository().GetByID(ctx, chat.AdminID)
	if err != nil {
		return fmt.Errorf("failed to get admin: %w", err)
	}

	var participants, names []string
	var players []*models.User
	playerIDs := []int64{wager.PlayerOne}
	if wager.PlayerTwo != nil {
		playerIDs = append(playerIDs, *wager.PlayerTwo)
	}
	for _, id := range playerIDs {
		user, err := uow.UserRepository().GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get player %d: %w", id, err)
		}
		if user == nil {
			continue
		}
		players = append(players, user)
		names = append(names, user.Username)
		if user.ChatHandle != nil {
			participants = append(participants, *user.ChatHandle)
		}
	}
	adminName := "an admin"
	if admin != nil {
		adminName = admin.Username
		if admin.ChatHandle != nil {
			participants = append(participants, *admin.ChatHandle)
		}
	}

	ref, err := s.messenger.OpenChannel(ctx, MediationChannel{
		WagerID:      wagerID,
		Title:        fmt.Sprintf("Dispute: wager #%d", wagerID),
		Intro:        fmt.Sprintf("%s contested the result of wager #%d (%s). %s will mediate.", strings.Join(names, " and "), wagerID, wager.Category, adminName),
		Participants: participants,
	})
	if err != nil {
		return fmt.Errorf("failed to open mediation channel: %w", err)
	}

	if err := uow.DisputeChatRepository().SetChannelRef(ctx, chat.ID, ref); err != nil {
		return fmt.Errorf("failed to store channel reference: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"wagerID":    wagerID,
		"chatID":     chat.ID,
		"channelRef": ref,
	}).Info("Opened mediation channel")

	for _, player := range players {
		err := s.notifier.Notify(ctx, Notification{
			UserID:   player.ID,
			Email:    player.Email,
			Template: NotifyWagerDisputed,
			Data: map[string]any{
				"wagerId":    wagerID,
				"chatId":     chat.ID,
				"admin":      adminName,
				"channelRef": ref,
			},
		})
		if err != nil {
			log.WithError(err).WithField("userID", player.ID).Warn("Failed to send dispute notification")
		}
	}

	return nil
}

// Close ends mediation for a wager and releases the admin's slot
func (s *DisputeService) Close(ctx context.Context, uow UnitOfWork, wagerID int64) error {
	chat, err := uow.DisputeChatRepository().GetByWagerID(ctx, wagerID)
	if err != nil {
		return fmt.Errorf("failed to get dispute chat: %w", err)
	}
	if chat == nil || chat.Status == models.DisputeChatClosed {
		return nil
	}

	if err := uow.DisputeChatRepository().Close(ctx, chat.ID); err != nil {
		return fmt.Errorf("failed to close dispute chat: %w", err)
	}
	if err := uow.AdminRepository().AdjustDisputes(ctx, chat.AdminID, -1); err != nil {
		return fmt.Errorf("failed to decrement admin disputes: %w", err)
	}

	return nil
}

// PostMessage appends to a chat log and mirrors it into the mediation channel
// when one is open. A nil senderID posts as the system.
func (s *DisputeService) PostMessage(ctx context.Context, chatID int64, senderID *int64, body string) (*models.DisputeMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("empty message: %w", ErrInvalidRequest)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	chat, err := uow.DisputeChatRepository().GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispute chat: %w", err)
	}
	if chat == nil {
		return nil, fmt.Errorf("dispute chat %d: %w", chatID, ErrNotFound)
	}
	if chat.Status == models.DisputeChatClosed {
		return nil, fmt.Errorf("dispute chat %d is closed: %w", chatID, ErrInvalidState)
	}

	msg := &models.DisputeMessage{ChatID: chatID, SenderID: senderID, Body: body}
	if err := uow.DisputeChatRepository().AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if chat.ChannelRef != nil {
		if err := s.messenger.Post(ctx, *chat.ChannelRef, body); err != nil {
			log.WithError(err).WithField("chatID", chatID).Warn("Failed to mirror dispute message")
		}
	}

	return msg, nil
}
