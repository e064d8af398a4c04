package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"wagerbook/config"
	"wagerbook/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const (
	threadArchiveMinutes = 10080
	maxThreadNameLength  = 100
)

// DiscordMessenger opens a private thread per dispute under a parent channel
type DiscordMessenger struct {
	session         *discordgo.Session
	parentChannelID string
}

// NewDiscordMessenger creates a REST-only Discord session
func NewDiscordMessenger(cfg config.DiscordConfig) (*DiscordMessenger, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	return &DiscordMessenger{session: dg, parentChannelID: cfg.DisputeChannelID}, nil
}

// OpenChannel starts the thread, posts the intro and invites the participants
func (m *DiscordMessenger) OpenChannel(ctx context.Context, ch service.MediationChannel) (string, error) {
	name := ch.Title
	if len(name) > maxThreadNameLength {
		name = name[:maxThreadNameLength]
	}

	thread, err := m.session.ThreadStartComplex(m.parentChannelID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: threadArchiveMinutes,
		Type:                discordgo.ChannelTypeGuildPrivateThread,
		Invitable:           false,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to start dispute thread: %w", err)
	}

	for _, userID := range ch.Participants {
		if err := m.session.ThreadMemberAdd(thread.ID, userID, discordgo.WithContext(ctx)); err != nil {
			log.WithFields(log.Fields{
				"threadId": thread.ID,
				"userId":   userID,
				"error":    err,
			}).Warn("Failed to add participant to dispute thread")
		}
	}

	if _, err := m.session.ChannelMessageSend(thread.ID, ch.Intro+"\n"+mentions(ch.Participants), discordgo.WithContext(ctx)); err != nil {
		return thread.ID, fmt.Errorf("failed to post dispute intro: %w", err)
	}

	log.WithFields(log.Fields{
		"threadId": thread.ID,
		"wagerId":  ch.WagerID,
	}).Info("Opened Discord dispute thread")
	return thread.ID, nil
}

// Post writes a message to an existing thread
func (m *DiscordMessenger) Post(ctx context.Context, channelRef, body string) error {
	if _, err := m.session.ChannelMessageSend(channelRef, body, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to post to thread %s: %w", channelRef, err)
	}
	return nil
}

func mentions(userIDs []string) string {
	tags := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		tags = append(tags, fmt.Sprintf("<@%s>", id))
	}
	return strings.Join(tags, " ")
}
