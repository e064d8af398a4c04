package infrastructure

import (
	"context"
	"fmt"

	"wagerbook/service"

	log "github.com/sirupsen/logrus"
)

// LogMessenger stands in for Discord when no bot token is configured.
// Channels exist only in the log.
type LogMessenger struct{}

func NewLogMessenger() *LogMessenger {
	return &LogMessenger{}
}

func (m *LogMessenger) OpenChannel(_ context.Context, ch service.MediationChannel) (string, error) {
	ref := fmt.Sprintf("log-wager-%d", ch.WagerID)
	log.WithFields(log.Fields{
		"channelRef":   ref,
		"title":        ch.Title,
		"participants": ch.Participants,
	}).Info(ch.Intro)
	return ref, nil
}

func (m *LogMessenger) Post(_ context.Context, channelRef, body string) error {
	log.WithField("channelRef", channelRef).Info(body)
	return nil
}
