package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wagerbook/service"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const (
	NotificationsStream   = "NOTIFICATIONS"
	SubjectEmailNotify    = "notifications.email"
	notificationStreamTTL = 24 * time.Hour
)

// NATSNotifier hands notifications to the mail service through JetStream
type NATSNotifier struct {
	natsClient *NATSClient
}

// NewNATSNotifier creates a new notifier
func NewNATSNotifier(natsClient *NATSClient) *NATSNotifier {
	return &NATSNotifier{natsClient: natsClient}
}

// Setup creates the notifications stream
func (n *NATSNotifier) Setup() error {
	return n.natsClient.EnsureStream(NotificationsStream, []string{"notifications.>"}, notificationStreamTTL)
}

func (n *NATSNotifier) Notify(ctx context.Context, notification service.Notification) error {
	if notification.Email == "" {
		log.WithFields(log.Fields{
			"userId":   notification.UserID,
			"template": notification.Template,
		}).Debug("Skipping notification for user without email")
		return nil
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := nats.NewMsg(SubjectEmailNotify)
	msg.Data = data
	return n.natsClient.Publish(ctx, msg)
}
