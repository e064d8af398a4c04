package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wagerbook/models"
	"wagerbook/service"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Rail adapter subjects served by the payment provider and chain bridges
const (
	SubjectFiatTransfer       = "rails.fiat.transfer"
	SubjectFiatVerify         = "rails.fiat.verify"
	SubjectCryptoBroadcast    = "rails.crypto.broadcast"
	SubjectCryptoConfirmation = "rails.crypto.confirmation"
)

// RailReply is the response body of every rail request
type RailReply struct {
	Reference    string               `json:"reference,omitempty"`
	Confirmation *models.Confirmation `json:"confirmation,omitempty"`
	Error        string               `json:"error,omitempty"`
}

type referenceRequest struct {
	Reference string `json:"reference"`
}

// NATSRailClient talks to the fiat gateway and chain bridge over NATS request/reply
type NATSRailClient struct {
	client  *NATSClient
	timeout time.Duration
}

var (
	_ service.FiatGateway = (*NATSRailClient)(nil)
	_ service.ChainClient = (*NATSRailClient)(nil)
)

// NewNATSRailClient creates a rail client with a per-request timeout
func NewNATSRailClient(client *NATSClient, timeout time.Duration) *NATSRailClient {
	return &NATSRailClient{client: client, timeout: timeout}
}

func (r *NATSRailClient) Transfer(ctx context.Context, req service.TransferRequest) (string, error) {
	return r.send(ctx, SubjectFiatTransfer, req)
}

func (r *NATSRailClient) Verify(ctx context.Context, ref string) (*models.Confirmation, error) {
	return r.confirm(ctx, SubjectFiatVerify, ref)
}

func (r *NATSRailClient) Broadcast(ctx context.Context, req service.TransferRequest) (string, error) {
	return r.send(ctx, SubjectCryptoBroadcast, req)
}

func (r *NATSRailClient) GetConfirmation(ctx context.Context, ref string) (*models.Confirmation, error) {
	return r.confirm(ctx, SubjectCryptoConfirmation, ref)
}

func (r *NATSRailClient) send(ctx context.Context, subject string, req service.TransferRequest) (string, error) {
	reply, err := r.request(ctx, subject, req)
	if err != nil {
		return "", err
	}
	if reply.Reference == "" {
		return "", fmt.Errorf("%s returned no reference: %w", subject, service.ErrRailUnavailable)
	}
	return reply.Reference, nil
}

func (r *NATSRailClient) confirm(ctx context.Context, subject, ref string) (*models.Confirmation, error) {
	reply, err := r.request(ctx, subject, referenceRequest{Reference: ref})
	if err != nil {
		return nil, err
	}
	return reply.Confirmation, nil
}

// request performs one round trip. Timeouts, missing responders and
// adapter-reported errors all surface as ErrRailUnavailable.
func (r *NATSRailClient) request(ctx context.Context, subject string, body any) (*RailReply, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.client.Request(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			log.WithFields(log.Fields{
				"subject": subject,
				"error":   err,
			}).Warn("Rail adapter did not answer")
		}
		return nil, fmt.Errorf("%s: %v: %w", subject, err, service.ErrRailUnavailable)
	}

	var reply RailReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode %s reply: %v: %w", subject, err, service.ErrRailUnavailable)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%s: %s: %w", subject, reply.Error, service.ErrRailUnavailable)
	}
	return &reply, nil
}
