package models

import (
	"github.com/shopspring/decimal"
)

// ConfirmationStatus is what a rail reports about an external transfer
type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationFailed    ConfirmationStatus = "failed"
)

// Confirmation is a rail's view of an external transfer
type Confirmation struct {
	Reference string             `json:"reference"`
	Status    ConfirmationStatus `json:"status"`
	Recipient string             `json:"recipient"`
	Sender    string             `json:"sender"`
	Amount    decimal.Decimal    `json:"amount"` // Rail-native units
	Reason    string             `json:"reason,omitempty"`
}

// Fiat webhook event names
const (
	FiatEventChargeSuccess    = "charge.success"
	FiatEventTransferSuccess  = "transfer.success"
	FiatEventTransferFailed   = "transfer.failed"
	FiatEventTransferReversed = "transfer.reversed"
)

// FiatEvent is a verified payment-provider webhook event
type FiatEvent struct {
	Event string        `json:"event" binding:"required"`
	Data  FiatEventData `json:"data"`
}

// FiatEventData is the transfer described by a webhook event
type FiatEventData struct {
	Reference string          `json:"reference" binding:"required"`
	Amount    decimal.Decimal `json:"amount"` // Major units, e.g. 12.50
	Currency  string          `json:"currency"`
	Recipient string          `json:"recipient"`
	Sender    string          `json:"sender"`
	Reason    string          `json:"reason,omitempty"`
}

// Confirmation converts the webhook payload into the rail confirmation shape
func (e FiatEvent) Confirmation() Confirmation {
	status := ConfirmationPending
	switch e.Event {
	case FiatEventChargeSuccess, FiatEventTransferSuccess:
		status = ConfirmationConfirmed
	case FiatEventTransferFailed, FiatEventTransferReversed:
		status = ConfirmationFailed
	}
	return Confirmation{
		Reference: e.Data.Reference,
		Status:    status,
		Recipient: e.Data.Recipient,
		Sender:    e.Data.Sender,
		Amount:    e.Data.Amount,
		Reason:    e.Data.Reason,
	}
}
