package models

import (
	"time"
)

// Idempotency scopes with their own TTLs
const (
	IdempotencyScopeWallet = "wallet"
	IdempotencyScopeFiat   = "fiat"
)

// IdempotencyStatus is the state recorded against an idempotency key
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "PENDING"
)

// IdempotencyRecord is the value stored for an admitted key
type IdempotencyRecord struct {
	Status    IdempotencyStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Admission is the outcome of presenting an idempotency key
type Admission int

const (
	AdmissionFresh Admission = iota
	AdmissionDuplicate
)
