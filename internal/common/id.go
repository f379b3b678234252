package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique VettingRun id with the "run_" prefix.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewMatchID generates a unique JobMatch id with the "match_" prefix.
func NewMatchID() string {
	return "match_" + uuid.New().String()
}

// NewLogID generates a unique audit-log row id with the "log_" prefix.
func NewLogID() string {
	return "log_" + uuid.New().String()
}

// NewDeliveryID generates a unique DeliveryLedger id with the
// "delivery_" prefix.
func NewDeliveryID() string {
	return "delivery_" + uuid.New().String()
}

// NewOwnerID generates a unique scheduler lock owner id, one per process
// instance, with the "owner_" prefix.
func NewOwnerID() string {
	return "owner_" + uuid.New().String()
}
