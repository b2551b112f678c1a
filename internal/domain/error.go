package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidPhoneNumber  = errors.New("invalid subscriber phone number")
	ErrInvalidAmount       = errors.New("amount must be a positive number")
	ErrCheckInFlight       = errors.New("a status check is already in flight")
	ErrSessionTerminal     = errors.New("confirmation session already finished")
	ErrActiveSessionExists = errors.New("user already has an active upgrade session")

	// Infrastructure-level errors surfaced to the domain
	ErrOperationFailed = errors.New("operation failed")
	ErrReadDatabaseRow = errors.New("failed to read database row")
)

// ProviderRejection carries the human-readable reason the payment provider
// returned when it declined to initiate a push. The reason is shown to the
// user verbatim when present.
type ProviderRejection struct {
	Reason string
}

func (e *ProviderRejection) Error() string {
	if e.Reason == "" {
		return "payment provider rejected the request"
	}
	return fmt.Sprintf("payment provider rejected the request: %s", e.Reason)
}
