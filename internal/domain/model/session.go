package model

import (
	"strconv"
	"strings"
	"time"

	"marketplace-upgrade/internal/domain"

	"github.com/google/uuid"
)

type SessionState string

const (
	StateIdle       SessionState = "idle"        // created, nothing submitted yet
	StateSubmitting SessionState = "submitting"  // push request in flight at provider
	StateAwaiting   SessionState = "awaiting"    // push accepted; waiting for the user to confirm on their device
	StateChecking   SessionState = "checking"    // a status check is in flight
	StateCompleted  SessionState = "completed"   // provider confirmed the payment
	StateFailed     SessionState = "failed"      // provider reported failure
	StateCancelled  SessionState = "cancelled"   // user dismissed the flow
)

// Terminal reports whether no further transitions may leave this state.
// A fresh session must be created to retry after failure.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingAnnual  BillingCycle = "annual"
)

// ConfirmationSession is the unit of work for one paid-tier upgrade attempt.
// Inputs are captured immutably at submission time; only the coordinator
// mutates the session after creation.
type ConfirmationSession struct {
	ID            string
	UserID        string
	PlanID        string
	PlanName      string
	BillingCycle  BillingCycle
	Amount        int64  // whole currency units, no fractions
	PhoneNumber   string // normalized to international digits-only form
	CorrelationID string // assigned at most once, by the provider
	State         SessionState
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// NewConfirmationSession validates the raw inputs and builds an Idle session.
// Validation never reaches the network; a session with an error result holds
// no provider-side state.
func NewConfirmationSession(userID, planID, planName string, cycle BillingCycle, rawAmount, rawPhone string) (*ConfirmationSession, error) {
	if userID == "" || planID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if cycle != BillingMonthly && cycle != BillingAnnual {
		return nil, domain.ErrInvalidArgument
	}
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &ConfirmationSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		PlanID:       planID,
		PlanName:     planName,
		BillingCycle: cycle,
		Amount:       amount,
		PhoneNumber:  phone,
		State:        StateIdle,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

const (
	localNumberLen         = 10 // 07XXXXXXXX / 01XXXXXXXX
	internationalNumberLen = 12 // 254XXXXXXXXX
	countryPrefix          = "254"
)

// NormalizePhone strips formatting, accepts local (07…/01…) and international
// (254…/+254…) subscriber numbers, and normalizes to digits-only
// international form. Numbers outside the accepted shapes are rejected.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-':
			// formatting characters from mobile keyboards
		default:
			return "", domain.ErrInvalidPhoneNumber
		}
	}
	digits := b.String()
	switch {
	case len(digits) == localNumberLen && (strings.HasPrefix(digits, "07") || strings.HasPrefix(digits, "01")):
		return countryPrefix + digits[1:], nil
	case len(digits) == internationalNumberLen && strings.HasPrefix(digits, countryPrefix):
		return digits, nil
	}
	return "", domain.ErrInvalidPhoneNumber
}

// ParseAmount accepts a positive integer amount with no thousands separators.
func ParseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrInvalidAmount
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	return n, nil
}
