package adapter

import "context"

// PushStatus is the provider's classification of an outstanding push request.
type PushStatus string

const (
	PushStatusCompleted PushStatus = "completed"
	PushStatusFailed    PushStatus = "failed"
	PushStatusPending   PushStatus = "pending"
)

// PushMetadata is attached to the initiation request so the provider's
// statement and our reconciliation reports carry the plan context.
type PushMetadata struct {
	PlanName string
	IsAnnual bool
	Type     string
}

// PaymentGateway is the hex port for push-style payment providers.
type PaymentGateway interface {
	Name() string

	// RequestPush asks the provider to prompt the subscriber's device and
	// returns the correlation ID used for all later status checks. A
	// provider decline is returned as *domain.ProviderRejection so its
	// reason can be surfaced verbatim.
	RequestPush(ctx context.Context, phoneNumber string, amount int64, meta PushMetadata) (correlationID string, err error)

	// QueryStatus looks up the push identified by correlationID. Responses
	// outside the known status set are reported as errors, not guessed at.
	QueryStatus(ctx context.Context, correlationID string) (PushStatus, error)
}

// EntitlementRefresher re-fetches the user's account data after a successful
// upgrade so premium-gated surfaces reflect the new tier. A refresh failure
// never rolls back a completed payment.
type EntitlementRefresher interface {
	Refresh(ctx context.Context, userID string) error
}
