// File: internal/usecase/coordinator.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"marketplace-upgrade/internal/domain"
	"marketplace-upgrade/internal/domain/model"
	"marketplace-upgrade/internal/domain/ports/adapter"
	"marketplace-upgrade/internal/domain/ports/repository"
	"marketplace-upgrade/internal/infra/logging"
)

// CheckTrigger identifies which path asked for a status check. The two paths
// share one in-flight guard but differ in how errors are surfaced.
type CheckTrigger string

const (
	TriggerScheduled CheckTrigger = "scheduled"
	TriggerManual    CheckTrigger = "manual"
)

// Outcome is the resolver's classification of one status response.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"

	// OutcomeError is reported to OnCheck when a manual check could not reach
	// a verdict at all. It is never returned as a resolution.
	OutcomeError Outcome = "error"
)

// classifyStatus maps a provider status to an outcome. The mapping is pure:
// the same status always yields the same outcome. Anything outside the known
// set is an error handled per the caller's trigger.
func classifyStatus(st adapter.PushStatus) (Outcome, error) {
	switch st {
	case adapter.PushStatusCompleted:
		return OutcomeCompleted, nil
	case adapter.PushStatusFailed:
		return OutcomeFailed, nil
	case adapter.PushStatusPending:
		return OutcomePending, nil
	}
	return "", fmt.Errorf("unrecognized push status %q", st)
}

// InitiateInput carries the raw submission from the upgrade modal.
type InitiateInput struct {
	UserID       string
	PlanID       string
	PlanName     string
	BillingCycle model.BillingCycle
	Amount       string
	PhoneNumber  string
}

// SessionView is a point-in-time copy handed to transport layers. The live
// session is never shared outside the coordinator.
type SessionView struct {
	model.ConfirmationSession
	CheckInFlight bool
	RedirectReady bool
}

// CoordinatorOptions tune the poll loop and success effects.
type CoordinatorOptions struct {
	PollInterval  time.Duration // scheduled status-check period
	RedirectDelay time.Duration // delay before the success redirect is signalled
	MaxPollChecks int           // 0 means poll until cancelled or terminal

	// OnCheck observes every resolved status check (metrics wiring).
	OnCheck func(trigger CheckTrigger, outcome Outcome)
	// OnTerminal observes every transition into a terminal state.
	OnTerminal func(s model.ConfirmationSession)
}

// Compile-time check
var _ ConfirmationCoordinator = (*coordinator)(nil)

// ConfirmationCoordinator owns the out-of-band payment confirmation flow:
// it submits the push request, polls the provider for a verdict, serializes
// manual re-checks against the scheduled poll, and fires the success side
// effects exactly once.
type ConfirmationCoordinator interface {
	// Initiate validates input, submits the push, and starts polling.
	Initiate(ctx context.Context, in InitiateInput) (SessionView, error)
	// CheckNow forces an immediate status check, sharing the scheduled
	// poll's in-flight guard. Returns domain.ErrCheckInFlight when a check
	// is already outstanding.
	CheckNow(ctx context.Context, sessionID string) (Outcome, error)
	// Snapshot returns the current view of a session.
	Snapshot(sessionID string) (SessionView, error)
	// Dismiss cancels a non-terminal session; stale in-flight results are
	// discarded. Safe to call repeatedly.
	Dismiss(ctx context.Context, sessionID string) error
	// Close cancels every live session's poller and waits for them to stop.
	Close()
}

type coordinator struct {
	gateway      adapter.PaymentGateway
	entitlements adapter.EntitlementRefresher
	attempts     repository.AttemptRepository
	opts         CoordinatorOptions
	log          *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// session is the runtime wrapper around one ConfirmationSession: the model
// data guarded by mu, the shared in-flight flag, and the poll handle.
type session struct {
	mu   sync.Mutex
	data model.ConfirmationSession

	// inFlight serializes scheduled ticks against manual checks. The CAS is
	// the only way in; release happens on every exit path of check().
	inFlight atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}

	// effects guards the one-shot success side effects.
	effects       sync.Once
	redirectReady atomic.Bool

	checks int // scheduled checks performed, for MaxPollChecks
}

func (s *session) view() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		ConfirmationSession: s.data,
		CheckInFlight:       s.inFlight.Load(),
		RedirectReady:       s.redirectReady.Load(),
	}
}

func NewCoordinator(
	gateway adapter.PaymentGateway,
	entitlements adapter.EntitlementRefresher,
	attempts repository.AttemptRepository,
	opts CoordinatorOptions,
	logger *zerolog.Logger,
) *coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.RedirectDelay <= 0 {
		opts.RedirectDelay = time.Second
	}
	l := logger.With().Str("component", "ConfirmationCoordinator").Logger()
	return &coordinator{
		gateway:      gateway,
		entitlements: entitlements,
		attempts:     attempts,
		opts:         opts,
		log:          &l,
		sessions:     make(map[string]*session),
	}
}

func (c *coordinator) Initiate(ctx context.Context, in InitiateInput) (SessionView, error) {
	defer logging.TraceDuration(c.log, "Coordinator.Initiate")()

	data, err := model.NewConfirmationSession(in.UserID, in.PlanID, in.PlanName, in.BillingCycle, in.Amount, in.PhoneNumber)
	if err != nil {
		return SessionView{}, err
	}

	data.State = model.StateSubmitting
	meta := adapter.PushMetadata{
		PlanName: data.PlanName,
		IsAnnual: data.BillingCycle == model.BillingAnnual,
		Type:     "upgrade",
	}
	correlationID, err := c.gateway.RequestPush(ctx, data.PhoneNumber, data.Amount, meta)
	if err != nil {
		// Nothing was started provider-side that we can track; the attempt
		// stays fully retryable.
		c.log.Warn().Err(err).
			Str("user_id", data.UserID).
			Str("phone", logging.Redact(data.PhoneNumber)).
			Msg("push initiation failed")
		return SessionView{}, err
	}

	now := time.Now()
	data.CorrelationID = correlationID
	data.State = model.StateAwaiting
	data.UpdatedAt = now

	if err := c.attempts.Save(ctx, data); err != nil {
		// The push is already live; keep coordinating and rely on logs for
		// the missing audit row.
		c.log.Error().Err(err).Str("session_id", data.ID).Msg("persist attempt failed")
	}

	s := &session{data: *data, done: make(chan struct{})}
	pollCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	c.mu.Lock()
	c.sessions[data.ID] = s
	c.mu.Unlock()

	go c.poll(pollCtx, s)

	c.log.Info().
		Str("session_id", data.ID).
		Str("correlation_id", correlationID).
		Str("phone", logging.Redact(data.PhoneNumber)).
		Int64("amount", data.Amount).
		Msg("push initiated; awaiting confirmation")
	return s.view(), nil
}

// poll drives the scheduled status checks until cancellation or a terminal
// state. No tick fires after the session context is cancelled.
func (c *coordinator) poll(ctx context.Context, s *session) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcome, err := c.check(ctx, s, TriggerScheduled)
			if err != nil {
				// Guard collisions and terminal races; this tick is skipped,
				// never queued.
				continue
			}
			if outcome == OutcomeCompleted || outcome == OutcomeFailed {
				return
			}
			s.checks++
			if c.opts.MaxPollChecks > 0 && s.checks >= c.opts.MaxPollChecks {
				c.finish(s, model.StateFailed, "timed out waiting for payment confirmation")
				return
			}
		}
	}
}

// check runs one status check under the shared in-flight guard. The guard is
// released on every exit path. Scheduled transport errors degrade to pending;
// manual ones are returned so the caller can surface them.
func (c *coordinator) check(ctx context.Context, s *session, trigger CheckTrigger) (Outcome, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return "", domain.ErrCheckInFlight
	}

	s.mu.Lock()
	if s.data.State != model.StateAwaiting {
		s.mu.Unlock()
		s.inFlight.Store(false)
		return "", domain.ErrSessionTerminal
	}
	s.data.State = model.StateChecking
	correlationID := s.data.CorrelationID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.data.State == model.StateChecking {
			s.data.State = model.StateAwaiting
		}
		s.mu.Unlock()
		s.inFlight.Store(false)
	}()

	status, err := c.gateway.QueryStatus(ctx, correlationID)
	var outcome Outcome
	if err == nil {
		outcome, err = classifyStatus(status)
	}
	if err != nil {
		if trigger == TriggerManual {
			// The user asked for an answer now; do not pretend we got one.
			c.observeCheck(trigger, OutcomeError)
			return "", fmt.Errorf("status check: %w", err)
		}
		c.log.Warn().Err(err).Str("correlation_id", correlationID).Msg("scheduled check failed; treating as pending")
		c.observeCheck(trigger, OutcomePending)
		return OutcomePending, nil
	}

	switch outcome {
	case OutcomeCompleted:
		c.complete(s)
	case OutcomeFailed:
		c.finish(s, model.StateFailed, "payment was not completed")
	}
	c.observeCheck(trigger, outcome)
	return outcome, nil
}

// complete transitions into Completed and fires the success effects exactly
// once: entitlement refresh immediately, redirect signal after the configured
// delay. A session cancelled while the check was in flight is left untouched.
func (c *coordinator) complete(s *session) {
	s.mu.Lock()
	if s.data.State.Terminal() {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	s.data.State = model.StateCompleted
	s.data.CompletedAt = &now
	s.data.UpdatedAt = now
	snap := s.data
	s.mu.Unlock()

	s.cancel()

	// The conditional update is the system-wide once guard: whoever swaps the
	// row to completed owns the entitlement refresh. When the background
	// reconciler got there first, only the UI-side effects remain here.
	swapped, err := c.attempts.MarkCompleted(context.Background(), snap.ID, now)
	if err != nil {
		// Cannot tell whether anyone else finalized the row; a duplicate
		// refresh beats leaving a paid account stale.
		c.log.Error().Err(err).Str("session_id", snap.ID).Msg("persist completion failed")
		swapped = true
	}

	s.effects.Do(func() {
		if swapped {
			go func() {
				refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := c.entitlements.Refresh(refreshCtx, snap.UserID); err != nil {
					// Payment already succeeded; the refresh is retried by the
					// next app load, never rolled back.
					c.log.Warn().Err(err).Str("user_id", snap.UserID).Msg("entitlement refresh failed after upgrade")
				}
			}()
		} else {
			c.log.Info().Str("session_id", snap.ID).Msg("attempt already finalized elsewhere; skipping entitlement refresh")
		}
		time.AfterFunc(c.opts.RedirectDelay, func() {
			s.redirectReady.Store(true)
		})
	})

	c.log.Info().Str("session_id", snap.ID).Msg("payment confirmed; upgrade completed")
	if c.opts.OnTerminal != nil {
		c.opts.OnTerminal(snap)
	}
}

// finish transitions into a non-success terminal state (Failed or Cancelled)
// and stops the poller. No effect fires twice and terminal states absorb.
func (c *coordinator) finish(s *session, state model.SessionState, reason string) {
	s.mu.Lock()
	if s.data.State.Terminal() {
		s.mu.Unlock()
		return
	}
	s.data.State = state
	s.data.FailureReason = reason
	s.data.UpdatedAt = time.Now()
	snap := s.data
	s.mu.Unlock()

	s.cancel()

	if err := c.attempts.UpdateState(context.Background(), snap.ID, state, reason); err != nil {
		c.log.Error().Err(err).Str("session_id", snap.ID).Msg("persist terminal state failed")
	}

	c.log.Info().Str("session_id", snap.ID).Str("state", string(state)).Str("reason", reason).Msg("session finished")
	if c.opts.OnTerminal != nil {
		c.opts.OnTerminal(snap)
	}
}

func (c *coordinator) CheckNow(ctx context.Context, sessionID string) (Outcome, error) {
	defer logging.TraceDuration(c.log, "Coordinator.CheckNow")()

	s, err := c.lookup(sessionID)
	if err != nil {
		return "", err
	}
	return c.check(ctx, s, TriggerManual)
}

func (c *coordinator) Snapshot(sessionID string) (SessionView, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(), nil
}

func (c *coordinator) Dismiss(ctx context.Context, sessionID string) error {
	s, err := c.lookup(sessionID)
	if err != nil {
		return err
	}
	c.finish(s, model.StateCancelled, "dismissed by user")
	return nil
}

func (c *coordinator) Close() {
	c.mu.Lock()
	live := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		live = append(live, s)
	}
	c.mu.Unlock()

	for _, s := range live {
		s.cancel()
		<-s.done
	}
}

func (c *coordinator) lookup(sessionID string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (c *coordinator) observeCheck(trigger CheckTrigger, outcome Outcome) {
	if c.opts.OnCheck != nil {
		c.opts.OnCheck(trigger, outcome)
	}
}
