package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"marketplace-upgrade/internal/domain"
	"marketplace-upgrade/internal/domain/model"
	"marketplace-upgrade/internal/infra/logging"
	"marketplace-upgrade/internal/infra/metrics"
	red "marketplace-upgrade/internal/infra/redis"
	"marketplace-upgrade/internal/usecase"
)

// genericInitiateError is shown when the provider gives us nothing quotable.
const genericInitiateError = "could not start the payment, please try again"

type initiateRequest struct {
	PhoneNumber  string `json:"phone_number"`
	Amount       string `json:"amount"`
	PlanID       string `json:"plan_id"`
	PlanName     string `json:"plan_name"`
	BillingCycle string `json:"billing_cycle"`
}

type sessionResponse struct {
	ID            string  `json:"id"`
	State         string  `json:"state"`
	PlanID        string  `json:"plan_id"`
	PlanName      string  `json:"plan_name"`
	BillingCycle  string  `json:"billing_cycle"`
	Amount        int64   `json:"amount"`
	CorrelationID string  `json:"correlation_id,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`
	CheckInFlight bool    `json:"check_in_flight"`
	RedirectReady bool    `json:"redirect_ready"`
	CreatedAt     string  `json:"created_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

type checkResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) initiateHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userID(ctx)

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	token, err := s.locker.TryLock(ctx, red.SessionLockKey(uid), s.cfg.SessionLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrActiveSessionExists) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "an upgrade is already in progress"})
			return
		}
		logging.With(ctx, s.log).Error().Err(err).Msg("session lock failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: genericInitiateError})
		return
	}

	view, err := s.coordinator.Initiate(ctx, usecase.InitiateInput{
		UserID:       uid,
		PlanID:       req.PlanID,
		PlanName:     req.PlanName,
		BillingCycle: model.BillingCycle(req.BillingCycle),
		Amount:       req.Amount,
		PhoneNumber:  req.PhoneNumber,
	})
	if err != nil {
		// The session never started; free the slot for a retry.
		_ = s.locker.Unlock(ctx, red.SessionLockKey(uid), token)

		var rejection *domain.ProviderRejection
		switch {
		case errors.Is(err, domain.ErrInvalidPhoneNumber), errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidArgument):
			metrics.PushInitiations.WithLabelValues("invalid").Inc()
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.As(err, &rejection):
			metrics.PushInitiations.WithLabelValues("rejected").Inc()
			msg := rejection.Reason
			if msg == "" {
				msg = genericInitiateError
			}
			writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: msg})
		default:
			metrics.PushInitiations.WithLabelValues("error").Inc()
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: genericInitiateError})
		}
		return
	}

	s.locks.Put(view.ID, token)
	metrics.PushInitiations.WithLabelValues("ok").Inc()
	metrics.ActiveSessions.Inc()
	writeJSON(w, http.StatusCreated, toSessionResponse(view))
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(view))
}

func (s *Server) manualCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userID(ctx)

	view, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	ctx = logging.WithSessID(ctx, view.ID)

	allowed, err := s.limiter.Allow(ctx, red.ManualCheckKey(uid), s.cfg.ManualCheckLimit, s.cfg.ManualCheckWindow)
	if err != nil {
		// Redis trouble must not block the user from getting an answer.
		logging.With(ctx, s.log).Warn().Err(err).Msg("manual check rate limit unavailable")
	} else if !allowed {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many checks, please wait a moment"})
		return
	}

	start := time.Now()
	outcome, err := s.coordinator.CheckNow(ctx, view.ID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCheckInFlight):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "a status check is already running"})
		case errors.Is(err, domain.ErrSessionTerminal):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "this payment attempt has already finished"})
		default:
			// The user asked for an answer; a transport failure is an error
			// here, not a silent retry.
			metrics.CheckDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "could not reach the payment provider, please try again"})
		}
		return
	}
	metrics.CheckDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())

	switch outcome {
	case usecase.OutcomeCompleted:
		writeJSON(w, http.StatusOK, checkResponse{Status: "completed", Message: "Payment confirmed. Your account has been upgraded."})
	case usecase.OutcomeFailed:
		writeJSON(w, http.StatusOK, checkResponse{Status: "failed", Message: "The payment was not completed. Please start a new upgrade to try again."})
	default:
		// Informational, not an error: the subscriber may still be typing
		// their PIN.
		writeJSON(w, http.StatusOK, checkResponse{Status: "pending", Message: "We have not received confirmation yet. Complete the prompt on your phone and check again."})
	}
}

func (s *Server) dismissHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	if err := s.coordinator.Dismiss(r.Context(), view.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not cancel the session"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedSession resolves {sessionID} and rejects callers reading someone
// else's session. Foreign sessions 404 rather than 403 to avoid leaking IDs.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (usecase.SessionView, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	view, err := s.coordinator.Snapshot(sessionID)
	if err != nil || view.UserID != userID(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return usecase.SessionView{}, false
	}
	return view, true
}

func toSessionResponse(v usecase.SessionView) sessionResponse {
	resp := sessionResponse{
		ID:            v.ID,
		State:         string(v.State),
		PlanID:        v.PlanID,
		PlanName:      v.PlanName,
		BillingCycle:  string(v.BillingCycle),
		Amount:        v.Amount,
		CorrelationID: v.CorrelationID,
		FailureReason: v.FailureReason,
		CheckInFlight: v.CheckInFlight,
		RedirectReady: v.RedirectReady,
		CreatedAt:     v.CreatedAt.Format(time.RFC3339),
	}
	if v.CompletedAt != nil {
		t := v.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &t
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
