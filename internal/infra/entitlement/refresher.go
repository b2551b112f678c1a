package entitlement

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"marketplace-upgrade/internal/domain/ports/adapter"
)

var _ adapter.EntitlementRefresher = (*HTTPRefresher)(nil)

// HTTPRefresher asks the account service to re-derive a user's entitlements
// after an upgrade. The call is fire-and-forget from the caller's point of
// view; a failure here never affects the completed payment.
type HTTPRefresher struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

func NewHTTPRefresher(baseURL, accessToken string, timeout time.Duration) *HTTPRefresher {
	return &HTTPRefresher{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		client:      &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRefresher) Refresh(ctx context.Context, userID string) error {
	url := r.baseURL + "/accounts/" + userID + "/refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.accessToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("entitlement refresh returned %d", resp.StatusCode)
	}
	return nil
}
