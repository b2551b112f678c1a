package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"marketplace-upgrade/internal/domain"
	"marketplace-upgrade/internal/domain/ports/adapter"
)

// PushGateway implements adapter.PaymentGateway against the provider's
// STK-push REST API using direct HTTP calls.
type PushGateway struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

func NewPushGateway(baseURL, accessToken string, timeout time.Duration) *PushGateway {
	return &PushGateway{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		client:      &http.Client{Timeout: timeout},
	}
}

func (g *PushGateway) Name() string { return "mpesa-push" }

// pushRequestResponse represents the response from the payment initiation API.
type pushRequestResponse struct {
	Success bool `json:"success"`
	Data    struct {
		CorrelationID string `json:"correlationId"`
	} `json:"data"`
	Message string `json:"message"`
}

// pushStatusResponse represents the response from the status query API.
type pushStatusResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// errorBody is the provider's rejection shape; either field may carry the
// human-readable reason.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (g *PushGateway) RequestPush(ctx context.Context, phoneNumber string, amount int64, meta adapter.PushMetadata) (string, error) {
	requestData := map[string]interface{}{
		"phoneNumber": phoneNumber,
		"amount":      amount,
		"metadata": map[string]interface{}{
			"planName": meta.PlanName,
			"isAnnual": meta.IsAnnual,
			"type":     meta.Type,
		},
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request data: %w", err)
	}

	url := g.baseURL + "/payments/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.ProviderRejection{Reason: rejectionReason(body)}
	}

	var response pushRequestResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	if !response.Success || response.Data.CorrelationID == "" {
		return "", &domain.ProviderRejection{Reason: response.Message}
	}

	return response.Data.CorrelationID, nil
}

func (g *PushGateway) QueryStatus(ctx context.Context, correlationID string) (adapter.PushStatus, error) {
	url := g.baseURL + "/payments/push/" + correlationID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status query returned %d: %s", resp.StatusCode, rejectionReason(body))
	}

	var response pushStatusResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}

	switch response.Status {
	case "completed":
		return adapter.PushStatusCompleted, nil
	case "failed":
		return adapter.PushStatusFailed, nil
	case "pending":
		return adapter.PushStatusPending, nil
	}
	return "", fmt.Errorf("status query returned unknown status %q", response.Status)
}

func (g *PushGateway) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.accessToken)
	}
}

// rejectionReason pulls a human-readable reason out of a non-2xx body. The
// provider is inconsistent about the field name; an empty string falls back
// to the generic message upstream.
func rejectionReason(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Message != "" {
		return eb.Message
	}
	return eb.Error
}
