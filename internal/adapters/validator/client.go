package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"membershipinitiation/internal/domain"
)

// Client calls the external AI validation collaborator over HTTP JSON.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient returns a Validator that POSTs review requests to baseURL.
// The timeout bounds each call in addition to any caller context deadline.
func NewClient(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

var _ domain.Validator = (*Client)(nil)

type validateRequest struct {
	InvitationCode string                 `json:"invitation_code"`
	InvitedName    string                 `json:"invited_name"`
	Responses      []domain.ResponseEntry `json:"responses"`
}

type validateResponse struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Validate sends the full response set and invitation metadata to the
// collaborator and decodes its verdict.
func (c *Client) Validate(ctx context.Context, req *domain.ValidationRequest) (*domain.ValidationResult, error) {
	body, err := json.Marshal(validateRequest{
		InvitationCode: req.InvitationCode,
		InvitedName:    req.InvitedName,
		Responses:      req.Responses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call validator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validator returned status: %d", resp.StatusCode)
	}

	var data validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode validator response: %w", err)
	}

	verdict, err := parseVerdict(data.Verdict)
	if err != nil {
		return nil, err
	}
	if data.Confidence < 0 || data.Confidence > 1 {
		return nil, fmt.Errorf("validator confidence out of range: %f", data.Confidence)
	}
	return &domain.ValidationResult{
		Verdict:    verdict,
		Confidence: data.Confidence,
		Rationale:  data.Rationale,
	}, nil
}

func parseVerdict(s string) (domain.ValidationVerdict, error) {
	switch domain.ValidationVerdict(s) {
	case domain.VerdictPass, domain.VerdictFail, domain.VerdictUncertain:
		return domain.ValidationVerdict(s), nil
	default:
		return "", fmt.Errorf("validator returned unknown verdict: %q", s)
	}
}
