// Package verification checks deliverability of addresses against an HTTP
// verification API before a send.
package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
	"github.com/ignite/outreach-orchestrator/internal/pkg/apperrors"
	"github.com/ignite/outreach-orchestrator/internal/pkg/httpretry"
	"github.com/ignite/outreach-orchestrator/internal/pkg/logger"
)

const maxBodyBytes = 64 << 10

// apiResponse is the verifier's JSON payload.
type apiResponse struct {
	Email           string  `json:"email"`
	Status          string  `json:"status"`
	SubStatus       string  `json:"sub_status"`
	Greylisted      bool    `json:"greylisted"`
	RetryAfterHours float64 `json:"retry_after_hours"`
	Diagnosis       string  `json:"diagnosis"`
}

// Client implements sending.Verifier.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *httpretry.RetryClient
}

// NewClient creates a verification client. doer may be nil.
func NewClient(baseURL, apiKey string, timeout time.Duration, maxRetries int, doer httpretry.HTTPDoer) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		http:    httpretry.NewRetryClient(doer, maxRetries),
	}
}

// WithBackoff replaces the retry backoff policy.
func (c *Client) WithBackoff(b httpretry.Backoff) *Client {
	c.http.WithBackoff(b)
	return c
}

// Verify checks one address, retrying transient failures at most
// maxRetries times. Negative maxRetries uses the client default.
func (c *Client) Verify(ctx context.Context, email string, maxRetries int) (*domain.VerificationResult, error) {
	if maxRetries < 0 {
		maxRetries = c.http.MaxRetries()
	}

	// The per-call timeout covers every retry so a prefetch cannot stall.
	ctx, cancel := context.WithTimeout(ctx, c.timeout*time.Duration(maxRetries+1))
	defer cancel()

	u := fmt.Sprintf("%s/v1/verify?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.Validation("verification.verify", "building request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.DoWithRetries(req, maxRetries)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Timeout("verification.verify", err)
		}
		return nil, apperrors.External("verification.verify", "transport", true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.External("verification.verify", "read_body", true, err)
	}

	if resp.StatusCode != http.StatusOK {
		code := fmt.Sprintf("http_%d", resp.StatusCode)
		return nil, apperrors.External("verification.verify", code, httpretry.IsRetryableStatus(resp.StatusCode),
			fmt.Errorf("verifier returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.External("verification.verify", "decode", false, err)
	}

	result := mapResponse(payload)
	result.RawResponse = string(body)

	logger.Debug("email_verified", "email", email, "status", result.Status,
		"greylisted", result.IsGreylisted, "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// mapResponse normalises the verifier's status vocabulary.
func mapResponse(p apiResponse) *domain.VerificationResult {
	r := &domain.VerificationResult{
		Status:          domain.VerificationUnknown,
		IsGreylisted:    p.Greylisted,
		RetryAfterHours: p.RetryAfterHours,
		Diagnosis:       p.Diagnosis,
	}

	switch strings.ToLower(strings.ReplaceAll(p.Status, "-", "_")) {
	case "valid", "deliverable", "ok":
		r.Status = domain.VerificationValid
		r.IsValid = true
	case "catch_all", "catchall", "accept_all":
		r.Status = domain.VerificationCatchAll
	case "invalid", "undeliverable", "bounce":
		r.Status = domain.VerificationInvalid
	}

	if strings.EqualFold(p.SubStatus, "greylisted") {
		r.IsGreylisted = true
	}
	if r.IsGreylisted {
		r.IsValid = false
		if r.RetryAfterHours <= 0 {
			r.RetryAfterHours = 1
		}
	}
	if r.Diagnosis == "" && p.SubStatus != "" {
		r.Diagnosis = p.SubStatus
	}
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
