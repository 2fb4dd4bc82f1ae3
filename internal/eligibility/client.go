// Package eligibility provides the external eligibility check for freshly
// created leads.
package eligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	leadrepo "loancrm_backend/internal/leads/repository"
	"loancrm_backend/internal/reconcile/engine"
	"loancrm_backend/platform/config"
	"loancrm_backend/platform/logger"
)

// Client calls the external eligibility service. A missing URL falls back
// to the static checker so development environments work without the
// upstream service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

func New(cfg config.EligibilityConfig, log *logger.Logger) engine.EligibilityChecker {
	if cfg.GetEligibilityURL() == "" {
		log.Info("eligibility service not configured, using static checker")
		return Static{Eligible: true}
	}
	timeout := cfg.GetEligibilityTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.GetEligibilityURL(),
		apiKey:     cfg.GetEligibilityAPIKey(),
		log:        log,
	}
}

type checkRequest struct {
	Phone    string `json:"phone"`
	FullName string `json:"fullName"`
	Source   string `json:"source"`
}

type checkResponse struct {
	Eligible bool   `json:"eligible"`
	Notes    string `json:"notes"`
}

// Check asks the upstream service whether the lead qualifies for an
// appointment. The client timeout bounds the call; the orchestrator treats
// a failure as a failed appointment step, never a failed lead.
func (c *Client) Check(ctx context.Context, lead *leadrepo.Lead) (engine.EligibilityResult, error) {
	body, err := json.Marshal(checkRequest{
		Phone:    lead.Phone,
		FullName: lead.FullName,
		Source:   lead.Source,
	})
	if err != nil {
		return engine.EligibilityResult{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return engine.EligibilityResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("eligibility request failed", "error", err, "leadId", lead.ID)
		return engine.EligibilityResult{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error("eligibility upstream error", "status", resp.StatusCode, "leadId", lead.ID)
		return engine.EligibilityResult{}, fmt.Errorf("upstream error: status %d", resp.StatusCode)
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return engine.EligibilityResult{}, fmt.Errorf("decode response: %w", err)
	}
	return engine.EligibilityResult{Eligible: out.Eligible, Notes: out.Notes}, nil
}

// Static is a fixed-answer checker for environments without the upstream
// service and for tests.
type Static struct {
	Eligible bool
	Notes    string
}

func (s Static) Check(_ context.Context, _ *leadrepo.Lead) (engine.EligibilityResult, error) {
	return engine.EligibilityResult{Eligible: s.Eligible, Notes: s.Notes}, nil
}
