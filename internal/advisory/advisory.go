// Package advisory is the optional LLM enrichment client the macro
// evaluator consults (spec.md §4.5.2): best-effort, never authoritative,
// and never allowed to change an evaluator's action or conviction.
package advisory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"cryptostrategist/internal/strategy/macro"
)

// Client calls a structured-completion style endpoint and returns a short
// textual summary.
type Client struct {
	http *resty.Client
}

// New builds an advisory Client over baseURL/apiKey.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+apiKey)
	return &Client{http: client}
}

type summarizeRequest struct {
	Scored   macro.ScoredTable `json:"scored"`
	Snapshot string            `json:"snapshot"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize implements macro.AdvisoryClient.
func (c *Client) Summarize(ctx context.Context, scored macro.ScoredTable, snapshot string) (string, error) {
	var out summarizeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(summarizeRequest{Scored: scored, Snapshot: snapshot}).
		SetResult(&out).
		Post("/summarize")
	if err != nil {
		return "", fmt.Errorf("advisory: summarize: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("advisory: summarize: status %s", resp.Status())
	}
	return out.Summary, nil
}

// NopClient always fails fast, used when advisory is disabled. The macro
// evaluator only calls this when Params.LLMEnabled is true, but a NopClient
// lets main wire a non-nil AdvisoryClient unconditionally.
type NopClient struct{}

func (NopClient) Summarize(ctx context.Context, scored macro.ScoredTable, snapshot string) (string, error) {
	return "", fmt.Errorf("advisory: disabled")
}
