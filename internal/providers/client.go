// Package providers supplies one marketdata.Fetcher (and a
// marketdata.KlinesProvider) per upstream source named in spec.md §4.2,
// each over its own resty client, modeled after the teacher's
// binance.RestClient retry/rate-limit pattern.
package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// httpClient wraps a *resty.Client with the shared rate-limit + retry
// policy every provider in this package uses.
type httpClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newHTTPClient(baseURL string, rps float64, burst int, timeout time.Duration, logger *zap.Logger) *httpClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return &httpClient{client: client, limiter: limiter, logger: logger}
}

// do executes req with rate limiting and retry-with-backoff on 429/418/5xx,
// identical in spirit to the exchange REST client's doRequest.
func (h *httpClient) do(ctx context.Context, method, path string, req *resty.Request) (*resty.Response, error) {
	const maxRetries = 3
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err = req.Execute(method, path)
		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			status := resp.StatusCode()
			if status == http.StatusTooManyRequests || status == 418 {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if status >= 500 {
				shouldRetry = true
			}
		} else {
			shouldRetry = true
		}

		if !shouldRetry {
			if resp != nil {
				return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
			return nil, fmt.Errorf("request failed: %w", err)
		}

		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		if h.logger != nil {
			h.logger.Warn("provider request failed, retrying",
				zap.String("path", path), zap.Int("attempt", i+1), zap.Duration("retry_after", retryAfter))
		}

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
