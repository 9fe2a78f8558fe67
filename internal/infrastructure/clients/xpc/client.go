package xpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clinsight/clinical-dashboard/internal/domain/providers"
	"github.com/clinsight/clinical-dashboard/pkg/config"
)

// ErrRateLimited indicates the chart review API rejected the request with 429.
var ErrRateLimited = fmt.Errorf("chart review rate limit exceeded")

// Client calls the external chart review API. It implements
// providers.ChartReviewProvider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ providers.ChartReviewProvider = (*Client)(nil)

type reviewRequest struct {
	Domains []providers.ReviewDomain `json:"domains"`
	Chart   map[string]interface{}   `json:"chart"`
}

type reviewResponse struct {
	Domains []providers.DomainReview `json:"domains"`
}

// NewClient creates a new chart review client.
func NewClient(cfg *config.XPCConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Review submits the chart and domain criteria and returns per-domain
// narrative reviews.
func (c *Client) Review(ctx context.Context, chart map[string]interface{}, domains []providers.ReviewDomain) ([]providers.DomainReview, error) {
	payload, err := json.Marshal(reviewRequest{Domains: domains, Chart: chart})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chart review request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chart-review", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chart review failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	result := &reviewResponse{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, err
	}
	return result.Domains, nil
}
