package keywell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/providers"
	"github.com/clinsight/clinical-dashboard/pkg/config"
)

const defaultConfidence = 0.92

// Client implements the consultation provider against a Databricks-style
// model-serving endpoint. Every consultation is a two-step exchange: a probe
// request establishes a session, then the clinical query is sent against it.
type Client struct {
	endpoint   string
	token      string
	modelID    string
	modelLabel string
	httpClient *http.Client
	limiter    *tokenBucket
}

// NewClient creates a new serving-endpoint client.
func NewClient(cfg *config.KeywellConfig) (*Client, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, errors.New("keywell access token is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("keywell endpoint is required")
	}

	modelLabel := cfg.ModelVersion
	if modelLabel == "" {
		modelLabel = "MedGemma-4B-IT-v2"
	}

	limiter := newTokenBucket(cfg.RateLimitRPM, cfg.RateLimitBurst)

	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		token:      cfg.Token,
		modelID:    cfg.ModelID,
		modelLabel: modelLabel,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: limiter,
	}, nil
}

// Close stops the rate limiter's refill goroutine. The client must not be
// used after Close.
func (c *Client) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
}

type invocationInputs struct {
	Question  []string `json:"question"`
	ModelID   string   `json:"model_id"`
	SID       string   `json:"sid"`
	SessionID string   `json:"session_id,omitempty"`
}

type invocationRequest struct {
	Inputs invocationInputs `json:"inputs"`
}

type prediction struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// invocationResponse tolerates both response shapes the endpoint has been
// observed to return: predictions as an object and predictions as an array.
type invocationResponse struct {
	Predictions json.RawMessage `json:"predictions"`
	SessionID   string          `json:"session_id"`
}

func (r *invocationResponse) predictions() []prediction {
	if len(r.Predictions) == 0 {
		return nil
	}
	var single prediction
	if err := json.Unmarshal(r.Predictions, &single); err == nil {
		if single.SessionID != "" || single.Response != "" {
			return []prediction{single}
		}
	}
	var many []prediction
	if err := json.Unmarshal(r.Predictions, &many); err == nil {
		return many
	}
	return nil
}

func (r *invocationResponse) sessionID() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	for _, p := range r.predictions() {
		if p.SessionID != "" {
			return p.SessionID
		}
	}
	return ""
}

// Consult sends a clinical query through the serving endpoint and returns the
// structured consultation payload.
func (c *Client) Consult(ctx context.Context, query string) (*entities.Consultation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("consultation query is required")
	}

	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			recordConsultMetric(ctx, c.modelLabel, 0, 0, err)
			return nil, err
		}
		recordConsultRateLimitWait(ctx, c.modelLabel, time.Since(waitStart))
	}

	sid := "user_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	sessionID, err := c.initSession(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("session initialization failed: %w", err)
	}

	start := time.Now()
	envelope, status, err := c.invoke(ctx, invocationInputs{
		Question:  []string{query},
		ModelID:   c.modelID,
		SID:       sid,
		SessionID: sessionID,
	})
	if err != nil {
		recordConsultMetric(ctx, c.modelLabel, status, time.Since(start), err)
		return nil, err
	}

	var response string
	for _, p := range envelope.predictions() {
		if p.Response != "" {
			response = p.Response
			break
		}
	}
	if response == "" {
		err := errors.New("consultation response missing")
		recordConsultMetric(ctx, c.modelLabel, status, time.Since(start), err)
		return nil, err
	}

	recordConsultMetric(ctx, c.modelLabel, status, time.Since(start), nil)
	return &entities.Consultation{
		Query:        query,
		Response:     response,
		SessionID:    sessionID,
		ModelVersion: c.modelLabel,
		Confidence:   defaultConfidence,
	}, nil
}

// initSession sends the probe request and extracts the session id.
func (c *Client) initSession(ctx context.Context, sid string) (string, error) {
	envelope, status, err := c.invoke(ctx, invocationInputs{
		Question: []string{"Hello"},
		ModelID:  c.modelID,
		SID:      sid,
	})
	if err != nil {
		recordConsultMetric(ctx, c.modelLabel, status, 0, err)
		return "", err
	}

	sessionID := envelope.sessionID()
	if sessionID == "" {
		return "", errors.New("no session id in endpoint response")
	}
	return sessionID, nil
}

func (c *Client) invoke(ctx context.Context, inputs invocationInputs) (*invocationResponse, int, error) {
	body, err := json.Marshal(invocationRequest{Inputs: inputs})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, resp.StatusCode, fmt.Errorf("%w: endpoint returned status %d", providers.ErrConsultationUnauthorized, resp.StatusCode)
		}
		return nil, resp.StatusCode, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	var envelope invocationResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, resp.StatusCode, err
	}

	return &envelope, resp.StatusCode, nil
}

func newTokenBucket(rpm int, burst int) *tokenBucket {
	if rpm == 0 {
		rpm = 60
	}
	if rpm < 0 {
		return nil
	}
	if burst <= 0 {
		burst = 5
	}
	return newTokenBucketWithRate(rpm, burst)
}

type tokenBucket struct {
	tokens chan struct{}
	ticker *time.Ticker
	done   chan struct{}
}

func newTokenBucketWithRate(rpm int, burst int) *tokenBucket {
	interval := time.Minute / time.Duration(rpm)
	if interval <= 0 {
		interval = time.Millisecond
	}

	bucket := &tokenBucket{
		tokens: make(chan struct{}, burst),
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}

	for i := 0; i < burst; i++ {
		bucket.tokens <- struct{}{}
	}

	go func() {
		for {
			select {
			case <-bucket.done:
				return
			case <-bucket.ticker.C:
				select {
				case bucket.tokens <- struct{}{}:
				default:
				}
			}
		}
	}()

	return bucket
}

func (b *tokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.tokens:
		return nil
	}
}

func (b *tokenBucket) Stop() {
	b.ticker.Stop()
	close(b.done)
}
