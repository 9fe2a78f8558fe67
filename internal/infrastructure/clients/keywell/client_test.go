package keywell

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsight/clinical-dashboard/pkg/config"
)

func testConfig(endpoint string) *config.KeywellConfig {
	return &config.KeywellConfig{
		Endpoint:       endpoint,
		Token:          "pat-123",
		ModelID:        "model-1",
		ModelVersion:   "MedGemma-4B-IT-v2",
		RateLimitRPM:   600,
		RateLimitBurst: 5,
	}
}

func TestNewClient_RequiresToken(t *testing.T) {
	cfg := testConfig("https://example.com/serving")
	cfg.Token = ""

	client, err := NewClient(cfg)
	require.Error(t, err)
	assert.Nil(t, client)
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	cfg := testConfig("")

	client, err := NewClient(cfg)
	require.Error(t, err)
	assert.Nil(t, client)
}

func TestNewClient_TrimsEndpointAndDefaultsModelLabel(t *testing.T) {
	cfg := testConfig("https://example.com/serving/")
	cfg.ModelVersion = ""

	client, err := NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "https://example.com/serving", client.endpoint)
	assert.Equal(t, "MedGemma-4B-IT-v2", client.modelLabel)
}

func TestConsult_TwoStepExchange(t *testing.T) {
	var mu sync.Mutex
	var requests []invocationRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pat-123", r.Header.Get("Authorization"))

		var req invocationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req)
		call := len(requests)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if call == 1 {
			w.Write([]byte(`{"predictions": {"session_id": "session-42", "response": "hello"}}`))
			return
		}
		w.Write([]byte(`{"predictions": [{"session_id": "session-42", "response": "Patient is stable."}]}`))
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)
	defer client.Close()

	consultation, err := client.Consult(context.Background(), "Assess cardiovascular risk.")
	require.NoError(t, err)

	assert.Equal(t, "Patient is stable.", consultation.Response)
	assert.Equal(t, "session-42", consultation.SessionID)
	assert.Equal(t, "MedGemma-4B-IT-v2", consultation.ModelVersion)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	assert.Equal(t, []string{"Hello"}, requests[0].Inputs.Question)
	assert.Empty(t, requests[0].Inputs.SessionID)
	assert.Equal(t, []string{"Assess cardiovascular risk."}, requests[1].Inputs.Question)
	assert.Equal(t, "session-42", requests[1].Inputs.SessionID)
}

func TestConsult_EmptyQueryFails(t *testing.T) {
	client, err := NewClient(testConfig("https://example.com/serving"))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Consult(context.Background(), "   ")
	require.Error(t, err)
}

func TestClose_StopsRefill(t *testing.T) {
	client, err := NewClient(testConfig("https://example.com/serving"))
	require.NoError(t, err)

	client.Close()

	// Buffered tokens remain usable after shutdown; only the refill stops.
	require.NoError(t, client.limiter.Wait(context.Background()))
}

func TestTokenBucket_WaitHonorsContext(t *testing.T) {
	bucket := newTokenBucketWithRate(60, 1)
	defer bucket.Stop()

	require.NoError(t, bucket.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bucket.Wait(ctx), context.DeadlineExceeded)
}

func TestRecordConsultMetric_ConcurrentCalls(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				recordConsultMetric(context.Background(), "MedGemma-4B-IT-v2", 200, 10*time.Millisecond, nil)
				recordConsultMetric(context.Background(), "MedGemma-4B-IT-v2", 500, time.Millisecond, errors.New("boom"))
				recordConsultRateLimitWait(context.Background(), "MedGemma-4B-IT-v2", time.Millisecond)
			}
		}()
	}
	wg.Wait()
}
