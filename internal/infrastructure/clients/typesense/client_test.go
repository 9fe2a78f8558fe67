package typesense

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsight/clinical-dashboard/pkg/config"
)

func TestClient_Integration(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") != "true" {
		t.Skip("Skipping integration test (set TEST_INTEGRATION=true to run)")
	}

	cfg := &config.TypesenseConfig{
		URL:    "http://localhost:8108",
		APIKey: "xyz",
	}

	client, err := NewClient(cfg)
	require.NoError(t, err)
	require.NotNil(t, client)

	ctx := context.Background()

	err = client.InitSchema(ctx)
	assert.NoError(t, err)

	doc := map[string]interface{}{
		"id":         "test-patient-1",
		"name":       "Test Patient",
		"mrn":        "MRN999999",
		"age":        55,
		"risk_level": "medium",
		"risk_score": 40,
		"conditions": []string{"Hypertension"},
		"alerts":     0,
		"created_at": time.Now().Unix(),
	}
	err = client.IndexPatient(ctx, doc)
	assert.NoError(t, err)
}
