package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/clinsight/clinical-dashboard/internal/api/handlers"
	"github.com/clinsight/clinical-dashboard/internal/application/services"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/canvas"
)

type stubCanvasClient struct {
	lastRedirectURI string
	lastState       string
	token           *canvas.TokenResponse
}

func (s *stubCanvasClient) AuthorizeURL(redirectURI, state string) string {
	s.lastRedirectURI = redirectURI
	s.lastState = state
	return "https://ehr.example.com/oauth/authorize?redirect_uri=" + redirectURI
}

func (s *stubCanvasClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*canvas.TokenResponse, error) {
	s.lastRedirectURI = redirectURI
	return s.token, nil
}

func (s *stubCanvasClient) ListPatients(ctx context.Context, accessToken string) (*canvas.Bundle, error) {
	return &canvas.Bundle{}, nil
}

func (s *stubCanvasClient) ListConditions(ctx context.Context, accessToken, patientID string) (*canvas.Bundle, error) {
	return &canvas.Bundle{}, nil
}

func (s *stubCanvasClient) ListVitalObservations(ctx context.Context, accessToken, patientID string) (*canvas.Bundle, error) {
	return &canvas.Bundle{}, nil
}

func TestEHRHandler_GetAuthorizeURL_DefaultsToOriginCallback(t *testing.T) {
	ehr := &stubCanvasClient{}
	handler := handlers.NewEHRHandler(ehr, nil)

	req := httptest.NewRequest("GET", "/api/ehr/authorize-url", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()

	handler.GetAuthorizeURL(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com/canvas-callback", ehr.lastRedirectURI)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.NotEmpty(t, response["auth_url"])
}

func TestEHRHandler_GetAuthorizeURL_NoOrigin(t *testing.T) {
	handler := handlers.NewEHRHandler(&stubCanvasClient{}, nil)

	req := httptest.NewRequest("GET", "/api/ehr/authorize-url", nil)
	w := httptest.NewRecorder()

	handler.GetAuthorizeURL(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEHRHandler_ExchangeToken(t *testing.T) {
	ehr := &stubCanvasClient{token: &canvas.TokenResponse{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600}}
	handler := handlers.NewEHRHandler(ehr, nil)

	body := `{"code":"auth-code","redirect_uri":"https://app.example.com/canvas-callback"}`
	req := httptest.NewRequest("POST", "/api/ehr/token", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.ExchangeToken(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "at", response["access_token"])
	assert.Equal(t, float64(3600), response["expires_in"])
}

func TestEHRHandler_ExchangeToken_MissingCode(t *testing.T) {
	handler := handlers.NewEHRHandler(&stubCanvasClient{}, nil)

	req := httptest.NewRequest("POST", "/api/ehr/token", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	handler.ExchangeToken(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEHRHandler_TriggerSync(t *testing.T) {
	ehr := &stubCanvasClient{}
	syncService := services.NewEHRSyncService(ehr, &stubPatientRepo{}, &stubConditionRepo{}, &stubVitalsRepo{}, nil)
	handler := handlers.NewEHRHandler(ehr, syncService)

	req := httptest.NewRequest("POST", "/api/ehr/sync", strings.NewReader(`{"access_token":"at"}`))
	w := httptest.NewRecorder()

	handler.TriggerSync(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, true, response["success"])
	assert.Equal(t, float64(0), response["skipped"])
}

func TestEHRHandler_TriggerSync_MissingToken(t *testing.T) {
	handler := handlers.NewEHRHandler(&stubCanvasClient{}, nil)

	req := httptest.NewRequest("POST", "/api/ehr/sync", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	handler.TriggerSync(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
