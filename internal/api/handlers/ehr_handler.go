package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/clinsight/clinical-dashboard/internal/application/services"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/canvas"
)

// EHRHandler handles EHR OAuth and sync HTTP requests
type EHRHandler struct {
	ehr  canvas.Client
	sync *services.EHRSyncService
}

// NewEHRHandler creates a new EHR handler
func NewEHRHandler(ehr canvas.Client, sync *services.EHRSyncService) *EHRHandler {
	return &EHRHandler{
		ehr:  ehr,
		sync: sync,
	}
}

// GetAuthorizeURL handles GET /api/ehr/authorize-url. The redirect URI
// defaults to {origin}/canvas-callback when not given explicitly.
func (h *EHRHandler) GetAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	redirectURI := query.Get("redirect_uri")
	if redirectURI == "" {
		origin := r.Header.Get("Origin")
		if origin == "" {
			respondWithError(w, http.StatusBadRequest, "redirect_uri or Origin header is required")
			return
		}
		redirectURI = origin + "/canvas-callback"
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"auth_url": h.ehr.AuthorizeURL(redirectURI, query.Get("state")),
	})
}

type tokenRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

// ExchangeToken handles POST /api/ehr/token
func (h *EHRHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "authorization code is required")
		return
	}
	if req.RedirectURI == "" {
		origin := r.Header.Get("Origin")
		if origin == "" {
			respondWithError(w, http.StatusBadRequest, "redirect_uri or Origin header is required")
			return
		}
		req.RedirectURI = origin + "/canvas-callback"
	}

	token, err := h.ehr.ExchangeCode(r.Context(), req.Code, req.RedirectURI)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "token exchange failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
		"expires_in":    token.ExpiresIn,
	})
}

type syncRequest struct {
	AccessToken string `json:"access_token"`
}

// TriggerSync handles POST /api/ehr/sync
func (h *EHRHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccessToken == "" {
		respondWithError(w, http.StatusBadRequest, "access token is required")
		return
	}

	summary, err := h.sync.Sync(r.Context(), req.AccessToken)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "sync failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"synced_patients": summary.SyncedPatients,
		"skipped":         summary.Skipped,
	})
}
