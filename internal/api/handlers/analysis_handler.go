package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinsight/clinical-dashboard/internal/application/services"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/xpc"
	apperrors "github.com/clinsight/clinical-dashboard/pkg/errors"
)

// AnalysisHandler handles analysis and chart review HTTP requests
type AnalysisHandler struct {
	analysis    *services.AnalysisService
	chartReview *services.ChartReviewService
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analysis *services.AnalysisService, chartReview *services.ChartReviewService) *AnalysisHandler {
	return &AnalysisHandler{
		analysis:    analysis,
		chartReview: chartReview,
	}
}

type analyzeRequest struct {
	Type string `json:"type"`
}

// AnalyzePatient handles POST /api/patients/{id}/analyze
func (h *AnalysisHandler) AnalyzePatient(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	if patientID == "" {
		respondWithError(w, http.StatusBadRequest, "patient ID is required")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		respondWithError(w, http.StatusBadRequest, "analysis type is required")
		return
	}

	assessment, err := h.analysis.Run(r.Context(), patientID, services.AnalysisKind(req.Type))
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			switch appErr.Type {
			case apperrors.ErrorTypeNotFound:
				respondWithError(w, http.StatusNotFound, appErr.Message)
			case apperrors.ErrorTypeValidation:
				respondWithError(w, http.StatusBadRequest, appErr.Message)
			default:
				respondWithError(w, http.StatusInternalServerError, appErr.Message)
			}
			return
		}
		respondWithError(w, http.StatusBadGateway, "analysis failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"assessment": assessment,
	})
}

// ReviewChart handles POST /api/patients/{id}/chart-review
func (h *AnalysisHandler) ReviewChart(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	if patientID == "" {
		respondWithError(w, http.StatusBadRequest, "patient ID is required")
		return
	}

	result, err := h.chartReview.Review(r.Context(), patientID)
	if err != nil {
		if errors.Is(err, xpc.ErrRateLimited) {
			respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeNotFound {
			respondWithError(w, http.StatusNotFound, appErr.Message)
			return
		}
		respondWithError(w, http.StatusServiceUnavailable, "chart review temporarily unavailable")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":             true,
		"chart_review":        result.Domains,
		"chart_quality_score": result.ChartQualityScore,
	})
}
