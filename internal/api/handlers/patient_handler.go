package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/clinsight/clinical-dashboard/internal/application/services"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	apperrors "github.com/clinsight/clinical-dashboard/pkg/errors"
)

// PatientHandler handles patient-related HTTP requests
type PatientHandler struct {
	loader      *services.PatientLoaderService
	patientRepo repositories.PatientRepository
	searchRepo  repositories.PatientSearchRepository
}

// NewPatientHandler creates a new patient handler
func NewPatientHandler(
	loader *services.PatientLoaderService,
	patientRepo repositories.PatientRepository,
	searchRepo repositories.PatientSearchRepository,
) *PatientHandler {
	return &PatientHandler{
		loader:      loader,
		patientRepo: patientRepo,
		searchRepo:  searchRepo,
	}
}

// ListPatients handles GET /api/patients. It returns the loader's current
// read model: the patient list plus the loading flags and optional error.
func (h *PatientHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	snapshot := h.loader.State()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"patients": snapshot.Patients,
		"count":    len(snapshot.Patients),
		"loading":  snapshot.Loading,
	})
}

// RefetchPatients handles POST /api/patients/refetch. The cycle runs through
// detail hydration before responding; enrichment continues in the background.
// The request context is deliberately not used: a client disconnect must not
// cancel the cycle.
func (h *PatientHandler) RefetchPatients(w http.ResponseWriter, r *http.Request) {
	if err := h.loader.Refetch(context.Background()); err != nil {
		snapshot := h.loader.State()
		respondWithJSON(w, http.StatusBadGateway, map[string]interface{}{
			"patients": snapshot.Patients,
			"loading":  snapshot.Loading,
		})
		return
	}

	snapshot := h.loader.State()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"patients": snapshot.Patients,
		"count":    len(snapshot.Patients),
		"loading":  snapshot.Loading,
	})
}

// GetPatient handles GET /api/patients/{id}
func (h *PatientHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")
	if patientID == "" {
		respondWithError(w, http.StatusBadRequest, "patient ID is required")
		return
	}

	patient, err := h.patientRepo.GetByID(r.Context(), patientID)
	if err != nil {
		if appErr, ok := err.(*apperrors.AppError); ok && appErr.Type == apperrors.ErrorTypeNotFound {
			respondWithError(w, http.StatusNotFound, appErr.Message)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if patient == nil {
		respondWithError(w, http.StatusNotFound, "patient not found")
		return
	}

	respondWithJSON(w, http.StatusOK, patient)
}

// SearchPatients handles GET /api/patients/search
func (h *PatientHandler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	if h.searchRepo == nil {
		respondWithError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	query := r.URL.Query()
	params := repositories.PatientSearchParams{
		Query:     query.Get("q"),
		RiskLevel: entities.RiskLevel(query.Get("risk_level")),
		Limit:     20,
		Offset:    0,
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 && limit <= 100 {
		params.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil && offset >= 0 {
		params.Offset = offset
	}

	patients, err := h.searchRepo.Search(r.Context(), params)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to search patients")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"patients": patients,
		"count":    len(patients),
	})
}
