package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/clinsight/clinical-dashboard/internal/api/handlers"
	"github.com/clinsight/clinical-dashboard/internal/application/services"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	apperrors "github.com/clinsight/clinical-dashboard/pkg/errors"
)

type stubPatientRepo struct {
	identities []*entities.Patient
	err        error
}

func (s *stubPatientRepo) ListIdentities(ctx context.Context) ([]*entities.Patient, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.identities, nil
}

func (s *stubPatientRepo) GetByID(ctx context.Context, id string) (*entities.Patient, error) {
	for _, p := range s.identities {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apperrors.NewNotFoundError("patient with id " + id + " not found")
}

func (s *stubPatientRepo) Upsert(ctx context.Context, patient *entities.Patient) error { return nil }

func (s *stubPatientRepo) List(ctx context.Context, filter repositories.PatientFilter) ([]*entities.Patient, error) {
	return s.identities, nil
}

type stubAssessmentRepo struct{}

func (s *stubAssessmentRepo) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.RiskAssessment, error) {
	return nil, nil
}

func (s *stubAssessmentRepo) GetLatestByPatientID(ctx context.Context, patientID string) (*entities.RiskAssessment, error) {
	return nil, nil
}

func (s *stubAssessmentRepo) Upsert(ctx context.Context, assessment *entities.RiskAssessment) error {
	return nil
}

func (s *stubAssessmentRepo) UpdateChartReview(ctx context.Context, patientID string, score float64, domains []byte) error {
	return nil
}

type stubConditionRepo struct{}

func (s *stubConditionRepo) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.Condition, error) {
	return nil, nil
}

func (s *stubConditionRepo) Upsert(ctx context.Context, condition *entities.Condition) error {
	return nil
}

type stubVitalsRepo struct{}

func (s *stubVitalsRepo) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.VitalSigns, error) {
	return nil, nil
}

func (s *stubVitalsRepo) Create(ctx context.Context, vitals *entities.VitalSigns) error { return nil }

type stubAlertRepo struct{}

func (s *stubAlertRepo) ListActiveByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.ClinicalAlert, error) {
	return nil, nil
}

func (s *stubAlertRepo) Create(ctx context.Context, alert *entities.ClinicalAlert) error { return nil }

type stubSearchRepo struct {
	results    []*entities.Patient
	lastParams repositories.PatientSearchParams
}

func (s *stubSearchRepo) Search(ctx context.Context, params repositories.PatientSearchParams) ([]*entities.Patient, error) {
	s.lastParams = params
	return s.results, nil
}

func (s *stubSearchRepo) Index(ctx context.Context, patient *entities.Patient) error { return nil }

func (s *stubSearchRepo) Delete(ctx context.Context, id string) error { return nil }

func newLoadedLoader(t *testing.T, patientRepo *stubPatientRepo) *services.PatientLoaderService {
	t.Helper()
	loader := services.NewPatientLoaderService(
		patientRepo,
		&stubAssessmentRepo{},
		&stubConditionRepo{},
		&stubVitalsRepo{},
		&stubAlertRepo{},
		nil,
		nil,
	)
	if patientRepo.err == nil {
		require.NoError(t, loader.Load(context.Background()))
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if loader.State().Loading.Idle() {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	return loader
}

func testPatient(id, name string) *entities.Patient {
	return &entities.Patient{ID: id, Name: name, Age: 60, MRN: "MRN-" + id, RiskLevel: entities.RiskLevelLow}
}

func TestPatientHandler_ListPatients(t *testing.T) {
	repo := &stubPatientRepo{identities: []*entities.Patient{testPatient("p1", "Sarah Johnson"), testPatient("p2", "Michael Chen")}}
	loader := newLoadedLoader(t, repo)
	handler := handlers.NewPatientHandler(loader, repo, nil)

	req := httptest.NewRequest("GET", "/api/patients", nil)
	w := httptest.NewRecorder()

	handler.ListPatients(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Patients []*entities.Patient   `json:"patients"`
		Count    int                   `json:"count"`
		Loading  entities.LoadingState `json:"loading"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 2, response.Count)
	assert.Len(t, response.Patients, 2)
	assert.False(t, response.Loading.Basic)
	assert.Empty(t, response.Loading.Error)
}

func TestPatientHandler_RefetchPatients(t *testing.T) {
	repo := &stubPatientRepo{identities: []*entities.Patient{testPatient("p1", "Sarah Johnson")}}
	loader := newLoadedLoader(t, repo)
	handler := handlers.NewPatientHandler(loader, repo, nil)

	req := httptest.NewRequest("POST", "/api/patients/refetch", nil)
	w := httptest.NewRecorder()

	handler.RefetchPatients(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, float64(1), response["count"])
}

func TestPatientHandler_GetPatient_NotFound(t *testing.T) {
	repo := &stubPatientRepo{}
	loader := newLoadedLoader(t, repo)
	handler := handlers.NewPatientHandler(loader, repo, nil)

	req := httptest.NewRequest("GET", "/api/patients/missing", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()

	handler.GetPatient(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatientHandler_GetPatient_Success(t *testing.T) {
	repo := &stubPatientRepo{identities: []*entities.Patient{testPatient("p1", "Sarah Johnson")}}
	loader := newLoadedLoader(t, repo)
	handler := handlers.NewPatientHandler(loader, repo, nil)

	req := httptest.NewRequest("GET", "/api/patients/p1", nil)
	req.SetPathValue("id", "p1")
	w := httptest.NewRecorder()

	handler.GetPatient(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var patient entities.Patient
	require.NoError(t, json.NewDecoder(w.Body).Decode(&patient))
	assert.Equal(t, "Sarah Johnson", patient.Name)
}

func TestPatientHandler_SearchPatients(t *testing.T) {
	repo := &stubPatientRepo{}
	loader := newLoadedLoader(t, repo)
	searchRepo := &stubSearchRepo{results: []*entities.Patient{testPatient("p1", "Sarah Johnson")}}
	handler := handlers.NewPatientHandler(loader, repo, searchRepo)

	req := httptest.NewRequest("GET", "/api/patients/search?q=sarah&risk_level=high&limit=5&offset=10", nil)
	w := httptest.NewRecorder()

	handler.SearchPatients(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sarah", searchRepo.lastParams.Query)
	assert.Equal(t, entities.RiskLevelHigh, searchRepo.lastParams.RiskLevel)
	assert.Equal(t, 5, searchRepo.lastParams.Limit)
	assert.Equal(t, 10, searchRepo.lastParams.Offset)
}

func TestPatientHandler_SearchPatients_Unconfigured(t *testing.T) {
	repo := &stubPatientRepo{}
	loader := newLoadedLoader(t, repo)
	handler := handlers.NewPatientHandler(loader, repo, nil)

	req := httptest.NewRequest("GET", "/api/patients/search?q=x", nil)
	w := httptest.NewRecorder()

	handler.SearchPatients(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
