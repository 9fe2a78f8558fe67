package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/canvas"
)

type stubCanvasClient struct {
	patients     *canvas.Bundle
	conditions   map[string]*canvas.Bundle
	observations map[string]*canvas.Bundle
}

func (s *stubCanvasClient) AuthorizeURL(redirectURI, state string) string { return "" }

func (s *stubCanvasClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*canvas.TokenResponse, error) {
	return nil, nil
}

func (s *stubCanvasClient) ListPatients(ctx context.Context, accessToken string) (*canvas.Bundle, error) {
	return s.patients, nil
}

func (s *stubCanvasClient) ListConditions(ctx context.Context, accessToken, patientID string) (*canvas.Bundle, error) {
	if b, ok := s.conditions[patientID]; ok {
		return b, nil
	}
	return &canvas.Bundle{}, nil
}

func (s *stubCanvasClient) ListVitalObservations(ctx context.Context, accessToken, patientID string) (*canvas.Bundle, error) {
	if b, ok := s.observations[patientID]; ok {
		return b, nil
	}
	return &canvas.Bundle{}, nil
}

type recordingPatientRepo struct {
	stubPatientRepo
	upserted []*entities.Patient
}

func (r *recordingPatientRepo) Upsert(ctx context.Context, patient *entities.Patient) error {
	r.upserted = append(r.upserted, patient)
	return nil
}

type recordingConditionRepo struct {
	upserted []*entities.Condition
}

func (r *recordingConditionRepo) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.Condition, error) {
	return nil, nil
}

func (r *recordingConditionRepo) Upsert(ctx context.Context, condition *entities.Condition) error {
	r.upserted = append(r.upserted, condition)
	return nil
}

type recordingVitalsRepo struct {
	created []*entities.VitalSigns
}

func (r *recordingVitalsRepo) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.VitalSigns, error) {
	return nil, nil
}

func (r *recordingVitalsRepo) Create(ctx context.Context, vitals *entities.VitalSigns) error {
	r.created = append(r.created, vitals)
	return nil
}

type recordingSearchRepo struct {
	indexed []*entities.Patient
}

func (r *recordingSearchRepo) Search(ctx context.Context, params repositories.PatientSearchParams) ([]*entities.Patient, error) {
	return nil, nil
}

func (r *recordingSearchRepo) Index(ctx context.Context, patient *entities.Patient) error {
	r.indexed = append(r.indexed, patient)
	return nil
}

func (r *recordingSearchRepo) Delete(ctx context.Context, id string) error { return nil }

func bundleOf(t *testing.T, resources ...interface{}) *canvas.Bundle {
	t.Helper()
	bundle := &canvas.Bundle{ResourceType: "Bundle", Total: len(resources)}
	for _, resource := range resources {
		raw, err := json.Marshal(resource)
		require.NoError(t, err)
		bundle.Entry = append(bundle.Entry, canvas.BundleEntry{Resource: raw})
	}
	return bundle
}

func fhirPatient() canvas.Patient {
	return canvas.Patient{
		ID:        "canvas-1",
		Name:      []canvas.HumanName{{Given: []string{"Sarah", "Anne"}, Family: "Johnson"}},
		BirthDate: "1956-05-15",
		Gender:    "female",
		Telecom: []canvas.Telecom{
			{System: "phone", Value: "+1-555-0123"},
			{System: "email", Value: "sarah@example.com"},
		},
		Identifier: []canvas.Identifier{
			{
				Type:  canvas.CodeableConcept{Coding: []canvas.Coding{{Code: "MR"}}},
				Value: "MRN001234",
			},
		},
	}
}

func TestSync_MapsPatientDemographics(t *testing.T) {
	ehr := &stubCanvasClient{patients: bundleOf(t, fhirPatient())}
	patientRepo := &recordingPatientRepo{}
	svc := NewEHRSyncService(ehr, patientRepo, &recordingConditionRepo{}, &recordingVitalsRepo{}, nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC) }

	summary, err := svc.Sync(context.Background(), "token")
	require.NoError(t, err)

	require.Len(t, summary.SyncedPatients, 1)
	assert.Equal(t, 0, summary.Skipped)

	require.Len(t, patientRepo.upserted, 1)
	patient := patientRepo.upserted[0]
	assert.Equal(t, "canvas-1", patient.ID)
	assert.Equal(t, "Sarah Anne Johnson", patient.Name)
	assert.Equal(t, "MRN001234", patient.MRN)
	assert.Equal(t, 70, patient.Age)
	assert.Equal(t, "+1-555-0123", patient.Phone)
	assert.Equal(t, "sarah@example.com", patient.Email)
	assert.Equal(t, entities.RiskLevelLow, patient.RiskLevel)
}

func TestSync_FallsBackToDerivedMRN(t *testing.T) {
	resource := fhirPatient()
	resource.Identifier = nil
	ehr := &stubCanvasClient{patients: bundleOf(t, resource)}
	patientRepo := &recordingPatientRepo{}
	svc := NewEHRSyncService(ehr, patientRepo, &recordingConditionRepo{}, &recordingVitalsRepo{}, nil)

	_, err := svc.Sync(context.Background(), "token")
	require.NoError(t, err)

	require.Len(t, patientRepo.upserted, 1)
	assert.Equal(t, "CANVAS-canvas-1", patientRepo.upserted[0].MRN)
}

func TestSync_MapsConditionsAndIndexesNames(t *testing.T) {
	condition := canvas.Condition{
		ID: "cond-1",
		Code: canvas.CodeableConcept{Coding: []canvas.Coding{
			{System: "http://hl7.org/fhir/sid/icd-10-cm", Code: "I10", Display: "Hypertension"},
		}},
		OnsetDateTime:  "2020-06-01T00:00:00Z",
		ClinicalStatus: canvas.CodeableConcept{Coding: []canvas.Coding{{Code: "active"}}},
	}

	ehr := &stubCanvasClient{
		patients:   bundleOf(t, fhirPatient()),
		conditions: map[string]*canvas.Bundle{"canvas-1": bundleOf(t, condition)},
	}
	conditionRepo := &recordingConditionRepo{}
	searchRepo := &recordingSearchRepo{}
	svc := NewEHRSyncService(ehr, &recordingPatientRepo{}, conditionRepo, &recordingVitalsRepo{}, searchRepo)

	_, err := svc.Sync(context.Background(), "token")
	require.NoError(t, err)

	require.Len(t, conditionRepo.upserted, 1)
	mapped := conditionRepo.upserted[0]
	assert.Equal(t, "Hypertension", mapped.Name)
	assert.Equal(t, "I10", mapped.ICDCode)
	assert.Equal(t, "active", mapped.Status)
	assert.Equal(t, "2020-06-01", mapped.OnsetDate)

	require.Len(t, searchRepo.indexed, 1)
	assert.Equal(t, []string{"Hypertension"}, searchRepo.indexed[0].Conditions)
}

func loincObservation(code string, value float64, effective string) canvas.Observation {
	return canvas.Observation{
		ID:                "obs-" + code,
		Code:              canvas.CodeableConcept{Coding: []canvas.Coding{{System: "http://loinc.org", Code: code}}},
		ValueQuantity:     &canvas.Quantity{Value: value},
		EffectiveDateTime: effective,
	}
}

func TestSync_GroupsVitalsByDate(t *testing.T) {
	observations := bundleOf(t,
		loincObservation("8867-4", 92, "2026-05-01T09:00:00Z"),
		loincObservation("2708-6", 96, "2026-05-01T09:05:00Z"),
		loincObservation("8867-4", 78, "2026-05-02T09:00:00Z"),
	)

	ehr := &stubCanvasClient{
		patients:     bundleOf(t, fhirPatient()),
		observations: map[string]*canvas.Bundle{"canvas-1": observations},
	}
	vitalsRepo := &recordingVitalsRepo{}
	svc := NewEHRSyncService(ehr, &recordingPatientRepo{}, &recordingConditionRepo{}, vitalsRepo, nil)

	_, err := svc.Sync(context.Background(), "token")
	require.NoError(t, err)

	require.Len(t, vitalsRepo.created, 2)
	day1 := vitalsRepo.created[0]
	require.NotNil(t, day1.HeartRate)
	assert.Equal(t, 92, *day1.HeartRate)
	require.NotNil(t, day1.OxygenSat)
	assert.Equal(t, 96, *day1.OxygenSat)

	day2 := vitalsRepo.created[1]
	require.NotNil(t, day2.HeartRate)
	assert.Equal(t, 78, *day2.HeartRate)
	assert.Nil(t, day2.OxygenSat)
}

func TestSync_DerivesBMIFromHeightAndWeight(t *testing.T) {
	observations := bundleOf(t,
		loincObservation("8302-2", 170, "2026-05-01T09:00:00Z"),
		loincObservation("29463-7", 80, "2026-05-01T09:00:00Z"),
	)

	ehr := &stubCanvasClient{
		patients:     bundleOf(t, fhirPatient()),
		observations: map[string]*canvas.Bundle{"canvas-1": observations},
	}
	vitalsRepo := &recordingVitalsRepo{}
	svc := NewEHRSyncService(ehr, &recordingPatientRepo{}, &recordingConditionRepo{}, vitalsRepo, nil)

	_, err := svc.Sync(context.Background(), "token")
	require.NoError(t, err)

	require.Len(t, vitalsRepo.created, 1)
	require.NotNil(t, vitalsRepo.created[0].BMI)
	assert.InDelta(t, 27.68, *vitalsRepo.created[0].BMI, 0.01)
}

func TestSync_ExpandsBloodPressurePanel(t *testing.T) {
	panel := canvas.Observation{
		ID:   "obs-panel",
		Code: canvas.CodeableConcept{Coding: []canvas.Coding{{System: "http://loinc.org", Code: "85354-9"}}},
		Component: []canvas.ObservationComponent{
			{Code: canvas.CodeableConcept{Coding: []canvas.Coding{{Code: "8480-6"}}}, ValueQuantity: canvas.Quantity{Value: 165}},
			{Code: canvas.CodeableConcept{Coding: []canvas.Coding{{Code: "8462-4"}}}, ValueQuantity: canvas.Quantity{Value: 95}},
		},
		EffectiveDateTime: "2026-05-01T09:00:00Z",
	}

	ehr := &stubCanvasClient{
		patients:     bundleOf(t, fhirPatient()),
		observations: map[string]*canvas.Bundle{"canvas-1": bundleOf(t, panel)},
	}
	vitalsRepo := &recordingVitalsRepo{}
	svc := NewEHRSyncService(ehr, &recordingPatientRepo{}, &recordingConditionRepo{}, vitalsRepo, nil)

	_, err := svc.Sync(context.Background(), "token")
	require.NoError(t, err)

	require.Len(t, vitalsRepo.created, 1)
	require.NotNil(t, vitalsRepo.created[0].SystolicBP)
	assert.Equal(t, 165, *vitalsRepo.created[0].SystolicBP)
	require.NotNil(t, vitalsRepo.created[0].DiastolicBP)
	assert.Equal(t, 95, *vitalsRepo.created[0].DiastolicBP)
}

func TestSync_SkipsMalformedPatientResource(t *testing.T) {
	bundle := &canvas.Bundle{Entry: []canvas.BundleEntry{{Resource: json.RawMessage(`"not an object"`)}}}
	ehr := &stubCanvasClient{patients: bundle}
	svc := NewEHRSyncService(ehr, &recordingPatientRepo{}, &recordingConditionRepo{}, &recordingVitalsRepo{}, nil)

	summary, err := svc.Sync(context.Background(), "token")
	require.NoError(t, err)

	assert.Empty(t, summary.SyncedPatients)
	assert.Equal(t, 1, summary.Skipped)
}
