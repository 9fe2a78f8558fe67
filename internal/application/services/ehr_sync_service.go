package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/canvas"
)

// SyncedPatient identifies one patient written during a sync run.
type SyncedPatient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	MRN  string `json:"mrn"`
}

// SyncSummary reports the outcome of one sync run.
type SyncSummary struct {
	SyncedPatients []SyncedPatient `json:"synced_patients"`
	Skipped        int             `json:"skipped"`
}

// EHRSyncService pulls Patient, Condition and vital-sign Observation bundles
// from the EHR and upserts them into relational rows. Per-resource failures
// are logged and skipped so one bad record does not abort the run.
type EHRSyncService struct {
	ehr           canvas.Client
	patientRepo   repositories.PatientRepository
	conditionRepo repositories.ConditionRepository
	vitalsRepo    repositories.VitalsRepository
	searchRepo    repositories.PatientSearchRepository
	now           func() time.Time
}

// NewEHRSyncService creates a sync service. The search repository may be nil.
func NewEHRSyncService(
	ehr canvas.Client,
	patientRepo repositories.PatientRepository,
	conditionRepo repositories.ConditionRepository,
	vitalsRepo repositories.VitalsRepository,
	searchRepo repositories.PatientSearchRepository,
) *EHRSyncService {
	return &EHRSyncService{
		ehr:           ehr,
		patientRepo:   patientRepo,
		conditionRepo: conditionRepo,
		vitalsRepo:    vitalsRepo,
		searchRepo:    searchRepo,
		now:           time.Now,
	}
}

// Sync runs a full pull with the given access token.
func (s *EHRSyncService) Sync(ctx context.Context, accessToken string) (*SyncSummary, error) {
	bundle, err := s.ehr.ListPatients(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch patients: %w", err)
	}

	log.Printf("Starting EHR sync: %d patient entries", len(bundle.Entry))

	summary := &SyncSummary{SyncedPatients: []SyncedPatient{}}
	for _, entry := range bundle.Entry {
		var resource canvas.Patient
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			log.Printf("Skipping malformed patient resource: %v", err)
			summary.Skipped++
			continue
		}

		patient := s.mapPatient(&resource)
		if err := s.patientRepo.Upsert(ctx, patient); err != nil {
			log.Printf("Error syncing patient %s: %v", resource.ID, err)
			summary.Skipped++
			continue
		}

		names := s.syncConditions(ctx, accessToken, resource.ID)
		s.syncVitals(ctx, accessToken, resource.ID)

		if s.searchRepo != nil {
			indexed := patient.Clone()
			indexed.Conditions = names
			if err := s.searchRepo.Index(ctx, indexed); err != nil {
				log.Printf("Warning: Failed to index synced patient %s: %v", patient.ID, err)
			}
		}

		summary.SyncedPatients = append(summary.SyncedPatients, SyncedPatient{
			ID:   patient.ID,
			Name: patient.Name,
			MRN:  patient.MRN,
		})
	}

	log.Printf("EHR sync complete: %d patients synced, %d skipped", len(summary.SyncedPatients), summary.Skipped)
	return summary, nil
}

// mapPatient converts a FHIR Patient into the relational read model.
func (s *EHRSyncService) mapPatient(resource *canvas.Patient) *entities.Patient {
	name := ""
	if len(resource.Name) > 0 {
		parts := append([]string{}, resource.Name[0].Given...)
		if resource.Name[0].Family != "" {
			parts = append(parts, resource.Name[0].Family)
		}
		name = strings.Join(parts, " ")
	}

	age := 0
	if birth, err := time.Parse("2006-01-02", resource.BirthDate); err == nil {
		age = int(s.now().Sub(birth).Hours() / (365.25 * 24))
	}

	mrn := "CANVAS-" + resource.ID
	for _, identifier := range resource.Identifier {
		for _, coding := range identifier.Type.Coding {
			if coding.Code == "MR" {
				mrn = identifier.Value
			}
		}
	}

	phone, email := "", ""
	for _, telecom := range resource.Telecom {
		switch telecom.System {
		case "phone":
			phone = telecom.Value
		case "email":
			email = telecom.Value
		}
	}

	return &entities.Patient{
		ID:          resource.ID,
		Name:        name,
		Age:         age,
		MRN:         mrn,
		DateOfBirth: resource.BirthDate,
		Gender:      resource.Gender,
		Phone:       phone,
		Email:       email,
		RiskLevel:   entities.RiskLevelLow,
	}
}

// syncConditions pulls and upserts conditions for one patient, returning the
// condition names for search indexing.
func (s *EHRSyncService) syncConditions(ctx context.Context, accessToken, patientID string) []string {
	bundle, err := s.ehr.ListConditions(ctx, accessToken, patientID)
	if err != nil {
		log.Printf("Error fetching conditions for %s: %v", patientID, err)
		return nil
	}

	names := []string{}
	for _, entry := range bundle.Entry {
		var resource canvas.Condition
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			log.Printf("Skipping malformed condition resource: %v", err)
			continue
		}

		condition := mapCondition(&resource, patientID)
		if err := s.conditionRepo.Upsert(ctx, condition); err != nil {
			log.Printf("Error syncing condition %s: %v", resource.ID, err)
			continue
		}
		names = append(names, condition.Name)
	}
	return names
}

func mapCondition(resource *canvas.Condition, patientID string) *entities.Condition {
	name := "Unknown condition"
	icd := ""
	if len(resource.Code.Coding) > 0 && resource.Code.Coding[0].Display != "" {
		name = resource.Code.Coding[0].Display
	}
	for _, coding := range resource.Code.Coding {
		if strings.Contains(coding.System, "icd") {
			icd = coding.Code
			break
		}
	}

	status := "inactive"
	if len(resource.ClinicalStatus.Coding) > 0 && resource.ClinicalStatus.Coding[0].Code == "active" {
		status = "active"
	}

	onset := ""
	if resource.OnsetDateTime != "" {
		if t, err := time.Parse(time.RFC3339, resource.OnsetDateTime); err == nil {
			onset = t.Format("2006-01-02")
		}
	}

	return &entities.Condition{
		ID:        resource.ID,
		PatientID: patientID,
		Name:      name,
		ICDCode:   icd,
		Status:    status,
		OnsetDate: onset,
	}
}

// LOINC codes carried by vital-sign observations.
const (
	loincSystolicBP  = "8480-6"
	loincDiastolicBP = "8462-4"
	loincHeartRate   = "8867-4"
	loincTemperature = "8310-5"
	loincOxygenSat   = "2708-6"
	loincBodyWeight  = "29463-7"
	loincBodyHeight  = "8302-2"
	loincBloodPanel  = "85354-9"
)

// syncVitals pulls vital-sign observations, groups them by effective date
// into one record per day, derives BMI when height and weight are both
// present, and inserts the grouped records.
func (s *EHRSyncService) syncVitals(ctx context.Context, accessToken, patientID string) {
	bundle, err := s.ehr.ListVitalObservations(ctx, accessToken, patientID)
	if err != nil {
		log.Printf("Error fetching vitals for %s: %v", patientID, err)
		return
	}

	byDate := map[string]*entities.VitalSigns{}
	for _, entry := range bundle.Entry {
		var resource canvas.Observation
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			log.Printf("Skipping malformed observation resource: %v", err)
			continue
		}
		applyObservation(byDate, &resource, patientID)
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		vitals := byDate[date]
		if vitals.HeightCm != nil && vitals.WeightKg != nil && *vitals.HeightCm > 0 {
			meters := *vitals.HeightCm / 100
			bmi := *vitals.WeightKg / (meters * meters)
			vitals.BMI = &bmi
		}
		if err := s.vitalsRepo.Create(ctx, vitals); err != nil {
			log.Printf("Error syncing vitals for %s on %s: %v", patientID, date, err)
		}
	}
}

func applyObservation(byDate map[string]*entities.VitalSigns, resource *canvas.Observation, patientID string) {
	if resource.EffectiveDateTime == "" {
		return
	}
	date := resource.EffectiveDateTime
	if idx := strings.Index(date, "T"); idx >= 0 {
		date = date[:idx]
	}

	vitals, ok := byDate[date]
	if !ok {
		recordedAt, err := time.Parse(time.RFC3339, resource.EffectiveDateTime)
		if err != nil {
			recordedAt, err = time.Parse("2006-01-02", date)
			if err != nil {
				return
			}
		}
		vitals = &entities.VitalSigns{PatientID: patientID, RecordedAt: recordedAt}
		byDate[date] = vitals
	}

	loinc := ""
	for _, coding := range resource.Code.Coding {
		if strings.Contains(coding.System, "loinc") {
			loinc = coding.Code
			break
		}
	}

	switch loinc {
	case loincSystolicBP:
		vitals.SystolicBP = quantityInt(resource.ValueQuantity)
	case loincDiastolicBP:
		vitals.DiastolicBP = quantityInt(resource.ValueQuantity)
	case loincHeartRate:
		vitals.HeartRate = quantityInt(resource.ValueQuantity)
	case loincTemperature:
		vitals.Temperature = quantityFloat(resource.ValueQuantity)
	case loincOxygenSat:
		vitals.OxygenSat = quantityInt(resource.ValueQuantity)
	case loincBodyWeight:
		vitals.WeightKg = quantityFloat(resource.ValueQuantity)
	case loincBodyHeight:
		vitals.HeightCm = quantityFloat(resource.ValueQuantity)
	case loincBloodPanel:
		for _, component := range resource.Component {
			if len(component.Code.Coding) == 0 {
				continue
			}
			value := component.ValueQuantity
			switch component.Code.Coding[0].Code {
			case loincSystolicBP:
				vitals.SystolicBP = quantityInt(&value)
			case loincDiastolicBP:
				vitals.DiastolicBP = quantityInt(&value)
			}
		}
	}
}

func quantityInt(quantity *canvas.Quantity) *int {
	if quantity == nil {
		return nil
	}
	value := int(quantity.Value)
	return &value
}

func quantityFloat(quantity *canvas.Quantity) *float64 {
	if quantity == nil {
		return nil
	}
	value := quantity.Value
	return &value
}
