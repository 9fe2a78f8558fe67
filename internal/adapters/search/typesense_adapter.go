package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	tsclient "github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/typesense"
)

const collectionName = tsclient.PatientsCollection

// TypesenseAdapter implements patient search using Typesense
type TypesenseAdapter struct {
	client *tsclient.Client
}

// Ensure TypesenseAdapter implements PatientSearchRepository
var _ repositories.PatientSearchRepository = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

// InitSchema ensures the collection exists
func (a *TypesenseAdapter) InitSchema(ctx context.Context) error {
	return a.client.InitSchema(ctx)
}

// Index indexes a patient
func (a *TypesenseAdapter) Index(ctx context.Context, patient *entities.Patient) error {
	_, err := a.client.Client().Collection(collectionName).Documents().Upsert(ctx, patientDocument(patient))
	if err != nil {
		return fmt.Errorf("failed to index patient: %w", err)
	}

	return nil
}

// Delete removes a patient from the index
func (a *TypesenseAdapter) Delete(ctx context.Context, id string) error {
	_, err := a.client.Client().Collection(collectionName).Document(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete patient from index: %w", err)
	}
	return nil
}

// Search searches patients by name, MRN or condition
func (a *TypesenseAdapter) Search(ctx context.Context, params repositories.PatientSearchParams) ([]*entities.Patient, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	query := strings.TrimSpace(params.Query)
	if query == "" {
		query = "*"
	}

	searchParams := &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String("name,mrn,conditions"),
		Page:    pointer.Int(params.Offset/limit + 1),
		PerPage: pointer.Int(limit),
	}
	if params.RiskLevel != "" {
		searchParams.FilterBy = pointer.String(fmt.Sprintf("risk_level:=%s", params.RiskLevel))
	}

	result, err := a.client.Client().Collection(collectionName).Documents().Search(ctx, searchParams)
	if err != nil {
		return nil, fmt.Errorf("failed to search patients: %w", err)
	}

	patients := []*entities.Patient{}
	if result.Hits == nil {
		return patients, nil
	}

	for _, hit := range *result.Hits {
		patients = append(patients, patientFromDocument(*hit.Document))
	}

	return patients, nil
}

func patientDocument(patient *entities.Patient) map[string]interface{} {
	conditions := patient.Conditions
	if conditions == nil {
		conditions = []string{}
	}

	return map[string]interface{}{
		"id":         patient.ID,
		"name":       patient.Name,
		"mrn":        patient.MRN,
		"age":        patient.Age,
		"risk_level": string(patient.RiskLevel),
		"risk_score": patient.RiskScore,
		"conditions": conditions,
		"alerts":     patient.Alerts,
		"created_at": patient.CreatedAt.Unix(),
	}
}

// patientFromDocument maps a search hit back onto the entity. Typesense
// returns map[string]interface{}, so each field is cast safely.
func patientFromDocument(doc map[string]interface{}) *entities.Patient {
	patient := &entities.Patient{}
	if val, ok := doc["id"].(string); ok {
		patient.ID = val
	}
	if val, ok := doc["name"].(string); ok {
		patient.Name = val
	}
	if val, ok := doc["mrn"].(string); ok {
		patient.MRN = val
	}
	if val, ok := doc["age"].(float64); ok {
		patient.Age = int(val)
	}
	if val, ok := doc["risk_level"].(string); ok {
		patient.RiskLevel = entities.RiskLevel(val)
	}
	if val, ok := doc["risk_score"].(float64); ok {
		patient.RiskScore = int(val)
	}
	if val, ok := doc["alerts"].(float64); ok {
		patient.Alerts = int(val)
	}
	if raw, ok := doc["conditions"].([]interface{}); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				patient.Conditions = append(patient.Conditions, s)
			}
		}
	}
	return patient
}
