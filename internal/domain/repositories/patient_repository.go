package repositories

import (
	"context"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
)

// PatientRepository defines the interface for patient data operations
type PatientRepository interface {
	// ListIdentities retrieves identity fields only (id, name, age, mrn,
	// timestamps) for all patients, ordered by creation time descending.
	// Deliberately narrow so the first paint of the dashboard is fast.
	ListIdentities(ctx context.Context) ([]*entities.Patient, error)

	// GetByID retrieves a single patient with demographics
	GetByID(ctx context.Context, id string) (*entities.Patient, error)

	// Upsert inserts or updates a patient by id (EHR sync path)
	Upsert(ctx context.Context, patient *entities.Patient) error

	// List retrieves patients with filters
	List(ctx context.Context, filter PatientFilter) ([]*entities.Patient, error)
}

// PatientSearchRepository defines the interface for patient search operations
// (e.g. Typesense)
type PatientSearchRepository interface {
	// Search searches patients by name, MRN or condition
	Search(ctx context.Context, params PatientSearchParams) ([]*entities.Patient, error)

	// Index indexes a patient document
	Index(ctx context.Context, patient *entities.Patient) error

	// Delete removes a patient from the index
	Delete(ctx context.Context, id string) error
}

// PatientFilter defines filters for listing patients
type PatientFilter struct {
	RiskLevel entities.RiskLevel
	Limit     int
	Offset    int
}

// PatientSearchParams defines parameters for patient search
type PatientSearchParams struct {
	Query     string
	RiskLevel entities.RiskLevel
	Limit     int
	Offset    int
}
