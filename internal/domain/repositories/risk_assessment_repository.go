package repositories

import (
	"context"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
)

// RiskAssessmentRepository defines the interface for risk assessment storage
type RiskAssessmentRepository interface {
	// ListByPatientIDs retrieves assessments for the given patient set,
	// ordered by assessment date descending
	ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.RiskAssessment, error)

	// GetLatestByPatientID retrieves the newest assessment for a patient
	GetLatestByPatientID(ctx context.Context, patientID string) (*entities.RiskAssessment, error)

	// Upsert inserts or replaces the assessment for a patient
	// (ON CONFLICT (patient_id) DO UPDATE)
	Upsert(ctx context.Context, assessment *entities.RiskAssessment) error

	// UpdateChartReview sets chart quality fields on a patient's newest assessment
	UpdateChartReview(ctx context.Context, patientID string, score float64, domains []byte) error
}
