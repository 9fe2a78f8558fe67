package providers

import (
	"context"
	"errors"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
)

// ErrConsultationUnauthorized indicates the model-serving endpoint rejected
// the configured credentials.
var ErrConsultationUnauthorized = errors.New("consultation provider unauthorized")

// ConsultationProvider defines a provider that can answer a free-form
// clinical query against a model-serving endpoint.
type ConsultationProvider interface {
	Consult(ctx context.Context, query string) (*entities.Consultation, error)
}

// PatientAnalyzer produces a fresh risk assessment for a patient. The
// dispatcher treats it as an opaque asynchronous operation: unknown latency,
// may fail, repeated calls create repeated records.
type PatientAnalyzer interface {
	Analyze(ctx context.Context, patientID string) (*entities.RiskAssessment, error)
}
