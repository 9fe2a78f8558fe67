package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/postgres"
	apperrors "github.com/clinsight/clinical-dashboard/pkg/errors"
)

// RiskAssessmentAdapter implements RiskAssessmentRepository.
type RiskAssessmentAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewRiskAssessmentAdapter creates a new adapter.
func NewRiskAssessmentAdapter(client *postgres.Client) repositories.RiskAssessmentRepository {
	return &RiskAssessmentAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var assessmentColumns = []interface{}{
	"id",
	"patient_id",
	"overall_risk_score",
	"risk_level",
	"risk_factors",
	"recommendations",
	"consultation",
	"chart_quality_score",
	"chart_review_domains",
	"assessment_date",
	"expires_at",
	"created_at",
}

// ListByPatientIDs retrieves assessments for the given patient set, ordered
// by assessment date descending.
func (a *RiskAssessmentAdapter) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.RiskAssessment, error) {
	if len(patientIDs) == 0 {
		return []*entities.RiskAssessment{}, nil
	}

	query, args, err := a.db.Select(assessmentColumns...).
		From("risk_assessments").
		Where(goqu.C("patient_id").In(patientIDs)).
		Order(goqu.I("assessment_date").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build assessment query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list risk assessments", err)
	}
	defer rows.Close()

	assessments := []*entities.RiskAssessment{}
	for rows.Next() {
		assessment, err := scanAssessment(rows.Scan)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, assessment)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating risk assessments", err)
	}

	return assessments, nil
}

// GetLatestByPatientID retrieves the newest assessment for a patient.
func (a *RiskAssessmentAdapter) GetLatestByPatientID(ctx context.Context, patientID string) (*entities.RiskAssessment, error) {
	query, args, err := a.db.Select(assessmentColumns...).
		From("risk_assessments").
		Where(goqu.Ex{"patient_id": patientID}).
		Order(goqu.I("assessment_date").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build assessment query", err)
	}

	assessment, err := scanAssessment(a.client.DB().QueryRowContext(ctx, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no assessment found for patient %s", patientID))
	}
	if err != nil {
		if _, ok := err.(*apperrors.AppError); ok {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to get risk assessment", err)
	}

	return assessment, nil
}

// Upsert inserts or replaces the assessment for a patient. Each analysis run
// produces a new version keyed by patient id.
func (a *RiskAssessmentAdapter) Upsert(ctx context.Context, assessment *entities.RiskAssessment) error {
	if assessment == nil {
		return apperrors.NewValidationError("assessment is required")
	}
	if assessment.PatientID == "" {
		return apperrors.NewValidationError("assessment patient id is required")
	}
	if assessment.ID == "" {
		assessment.ID = uuid.New().String()
	}
	if assessment.CreatedAt.IsZero() {
		assessment.CreatedAt = time.Now()
	}

	factorsBytes, _ := json.Marshal(assessment.RiskFactors)
	recsBytes, _ := json.Marshal(assessment.Recommendations)

	var consultationBytes interface{}
	if assessment.Consultation != nil {
		raw, _ := json.Marshal(assessment.Consultation)
		consultationBytes = string(raw)
	}

	var domains interface{}
	if len(assessment.ChartReviewDomains) > 0 {
		domains = string(assessment.ChartReviewDomains)
	}

	query := `
		INSERT INTO risk_assessments
			(id, patient_id, overall_risk_score, risk_level, risk_factors,
			 recommendations, consultation, chart_quality_score,
			 chart_review_domains, assessment_date, expires_at, created_at)
		VALUES
			($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9::jsonb, $10, $11, $12)
		ON CONFLICT (patient_id)
		DO UPDATE SET
			overall_risk_score = EXCLUDED.overall_risk_score,
			risk_level = EXCLUDED.risk_level,
			risk_factors = EXCLUDED.risk_factors,
			recommendations = EXCLUDED.recommendations,
			consultation = EXCLUDED.consultation,
			assessment_date = EXCLUDED.assessment_date,
			expires_at = EXCLUDED.expires_at
	`

	_, err := a.client.DB().ExecContext(ctx, query,
		assessment.ID,
		assessment.PatientID,
		assessment.Score,
		string(assessment.Level),
		string(factorsBytes),
		string(recsBytes),
		consultationBytes,
		assessment.ChartQualityScore,
		domains,
		assessment.AssessedAt,
		assessment.ExpiresAt,
		assessment.CreatedAt,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to upsert risk assessment", err)
	}

	return nil
}

// UpdateChartReview sets chart quality fields on a patient's newest assessment.
func (a *RiskAssessmentAdapter) UpdateChartReview(ctx context.Context, patientID string, score float64, domains []byte) error {
	query := `
		UPDATE risk_assessments
		SET chart_quality_score = $2, chart_review_domains = $3::jsonb
		WHERE patient_id = $1
	`

	result, err := a.client.DB().ExecContext(ctx, query, patientID, score, string(domains))
	if err != nil {
		return apperrors.NewInternalError("failed to update chart review", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("no assessment found for patient %s", patientID))
	}

	return nil
}

func scanAssessment(scan func(dest ...interface{}) error) (*entities.RiskAssessment, error) {
	var factorsRaw, recsRaw, consultationRaw, domainsRaw []byte
	var chartScore sql.NullFloat64
	var level string
	assessment := &entities.RiskAssessment{}

	err := scan(
		&assessment.ID,
		&assessment.PatientID,
		&assessment.Score,
		&level,
		&factorsRaw,
		&recsRaw,
		&consultationRaw,
		&chartScore,
		&domainsRaw,
		&assessment.AssessedAt,
		&assessment.ExpiresAt,
		&assessment.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to scan risk assessment", err)
	}

	assessment.Level = entities.RiskLevel(level)
	if chartScore.Valid {
		assessment.ChartQualityScore = &chartScore.Float64
	}
	if len(factorsRaw) > 0 {
		_ = json.Unmarshal(factorsRaw, &assessment.RiskFactors)
	}
	if len(recsRaw) > 0 {
		_ = json.Unmarshal(recsRaw, &assessment.Recommendations)
	}
	if len(consultationRaw) > 0 {
		consultation := &entities.Consultation{}
		if err := json.Unmarshal(consultationRaw, consultation); err == nil && consultation.Response != "" {
			assessment.Consultation = consultation
		}
	}
	if len(domainsRaw) > 0 {
		assessment.ChartReviewDomains = append(json.RawMessage(nil), domainsRaw...)
	}

	return assessment, nil
}
