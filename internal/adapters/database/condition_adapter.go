package database

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/postgres"
	apperrors "github.com/clinsight/clinical-dashboard/pkg/errors"
)

// ConditionAdapter implements ConditionRepository.
type ConditionAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewConditionAdapter creates a new condition adapter.
func NewConditionAdapter(client *postgres.Client) repositories.ConditionRepository {
	return &ConditionAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListByPatientIDs retrieves conditions for the given patient set.
func (a *ConditionAdapter) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.Condition, error) {
	if len(patientIDs) == 0 {
		return []*entities.Condition{}, nil
	}

	query, args, err := a.db.Select(
		"id", "patient_id", "condition_name", "icd_code",
		"severity", "status", "onset_date", "created_at",
	).
		From("patient_conditions").
		Where(goqu.C("patient_id").In(patientIDs)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build condition query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list patient conditions", err)
	}
	defer rows.Close()

	conditions := []*entities.Condition{}
	for rows.Next() {
		var icdCode, severity, onsetDate sql.NullString
		condition := &entities.Condition{}
		if err := rows.Scan(
			&condition.ID,
			&condition.PatientID,
			&condition.Name,
			&icdCode,
			&severity,
			&condition.Status,
			&onsetDate,
			&condition.CreatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan condition", err)
		}
		condition.ICDCode = icdCode.String
		condition.Severity = severity.String
		condition.OnsetDate = onsetDate.String
		conditions = append(conditions, condition)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating conditions", err)
	}

	return conditions, nil
}

// Upsert inserts or updates a condition by id (EHR sync path).
func (a *ConditionAdapter) Upsert(ctx context.Context, condition *entities.Condition) error {
	if condition == nil {
		return apperrors.NewValidationError("condition is required")
	}
	if condition.ID == "" {
		condition.ID = uuid.New().String()
	}

	query := `
		INSERT INTO patient_conditions
			(id, patient_id, condition_name, icd_code, severity, status, onset_date)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			condition_name = EXCLUDED.condition_name,
			icd_code = EXCLUDED.icd_code,
			severity = EXCLUDED.severity,
			status = EXCLUDED.status,
			onset_date = EXCLUDED.onset_date
	`

	_, err := a.client.DB().ExecContext(ctx, query,
		condition.ID,
		condition.PatientID,
		condition.Name,
		nullString(condition.ICDCode),
		nullString(condition.Severity),
		condition.Status,
		nullString(condition.OnsetDate),
	)
	if err != nil {
		return apperrors.NewInternalError("failed to upsert condition", err)
	}

	return nil
}
