package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/postgres"
	apperrors "github.com/clinsight/clinical-dashboard/pkg/errors"
)

// AlertAdapter implements AlertRepository.
type AlertAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewAlertAdapter creates a new alert adapter.
func NewAlertAdapter(client *postgres.Client) repositories.AlertRepository {
	return &AlertAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListActiveByPatientIDs retrieves active alerts for the given patient set.
func (a *AlertAdapter) ListActiveByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.ClinicalAlert, error) {
	if len(patientIDs) == 0 {
		return []*entities.ClinicalAlert{}, nil
	}

	query, args, err := a.db.Select(
		"id", "patient_id", "alert_type", "title",
		"description", "recommended_action", "is_active", "created_at",
	).
		From("clinical_alerts").
		Where(goqu.C("patient_id").In(patientIDs), goqu.Ex{"is_active": true}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build alert query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list clinical alerts", err)
	}
	defer rows.Close()

	alerts := []*entities.ClinicalAlert{}
	for rows.Next() {
		var description, action sql.NullString
		alert := &entities.ClinicalAlert{}
		if err := rows.Scan(
			&alert.ID,
			&alert.PatientID,
			&alert.AlertType,
			&alert.Title,
			&description,
			&action,
			&alert.IsActive,
			&alert.CreatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan alert", err)
		}
		alert.Description = description.String
		alert.RecommendedAction = action.String
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating alerts", err)
	}

	return alerts, nil
}

// Create inserts a new alert.
func (a *AlertAdapter) Create(ctx context.Context, alert *entities.ClinicalAlert) error {
	if alert == nil {
		return apperrors.NewValidationError("alert is required")
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	record := goqu.Record{
		"id":                 alert.ID,
		"patient_id":         alert.PatientID,
		"alert_type":         alert.AlertType,
		"title":              alert.Title,
		"description":        nullString(alert.Description),
		"recommended_action": nullString(alert.RecommendedAction),
		"is_active":          alert.IsActive,
		"created_at":         alert.CreatedAt,
	}

	query, args, err := a.db.Insert("clinical_alerts").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build alert insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create alert", err)
	}

	return nil
}
