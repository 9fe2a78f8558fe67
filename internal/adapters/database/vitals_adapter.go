package database

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/postgres"
	apperrors "github.com/clinsight/clinical-dashboard/pkg/errors"
)

// VitalsAdapter implements VitalsRepository.
type VitalsAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewVitalsAdapter creates a new vitals adapter.
func NewVitalsAdapter(client *postgres.Client) repositories.VitalsRepository {
	return &VitalsAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListByPatientIDs retrieves vitals for the given patient set, newest first.
func (a *VitalsAdapter) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.VitalSigns, error) {
	if len(patientIDs) == 0 {
		return []*entities.VitalSigns{}, nil
	}

	query, args, err := a.db.Select(
		"id", "patient_id", "blood_pressure_systolic", "blood_pressure_diastolic",
		"heart_rate", "temperature", "oxygen_saturation", "height", "weight",
		"bmi", "recorded_by", "recorded_at",
	).
		From("patient_vitals").
		Where(goqu.C("patient_id").In(patientIDs)).
		Order(goqu.I("recorded_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build vitals query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list patient vitals", err)
	}
	defer rows.Close()

	records := []*entities.VitalSigns{}
	for rows.Next() {
		var recordedBy *string
		vitals := &entities.VitalSigns{}
		if err := rows.Scan(
			&vitals.ID,
			&vitals.PatientID,
			&vitals.SystolicBP,
			&vitals.DiastolicBP,
			&vitals.HeartRate,
			&vitals.Temperature,
			&vitals.OxygenSat,
			&vitals.HeightCm,
			&vitals.WeightKg,
			&vitals.BMI,
			&recordedBy,
			&vitals.RecordedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan vitals", err)
		}
		if recordedBy != nil {
			vitals.RecordedBy = *recordedBy
		}
		records = append(records, vitals)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating vitals", err)
	}

	return records, nil
}

// Create inserts a new vitals record.
func (a *VitalsAdapter) Create(ctx context.Context, vitals *entities.VitalSigns) error {
	if vitals == nil {
		return apperrors.NewValidationError("vitals record is required")
	}
	if vitals.ID == "" {
		vitals.ID = uuid.New().String()
	}
	if vitals.RecordedAt.IsZero() {
		vitals.RecordedAt = time.Now()
	}

	record := goqu.Record{
		"id":                       vitals.ID,
		"patient_id":               vitals.PatientID,
		"blood_pressure_systolic":  vitals.SystolicBP,
		"blood_pressure_diastolic": vitals.DiastolicBP,
		"heart_rate":               vitals.HeartRate,
		"temperature":              vitals.Temperature,
		"oxygen_saturation":        vitals.OxygenSat,
		"height":                   vitals.HeightCm,
		"weight":                   vitals.WeightKg,
		"bmi":                      vitals.BMI,
		"recorded_by":              nullString(vitals.RecordedBy),
		"recorded_at":              vitals.RecordedAt,
	}

	query, args, err := a.db.Insert("patient_vitals").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build vitals insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to create vitals record", err)
	}

	return nil
}
