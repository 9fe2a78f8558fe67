package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	"github.com/clinsight/clinical-dashboard/internal/infrastructure/clients/postgres"
	apperrors "github.com/clinsight/clinical-dashboard/pkg/errors"
)

// PatientAdapter implements the PatientRepository interface
type PatientAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPatientAdapter creates a new patient adapter
func NewPatientAdapter(client *postgres.Client) repositories.PatientRepository {
	return &PatientAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListIdentities retrieves identity fields only, ordered by creation time
// descending. The narrow column list keeps the first dashboard paint fast.
func (a *PatientAdapter) ListIdentities(ctx context.Context) ([]*entities.Patient, error) {
	query, args, err := a.db.Select("id", "name", "age", "mrn", "created_at", "updated_at").
		From("patients").
		Order(goqu.I("created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build patient identity query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list patient identities", err)
	}
	defer rows.Close()

	patients := []*entities.Patient{}
	for rows.Next() {
		patient := &entities.Patient{
			RiskLevel:  entities.RiskLevelLow,
			Conditions: []string{},
		}
		if err := rows.Scan(
			&patient.ID,
			&patient.Name,
			&patient.Age,
			&patient.MRN,
			&patient.CreatedAt,
			&patient.UpdatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan patient identity", err)
		}
		patient.LastVisit = patient.UpdatedAt.Format("2006-01-02")
		patients = append(patients, patient)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating patients", err)
	}

	return patients, nil
}

// GetByID retrieves a patient with demographics
func (a *PatientAdapter) GetByID(ctx context.Context, id string) (*entities.Patient, error) {
	query, args, err := a.db.Select(
		"id", "name", "age", "mrn", "date_of_birth", "gender",
		"phone", "email", "created_at", "updated_at",
	).
		From("patients").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build patient query", err)
	}

	var dob, gender, phone, email sql.NullString
	patient := &entities.Patient{
		RiskLevel:  entities.RiskLevelLow,
		Conditions: []string{},
	}

	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&patient.ID,
		&patient.Name,
		&patient.Age,
		&patient.MRN,
		&dob,
		&gender,
		&phone,
		&email,
		&patient.CreatedAt,
		&patient.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("patient with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get patient", err)
	}

	patient.DateOfBirth = dob.String
	patient.Gender = gender.String
	patient.Phone = phone.String
	patient.Email = email.String
	patient.LastVisit = patient.UpdatedAt.Format("2006-01-02")

	return patient, nil
}

// Upsert inserts or updates a patient by id (EHR sync path)
func (a *PatientAdapter) Upsert(ctx context.Context, patient *entities.Patient) error {
	if patient == nil {
		return apperrors.NewValidationError("patient is required")
	}

	now := time.Now()
	if patient.CreatedAt.IsZero() {
		patient.CreatedAt = now
	}
	patient.UpdatedAt = now

	query := `
		INSERT INTO patients
			(id, name, age, mrn, date_of_birth, gender, phone, email, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			mrn = EXCLUDED.mrn,
			date_of_birth = EXCLUDED.date_of_birth,
			gender = EXCLUDED.gender,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			updated_at = EXCLUDED.updated_at
	`

	_, err := a.client.DB().ExecContext(ctx, query,
		patient.ID,
		patient.Name,
		patient.Age,
		patient.MRN,
		nullString(patient.DateOfBirth),
		nullString(patient.Gender),
		nullString(patient.Phone),
		nullString(patient.Email),
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to upsert patient", err)
	}

	return nil
}

// List retrieves patients with filters
func (a *PatientAdapter) List(ctx context.Context, filter repositories.PatientFilter) ([]*entities.Patient, error) {
	ds := a.db.Select("id", "name", "age", "mrn", "created_at", "updated_at").
		From("patients").
		Order(goqu.I("created_at").Desc())

	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build patient list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list patients", err)
	}
	defer rows.Close()

	patients := []*entities.Patient{}
	for rows.Next() {
		patient := &entities.Patient{
			RiskLevel:  entities.RiskLevelLow,
			Conditions: []string{},
		}
		if err := rows.Scan(
			&patient.ID,
			&patient.Name,
			&patient.Age,
			&patient.MRN,
			&patient.CreatedAt,
			&patient.UpdatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan patient", err)
		}
		patients = append(patients, patient)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating patients", err)
	}

	return patients, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
