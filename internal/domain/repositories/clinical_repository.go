package repositories

import (
	"context"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
)

// ConditionRepository defines the interface for patient condition storage
type ConditionRepository interface {
	// ListByPatientIDs retrieves conditions for the given patient set
	ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.Condition, error)

	// Upsert inserts or updates a condition by id (EHR sync path)
	Upsert(ctx context.Context, condition *entities.Condition) error
}

// VitalsRepository defines the interface for recorded vital signs storage
type VitalsRepository interface {
	// ListByPatientIDs retrieves vitals for the given patient set, ordered
	// by recorded time descending
	ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.VitalSigns, error)

	// Create inserts a new vitals record
	Create(ctx context.Context, vitals *entities.VitalSigns) error
}

// AlertRepository defines the interface for clinical alert storage
type AlertRepository interface {
	// ListActiveByPatientIDs retrieves active alerts for the given patient set
	ListActiveByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.ClinicalAlert, error)

	// Create inserts a new alert
	Create(ctx context.Context, alert *entities.ClinicalAlert) error
}
