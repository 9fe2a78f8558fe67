package entities

import "time"

// Condition represents a diagnosed patient condition
type Condition struct {
	ID        string    `json:"id" db:"id"`
	PatientID string    `json:"patient_id" db:"patient_id"`
	Name      string    `json:"condition_name" db:"condition_name"`
	ICDCode   string    `json:"icd_code,omitempty" db:"icd_code"`
	Severity  string    `json:"severity,omitempty" db:"severity"`
	Status    string    `json:"status" db:"status"`
	OnsetDate string    `json:"onset_date,omitempty" db:"onset_date"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Active reports whether the condition's clinical status is active
func (c *Condition) Active() bool {
	return c.Status == "active"
}

// VitalSigns represents one recorded set of patient vitals. Individual
// measurements are optional; a sync may only carry a subset.
type VitalSigns struct {
	ID             string    `json:"id" db:"id"`
	PatientID      string    `json:"patient_id" db:"patient_id"`
	SystolicBP     *int      `json:"blood_pressure_systolic,omitempty" db:"blood_pressure_systolic"`
	DiastolicBP    *int      `json:"blood_pressure_diastolic,omitempty" db:"blood_pressure_diastolic"`
	HeartRate      *int      `json:"heart_rate,omitempty" db:"heart_rate"`
	Temperature    *float64  `json:"temperature,omitempty" db:"temperature"`
	OxygenSat      *int      `json:"oxygen_saturation,omitempty" db:"oxygen_saturation"`
	HeightCm       *float64  `json:"height,omitempty" db:"height"`
	WeightKg       *float64  `json:"weight,omitempty" db:"weight"`
	BMI            *float64  `json:"bmi,omitempty" db:"bmi"`
	RecordedBy     string    `json:"recorded_by,omitempty" db:"recorded_by"`
	RecordedAt     time.Time `json:"recorded_at" db:"recorded_at"`
}

// ClinicalAlert represents an active or dismissed alert on a patient chart
type ClinicalAlert struct {
	ID                string    `json:"id" db:"id"`
	PatientID         string    `json:"patient_id" db:"patient_id"`
	AlertType         string    `json:"alert_type" db:"alert_type"`
	Title             string    `json:"title" db:"title"`
	Description       string    `json:"description,omitempty" db:"description"`
	RecommendedAction string    `json:"recommended_action,omitempty" db:"recommended_action"`
	IsActive          bool      `json:"is_active" db:"is_active"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
