package entities

import (
	"encoding/json"
	"time"
)

// RiskLevel classifies a patient's overall clinical risk
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a 0-100 risk score to its display band
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskLevelCritical
	case score >= 60:
		return RiskLevelHigh
	case score >= 40:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// Patient represents a patient in the dashboard read model
type Patient struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Age         int       `json:"age" db:"age"`
	MRN         string    `json:"mrn" db:"mrn"`
	DateOfBirth string    `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Gender      string    `json:"gender,omitempty" db:"gender"`
	Phone       string    `json:"phone,omitempty" db:"phone"`
	Email       string    `json:"email,omitempty" db:"email"`
	LastVisit   string    `json:"last_visit,omitempty" db:"-"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	// Derived fields, populated by detail hydration and background enrichment.
	RiskScore       int               `json:"risk_score" db:"-"`
	RiskLevel       RiskLevel         `json:"risk_level" db:"-"`
	Conditions      []string          `json:"conditions" db:"-"`
	Alerts          int               `json:"alerts" db:"-"`
	Vitals          *VitalSigns       `json:"vitals,omitempty" db:"-"`
	RiskAssessments []*RiskAssessment `json:"risk_assessments,omitempty" db:"-"`

	// Populated by a separate chart review step, not by the loader.
	ChartQualityScore  *float64        `json:"chart_quality_score,omitempty" db:"-"`
	ChartReviewDomains json.RawMessage `json:"chart_review_domains,omitempty" db:"-"`
}

// Clone returns a deep copy of the patient, so published snapshots cannot
// be mutated by a later load cycle.
func (p *Patient) Clone() *Patient {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Conditions != nil {
		clone.Conditions = append([]string(nil), p.Conditions...)
	}
	if p.Vitals != nil {
		vitals := *p.Vitals
		clone.Vitals = &vitals
	}
	if p.RiskAssessments != nil {
		clone.RiskAssessments = make([]*RiskAssessment, len(p.RiskAssessments))
		for i, assessment := range p.RiskAssessments {
			clone.RiskAssessments[i] = assessment.Clone()
		}
	}
	if p.ChartQualityScore != nil {
		score := *p.ChartQualityScore
		clone.ChartQualityScore = &score
	}
	if p.ChartReviewDomains != nil {
		clone.ChartReviewDomains = append(json.RawMessage(nil), p.ChartReviewDomains...)
	}
	return &clone
}

// CurrentAssessment returns the assessment used for display: the most recent
// one carrying a consultation payload, else the most recent overall.
func (p *Patient) CurrentAssessment() *RiskAssessment {
	for _, assessment := range p.RiskAssessments {
		if assessment.Consultation != nil {
			return assessment
		}
	}
	if len(p.RiskAssessments) > 0 {
		return p.RiskAssessments[0]
	}
	return nil
}
