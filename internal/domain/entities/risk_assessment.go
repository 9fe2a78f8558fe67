package entities

import (
	"encoding/json"
	"time"
)

// RiskAssessment represents one scoring pass over a patient. Records are
// immutable once created; a new analysis produces a new record, upserted by
// patient id in the persistence layer.
type RiskAssessment struct {
	ID                 string          `json:"id" db:"id"`
	PatientID          string          `json:"patient_id" db:"patient_id"`
	Score              int             `json:"overall_risk_score" db:"overall_risk_score"`
	Level              RiskLevel       `json:"risk_level" db:"risk_level"`
	RiskFactors        []RiskFactor    `json:"risk_factors,omitempty" db:"-"`
	Recommendations    []string        `json:"recommendations,omitempty" db:"-"`
	Consultation       *Consultation   `json:"consultation,omitempty" db:"-"`
	ChartQualityScore  *float64        `json:"chart_quality_score,omitempty" db:"chart_quality_score"`
	ChartReviewDomains json.RawMessage `json:"chart_review_domains,omitempty" db:"-"`
	AssessedAt         time.Time       `json:"assessment_date" db:"assessment_date"`
	ExpiresAt          time.Time       `json:"expires_at" db:"expires_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// RiskFactor is one named contributor to an overall risk score
type RiskFactor struct {
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Trend   string `json:"trend,omitempty"`
	Impact  string `json:"impact,omitempty"`
	Details string `json:"details,omitempty"`
	Insight string `json:"insight,omitempty"`
}

// Consultation is the structured output of an enrichment call against the
// model-serving endpoint. Replaces the untyped JSON payload of the source
// schema with the attributes the dashboard actually reads.
type Consultation struct {
	Query        string  `json:"query"`
	Response     string  `json:"response"`
	SessionID    string  `json:"session_id"`
	ModelVersion string  `json:"model_version"`
	Confidence   float64 `json:"confidence"`
}

// Clone returns a deep copy of the assessment
func (a *RiskAssessment) Clone() *RiskAssessment {
	if a == nil {
		return nil
	}
	clone := *a
	if a.RiskFactors != nil {
		clone.RiskFactors = append([]RiskFactor(nil), a.RiskFactors...)
	}
	if a.Recommendations != nil {
		clone.Recommendations = append([]string(nil), a.Recommendations...)
	}
	if a.Consultation != nil {
		consultation := *a.Consultation
		clone.Consultation = &consultation
	}
	if a.ChartQualityScore != nil {
		score := *a.ChartQualityScore
		clone.ChartQualityScore = &score
	}
	if a.ChartReviewDomains != nil {
		clone.ChartReviewDomains = append(json.RawMessage(nil), a.ChartReviewDomains...)
	}
	return &clone
}

// Stale reports whether the assessment's consultation is older than the given
// window at the supplied reference time. Assessments without a consultation
// are always considered stale.
func (a *RiskAssessment) Stale(now time.Time, window time.Duration) bool {
	if a == nil || a.Consultation == nil {
		return true
	}
	return now.Sub(a.AssessedAt) > window
}
