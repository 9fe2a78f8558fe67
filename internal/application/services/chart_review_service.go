package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/providers"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
	apperrors "github.com/clinsight/clinical-dashboard/pkg/errors"
)

// ChartReviewResult is the outcome of one chart review run.
type ChartReviewResult struct {
	Domains           []providers.DomainReview `json:"domains"`
	ChartQualityScore int                      `json:"chart_quality_score"`
}

// ChartReviewService evaluates a patient chart against a fixed set of
// quality domains and stores the score on the patient's newest assessment.
type ChartReviewService struct {
	patientRepo    repositories.PatientRepository
	conditionRepo  repositories.ConditionRepository
	vitalsRepo     repositories.VitalsRepository
	assessmentRepo repositories.RiskAssessmentRepository
	reviewer       providers.ChartReviewProvider
	now            func() time.Time
}

// NewChartReviewService creates a chart review service.
func NewChartReviewService(
	patientRepo repositories.PatientRepository,
	conditionRepo repositories.ConditionRepository,
	vitalsRepo repositories.VitalsRepository,
	assessmentRepo repositories.RiskAssessmentRepository,
	reviewer providers.ChartReviewProvider,
) *ChartReviewService {
	return &ChartReviewService{
		patientRepo:    patientRepo,
		conditionRepo:  conditionRepo,
		vitalsRepo:     vitalsRepo,
		assessmentRepo: assessmentRepo,
		reviewer:       reviewer,
		now:            time.Now,
	}
}

// reviewDomains is the fixed evaluation rubric.
var reviewDomains = []providers.ReviewDomain{
	{
		Name:               "Clinical Documentation",
		EvaluationCriteria: "Assess completeness of patient history, current medications, vital signs, and assessment notes. Evaluate documentation quality and clinical reasoning.",
	},
	{
		Name:               "Treatment Plan",
		EvaluationCriteria: "Evaluate appropriateness of diagnosis, treatment plan, and follow-up instructions based on patient conditions and risk factors.",
	},
	{
		Name:               "Patient Safety",
		EvaluationCriteria: "Review medication reconciliation, allergy documentation, safety protocols, and risk mitigation strategies.",
	},
	{
		Name:               "Care Coordination",
		EvaluationCriteria: "Assess care team communication, referral management, and continuity of care documentation.",
	},
}

// Review runs a chart review for one patient.
func (s *ChartReviewService) Review(ctx context.Context, patientID string) (*ChartReviewResult, error) {
	if s.reviewer == nil {
		return nil, apperrors.NewInternalError("chart review provider not configured", nil)
	}

	patient, err := s.patientRepo.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, apperrors.NewNotFoundError("patient not found: " + patientID)
	}

	conditions, err := s.conditionRepo.ListByPatientIDs(ctx, []string{patientID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conditions for chart review: %w", err)
	}
	vitalsList, err := s.vitalsRepo.ListByPatientIDs(ctx, []string{patientID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vitals for chart review: %w", err)
	}
	assessments, err := s.assessmentRepo.ListByPatientIDs(ctx, []string{patientID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assessments for chart review: %w", err)
	}

	chart := s.buildChart(patient, conditions, vitalsList, assessments)

	reviews, err := s.reviewer.Review(ctx, chart, reviewDomains)
	if err != nil {
		return nil, err
	}

	score := chartQualityScore(reviews)
	domainsJSON, err := json.Marshal(reviews)
	if err != nil {
		return nil, fmt.Errorf("failed to encode domain reviews: %w", err)
	}

	// The score lives on the newest assessment. A patient reviewed before
	// any analysis gets a baseline assessment to carry it.
	if len(assessments) == 0 {
		now := s.now()
		baseline := &entities.RiskAssessment{
			PatientID:  patientID,
			Score:      50,
			Level:      entities.RiskLevelMedium,
			AssessedAt: now,
			ExpiresAt:  now.Add(assessmentValidity),
		}
		if err := s.assessmentRepo.Upsert(ctx, baseline); err != nil {
			return nil, fmt.Errorf("failed to create baseline assessment: %w", err)
		}
	}
	if err := s.assessmentRepo.UpdateChartReview(ctx, patientID, float64(score), domainsJSON); err != nil {
		return nil, fmt.Errorf("failed to store chart review: %w", err)
	}

	return &ChartReviewResult{Domains: reviews, ChartQualityScore: score}, nil
}

func (s *ChartReviewService) buildChart(
	patient *entities.Patient,
	conditions []*entities.Condition,
	vitalsList []*entities.VitalSigns,
	assessments []*entities.RiskAssessment,
) map[string]interface{} {
	conditionEntries := make([]map[string]interface{}, 0, len(conditions))
	for _, c := range conditions {
		conditionEntries = append(conditionEntries, map[string]interface{}{
			"name":      c.Name,
			"icdCode":   c.ICDCode,
			"severity":  c.Severity,
			"status":    c.Status,
			"onsetDate": c.OnsetDate,
		})
	}

	var vitalsEntry map[string]interface{}
	if len(vitalsList) > 0 {
		v := vitalsList[0]
		vitalsEntry = map[string]interface{}{
			"bloodPressure":    fmt.Sprintf("%s/%s", formatIntVital(v.SystolicBP), formatIntVital(v.DiastolicBP)),
			"heartRate":        v.HeartRate,
			"temperature":      v.Temperature,
			"oxygenSaturation": v.OxygenSat,
			"bmi":              v.BMI,
			"recordedAt":       v.RecordedAt,
		}
	}

	assessmentEntries := make([]map[string]interface{}, 0, len(assessments))
	for _, a := range assessments {
		assessmentEntries = append(assessmentEntries, map[string]interface{}{
			"riskScore":       a.Score,
			"riskLevel":       a.Level,
			"assessmentDate":  a.AssessedAt,
			"recommendations": a.Recommendations,
		})
	}

	return map[string]interface{}{
		"patientId":  patient.ID,
		"reviewDate": s.now().Format("2006-01-02"),
		"demographics": map[string]interface{}{
			"name":   patient.Name,
			"age":    patient.Age,
			"gender": patient.Gender,
			"mrn":    patient.MRN,
		},
		"conditions":      conditionEntries,
		"vitals":          vitalsEntry,
		"riskAssessments": assessmentEntries,
	}
}

// chartQualityScore converts narrative domain reviews into a 0-100 score by
// counting positive and negative indicator phrases per domain.
func chartQualityScore(reviews []providers.DomainReview) int {
	if len(reviews) == 0 {
		return 0
	}

	total := 0
	for _, domain := range reviews {
		review := strings.ToLower(domain.Review)
		score := 50

		if strings.Contains(review, "comprehensive") || strings.Contains(review, "complete") {
			score += 15
		}
		if strings.Contains(review, "well-organized") || strings.Contains(review, "clear") {
			score += 10
		}
		if strings.Contains(review, "appropriate") || strings.Contains(review, "excellent") {
			score += 15
		}
		if strings.Contains(review, "properly") || strings.Contains(review, "accurate") {
			score += 10
		}

		if strings.Contains(review, "missing") || strings.Contains(review, "incomplete") {
			score -= 20
		}
		if strings.Contains(review, "unclear") || strings.Contains(review, "inadequate") {
			score -= 15
		}
		if strings.Contains(review, "concerns") || strings.Contains(review, "issues") {
			score -= 10
		}

		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		total += score
	}

	return total / len(reviews)
}
