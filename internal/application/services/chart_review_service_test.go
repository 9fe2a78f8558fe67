package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/providers"
)

type stubChartReviewer struct {
	reviews []providers.DomainReview
	err     error

	lastChart   map[string]interface{}
	lastDomains []providers.ReviewDomain
}

func (s *stubChartReviewer) Review(ctx context.Context, chart map[string]interface{}, domains []providers.ReviewDomain) ([]providers.DomainReview, error) {
	s.lastChart = chart
	s.lastDomains = domains
	if s.err != nil {
		return nil, s.err
	}
	return s.reviews, nil
}

func newChartReviewFixture(assessments []*entities.RiskAssessment, reviewer *stubChartReviewer) (*ChartReviewService, *stubAssessmentRepo) {
	patients := &stubPatientRepo{identities: []*entities.Patient{identity("p1", "Sarah Johnson")}}
	assessmentRepo := &stubAssessmentRepo{assessments: assessments}
	svc := NewChartReviewService(
		patients,
		&stubConditionRepo{conditions: []*entities.Condition{{PatientID: "p1", Name: "Hypertension", ICDCode: "I10", Status: "active"}}},
		&stubVitalsRepo{vitals: []*entities.VitalSigns{{PatientID: "p1", SystolicBP: intPtr(140), DiastolicBP: intPtr(90)}}},
		assessmentRepo,
		reviewer,
	)
	return svc, assessmentRepo
}

func TestReview_SendsChartAndRubric(t *testing.T) {
	reviewer := &stubChartReviewer{reviews: []providers.DomainReview{{Name: "Clinical Documentation", Review: "Documentation is complete and clear."}}}
	svc, _ := newChartReviewFixture([]*entities.RiskAssessment{{PatientID: "p1", Score: 60}}, reviewer)

	result, err := svc.Review(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, reviewer.lastDomains, 4)
	assert.Equal(t, "Clinical Documentation", reviewer.lastDomains[0].Name)

	assert.Equal(t, "p1", reviewer.lastChart["patientId"])
	demographics, ok := reviewer.lastChart["demographics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Sarah Johnson", demographics["name"])
	vitals, ok := reviewer.lastChart["vitals"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "140/90", vitals["bloodPressure"])
}

func TestReview_StoresScoreOnAssessment(t *testing.T) {
	reviewer := &stubChartReviewer{reviews: []providers.DomainReview{
		{Name: "Clinical Documentation", Review: "Comprehensive and clear documentation, medications recorded properly."},
		{Name: "Patient Safety", Review: "Allergy list is missing and reconciliation is inadequate."},
	}}
	svc, _ := newChartReviewFixture([]*entities.RiskAssessment{{PatientID: "p1", Score: 60}}, reviewer)

	result, err := svc.Review(context.Background(), "p1")
	require.NoError(t, err)

	// Domain 1: 50+15+10+10 = 85. Domain 2: 50-20-15 = 15. Average 50.
	assert.Equal(t, 50, result.ChartQualityScore)
	assert.Len(t, result.Domains, 2)
}

func TestReview_CreatesBaselineAssessmentWhenNoneExists(t *testing.T) {
	reviewer := &stubChartReviewer{reviews: []providers.DomainReview{{Name: "Treatment Plan", Review: "Appropriate plan."}}}
	svc, assessmentRepo := newChartReviewFixture(nil, reviewer)

	_, err := svc.Review(context.Background(), "p1")
	require.NoError(t, err)

	require.Len(t, assessmentRepo.upserted, 1)
	baseline := assessmentRepo.upserted[0]
	assert.Equal(t, 50, baseline.Score)
	assert.Equal(t, entities.RiskLevelMedium, baseline.Level)
}

func TestReview_ProviderErrorPropagates(t *testing.T) {
	reviewer := &stubChartReviewer{err: errors.New("rate limited")}
	svc, _ := newChartReviewFixture(nil, reviewer)

	_, err := svc.Review(context.Background(), "p1")
	require.Error(t, err)
}

func TestReview_NilReviewerFails(t *testing.T) {
	svc, _ := newChartReviewFixture(nil, nil)
	svc.reviewer = nil

	_, err := svc.Review(context.Background(), "p1")
	require.Error(t, err)
}

func TestChartQualityScore_NegativeIndicators(t *testing.T) {
	score := chartQualityScore([]providers.DomainReview{
		{Name: "Patient Safety", Review: "Records are missing, reconciliation is inadequate, and there are several safety concerns."},
	})

	assert.Equal(t, 5, score)
}

func TestChartQualityScore_EmptyReviews(t *testing.T) {
	assert.Equal(t, 0, chartQualityScore(nil))
}
