package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    []string
	delay    time.Duration
	failIDs  map[string]bool
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, patientID string) (*entities.RiskAssessment, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.calls = append(f.calls, patientID)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.failIDs[patientID] {
		return nil, errors.New("analysis backend unavailable")
	}
	return &entities.RiskAssessment{
		ID:        "assessment-" + patientID,
		PatientID: patientID,
		Score:     55,
		Level:     entities.RiskLevelMedium,
	}, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func consultationAssessment(assessedAt time.Time) *entities.RiskAssessment {
	return &entities.RiskAssessment{
		ID:           "a1",
		Score:        60,
		Level:        entities.RiskLevelHigh,
		Consultation: &entities.Consultation{Query: "q", Response: "r"},
		AssessedAt:   assessedAt,
	}
}

func TestNeedsEnrichment_NoAssessments(t *testing.T) {
	d := NewEnrichmentDispatcher(&fakeAnalyzer{}, 0, 0)

	assert.True(t, d.NeedsEnrichment(&entities.Patient{ID: "p1"}))
}

func TestNeedsEnrichment_NoConsultationBearingAssessment(t *testing.T) {
	now := time.Now()
	d := NewEnrichmentDispatcher(&fakeAnalyzer{}, 0, 0)
	d.now = fixedClock(now)

	patient := &entities.Patient{
		ID: "p1",
		RiskAssessments: []*entities.RiskAssessment{
			{ID: "a1", Score: 40, AssessedAt: now},
		},
	}

	assert.True(t, d.NeedsEnrichment(patient))
}

func TestNeedsEnrichment_WindowBoundary(t *testing.T) {
	now := time.Now()
	d := NewEnrichmentDispatcher(&fakeAnalyzer{}, 0, 0)
	d.now = fixedClock(now)

	fresh := &entities.Patient{
		ID: "fresh",
		RiskAssessments: []*entities.RiskAssessment{
			consultationAssessment(now.Add(-23*time.Hour - 59*time.Minute)),
		},
	}
	stale := &entities.Patient{
		ID: "stale",
		RiskAssessments: []*entities.RiskAssessment{
			consultationAssessment(now.Add(-24*time.Hour - time.Second)),
		},
	}

	assert.False(t, d.NeedsEnrichment(fresh))
	assert.True(t, d.NeedsEnrichment(stale))
}

func TestNeedsEnrichment_UsesNewestConsultationRecord(t *testing.T) {
	now := time.Now()
	d := NewEnrichmentDispatcher(&fakeAnalyzer{}, 0, 0)
	d.now = fixedClock(now)

	// Newest consultation record is fresh even though an older stale one
	// appears first in the slice.
	patient := &entities.Patient{
		ID: "p1",
		RiskAssessments: []*entities.RiskAssessment{
			consultationAssessment(now.Add(-48 * time.Hour)),
			consultationAssessment(now.Add(-1 * time.Hour)),
		},
	}

	assert.False(t, d.NeedsEnrichment(patient))
}

func TestSelectStale_FiltersFreshPatients(t *testing.T) {
	now := time.Now()
	d := NewEnrichmentDispatcher(&fakeAnalyzer{}, 0, 0)
	d.now = fixedClock(now)

	fresh := &entities.Patient{ID: "fresh", RiskAssessments: []*entities.RiskAssessment{consultationAssessment(now)}}
	stale := &entities.Patient{ID: "stale"}

	selected := d.SelectStale([]*entities.Patient{fresh, stale})

	assert.Len(t, selected, 1)
	assert.Equal(t, "stale", selected[0].ID)
}

func TestDispatch_ConcurrencyCeiling(t *testing.T) {
	analyzer := &fakeAnalyzer{delay: 20 * time.Millisecond}
	d := NewEnrichmentDispatcher(analyzer, 3, 0)

	patients := make([]*entities.Patient, 10)
	for i := range patients {
		patients[i] = &entities.Patient{ID: string(rune('a' + i))}
	}

	applied := 0
	var mu sync.Mutex
	d.Dispatch(context.Background(), patients, func(patientID string, assessment *entities.RiskAssessment) {
		mu.Lock()
		applied++
		mu.Unlock()
	})

	assert.Len(t, analyzer.calls, 10)
	assert.LessOrEqual(t, analyzer.maxSeen, 3)
	assert.Equal(t, 10, applied)
}

func TestDispatch_FailedCallIsSkipped(t *testing.T) {
	analyzer := &fakeAnalyzer{failIDs: map[string]bool{"p2": true}}
	d := NewEnrichmentDispatcher(analyzer, 3, 0)

	patients := []*entities.Patient{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}}

	var mu sync.Mutex
	applied := map[string]bool{}
	d.Dispatch(context.Background(), patients, func(patientID string, assessment *entities.RiskAssessment) {
		mu.Lock()
		applied[patientID] = true
		mu.Unlock()
	})

	assert.Len(t, analyzer.calls, 3)
	assert.True(t, applied["p1"])
	assert.False(t, applied["p2"])
	assert.True(t, applied["p3"])
}

func TestDispatch_NoStalePatientsNoCalls(t *testing.T) {
	now := time.Now()
	analyzer := &fakeAnalyzer{}
	d := NewEnrichmentDispatcher(analyzer, 3, 0)
	d.now = fixedClock(now)

	patients := []*entities.Patient{
		{ID: "p1", RiskAssessments: []*entities.RiskAssessment{consultationAssessment(now)}},
	}

	d.Dispatch(context.Background(), patients, nil)

	assert.Empty(t, analyzer.calls)
}
