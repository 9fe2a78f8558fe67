package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
)

type stubPatientRepo struct {
	mu         sync.Mutex
	identities []*entities.Patient
	err        error
}

func (s *stubPatientRepo) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stubPatientRepo) ListIdentities(ctx context.Context) ([]*entities.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*entities.Patient, len(s.identities))
	for i, p := range s.identities {
		out[i] = p.Clone()
	}
	return out, nil
}

func (s *stubPatientRepo) GetByID(ctx context.Context, id string) (*entities.Patient, error) {
	for _, p := range s.identities {
		if p.ID == id {
			return p.Clone(), nil
		}
	}
	return nil, errors.New("not found")
}

func (s *stubPatientRepo) Upsert(ctx context.Context, patient *entities.Patient) error { return nil }

func (s *stubPatientRepo) List(ctx context.Context, filter repositories.PatientFilter) ([]*entities.Patient, error) {
	return s.ListIdentities(ctx)
}

type stubAssessmentRepo struct {
	assessments []*entities.RiskAssessment
	err         error
	upserted    []*entities.RiskAssessment
}

func (s *stubAssessmentRepo) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.RiskAssessment, error) {
	return s.assessments, s.err
}

func (s *stubAssessmentRepo) GetLatestByPatientID(ctx context.Context, patientID string) (*entities.RiskAssessment, error) {
	for _, a := range s.assessments {
		if a.PatientID == patientID {
			return a, nil
		}
	}
	return nil, nil
}

func (s *stubAssessmentRepo) Upsert(ctx context.Context, assessment *entities.RiskAssessment) error {
	s.upserted = append(s.upserted, assessment)
	return nil
}

func (s *stubAssessmentRepo) UpdateChartReview(ctx context.Context, patientID string, score float64, domains []byte) error {
	return nil
}

type stubConditionRepo struct {
	conditions []*entities.Condition
	err        error
}

func (s *stubConditionRepo) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.Condition, error) {
	return s.conditions, s.err
}

func (s *stubConditionRepo) Upsert(ctx context.Context, condition *entities.Condition) error {
	return nil
}

type stubVitalsRepo struct {
	vitals []*entities.VitalSigns
	err    error
}

func (s *stubVitalsRepo) ListByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.VitalSigns, error) {
	return s.vitals, s.err
}

func (s *stubVitalsRepo) Create(ctx context.Context, vitals *entities.VitalSigns) error { return nil }

type stubAlertRepo struct {
	alerts []*entities.ClinicalAlert
	err    error
}

func (s *stubAlertRepo) ListActiveByPatientIDs(ctx context.Context, patientIDs []string) ([]*entities.ClinicalAlert, error) {
	return s.alerts, s.err
}

func (s *stubAlertRepo) Create(ctx context.Context, alert *entities.ClinicalAlert) error { return nil }

type recordingEventBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	channel string
	event   *entities.PatientEvent
}

func (b *recordingEventBus) Publish(ctx context.Context, channel string, event *entities.PatientEvent) error {
	b.mu.Lock()
	b.events = append(b.events, publishedEvent{channel: channel, event: event})
	b.mu.Unlock()
	return nil
}

func (b *recordingEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.PatientEvent, error) {
	return nil, nil
}

func (b *recordingEventBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (b *recordingEventBus) Close() error { return nil }

func (b *recordingEventBus) published(channel string) []*entities.PatientEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []*entities.PatientEvent{}
	for _, e := range b.events {
		if e.channel == channel {
			out = append(out, e.event)
		}
	}
	return out
}

func identity(id, name string) *entities.Patient {
	return &entities.Patient{
		ID:         id,
		Name:       name,
		Age:        50,
		MRN:        "MRN-" + id,
		RiskLevel:  entities.RiskLevelLow,
		Conditions: []string{},
	}
}

func newTestLoader(
	patients *stubPatientRepo,
	assessments *stubAssessmentRepo,
	conditions *stubConditionRepo,
	vitals *stubVitalsRepo,
	alerts *stubAlertRepo,
	dispatcher *EnrichmentDispatcher,
	bus *recordingEventBus,
) *PatientLoaderService {
	if bus == nil {
		return NewPatientLoaderService(patients, assessments, conditions, vitals, alerts, dispatcher, nil)
	}
	return NewPatientLoaderService(patients, assessments, conditions, vitals, alerts, dispatcher, bus)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestLoad_HydratesDetailsOverIdentitySet(t *testing.T) {
	now := time.Now()
	patients := &stubPatientRepo{identities: []*entities.Patient{identity("p1", "Sarah Johnson"), identity("p2", "Michael Chen")}}

	consult := consultationAssessment(now.Add(-2 * time.Hour))
	consult.PatientID = "p1"
	plain := &entities.RiskAssessment{ID: "a2", PatientID: "p1", Score: 90, Level: entities.RiskLevelCritical, AssessedAt: now}

	assessments := &stubAssessmentRepo{assessments: []*entities.RiskAssessment{plain, consult}}
	conditions := &stubConditionRepo{conditions: []*entities.Condition{
		{ID: "c1", PatientID: "p1", Name: "Hypertension", Status: "active"},
		{ID: "c2", PatientID: "p1", Name: "Diabetes Type 2", Status: "active"},
	}}
	vitals := &stubVitalsRepo{vitals: []*entities.VitalSigns{
		{ID: "v1", PatientID: "p1", RecordedAt: now.Add(-time.Hour)},
		{ID: "v2", PatientID: "p1", RecordedAt: now},
	}}
	alerts := &stubAlertRepo{alerts: []*entities.ClinicalAlert{
		{ID: "al1", PatientID: "p1", IsActive: true},
		{ID: "al2", PatientID: "p1", IsActive: true},
	}}

	loader := newTestLoader(patients, assessments, conditions, vitals, alerts, nil, nil)
	require.NoError(t, loader.Load(context.Background()))

	waitFor(t, time.Second, func() bool { return loader.State().Loading.Idle() })

	snapshot := loader.State()
	require.Len(t, snapshot.Patients, 2)

	p1 := snapshot.Patients[0]
	// The consultation-bearing record wins over the newer plain one.
	assert.Equal(t, consult.Score, p1.RiskScore)
	assert.Equal(t, consult.Level, p1.RiskLevel)
	assert.Equal(t, []string{"Hypertension", "Diabetes Type 2"}, p1.Conditions)
	assert.Equal(t, 2, p1.Alerts)
	require.NotNil(t, p1.Vitals)
	assert.Equal(t, "v2", p1.Vitals.ID)

	p2 := snapshot.Patients[1]
	assert.Equal(t, 0, p2.RiskScore)
	assert.Equal(t, entities.RiskLevelLow, p2.RiskLevel)
	assert.Empty(t, p2.Conditions)
	assert.Equal(t, 0, p2.Alerts)
}

func TestLoad_PlaceholderDefaultsWithoutHistory(t *testing.T) {
	patients := &stubPatientRepo{identities: []*entities.Patient{identity("p1", "Emily Rodriguez")}}
	loader := newTestLoader(patients, &stubAssessmentRepo{}, &stubConditionRepo{}, &stubVitalsRepo{}, &stubAlertRepo{}, nil, nil)

	require.NoError(t, loader.Load(context.Background()))
	waitFor(t, time.Second, func() bool { return loader.State().Loading.Idle() })

	snapshot := loader.State()
	require.Len(t, snapshot.Patients, 1)
	assert.Equal(t, 0, snapshot.Patients[0].RiskScore)
	assert.Equal(t, entities.RiskLevelLow, snapshot.Patients[0].RiskLevel)
	assert.Empty(t, snapshot.Patients[0].Conditions)
	assert.Nil(t, snapshot.Patients[0].Vitals)
}

func TestLoad_IdentityFailurePreservesPreviousList(t *testing.T) {
	patients := &stubPatientRepo{identities: []*entities.Patient{identity("p1", "Sarah Johnson")}}
	loader := newTestLoader(patients, &stubAssessmentRepo{}, &stubConditionRepo{}, &stubVitalsRepo{}, &stubAlertRepo{}, nil, nil)

	require.NoError(t, loader.Load(context.Background()))
	waitFor(t, time.Second, func() bool { return loader.State().Loading.Idle() })

	patients.setErr(errors.New("connection refused"))
	err := loader.Load(context.Background())
	require.Error(t, err)

	snapshot := loader.State()
	assert.Len(t, snapshot.Patients, 1, "previous list should survive a failed cycle")
	assert.NotEmpty(t, snapshot.Loading.Error)
	assert.True(t, snapshot.Loading.Idle())

	// A successful refetch clears the error.
	patients.setErr(nil)
	require.NoError(t, loader.Refetch(context.Background()))
	waitFor(t, time.Second, func() bool { return loader.State().Loading.Idle() })
	assert.Empty(t, loader.State().Loading.Error)
}

func TestLoad_HydrationFailureSetsError(t *testing.T) {
	patients := &stubPatientRepo{identities: []*entities.Patient{identity("p1", "Sarah Johnson")}}
	conditions := &stubConditionRepo{err: errors.New("relation missing")}
	loader := newTestLoader(patients, &stubAssessmentRepo{}, conditions, &stubVitalsRepo{}, &stubAlertRepo{}, nil, nil)

	err := loader.Load(context.Background())
	require.Error(t, err)

	snapshot := loader.State()
	assert.NotEmpty(t, snapshot.Loading.Error)
	// Phase 1's placeholder list was already published before hydration failed.
	assert.Len(t, snapshot.Patients, 1)
}

func TestLoad_EnrichmentUpdatesStalePatients(t *testing.T) {
	patients := &stubPatientRepo{identities: []*entities.Patient{identity("p1", "Sarah Johnson")}}
	analyzer := &fakeAnalyzer{}
	dispatcher := NewEnrichmentDispatcher(analyzer, 3, 0)
	bus := &recordingEventBus{}

	loader := newTestLoader(patients, &stubAssessmentRepo{}, &stubConditionRepo{}, &stubVitalsRepo{}, &stubAlertRepo{}, dispatcher, bus)
	require.NoError(t, loader.Load(context.Background()))

	waitFor(t, time.Second, func() bool { return loader.State().Loading.Idle() })

	snapshot := loader.State()
	require.Len(t, snapshot.Patients, 1)
	assert.Equal(t, 55, snapshot.Patients[0].RiskScore)
	assert.Equal(t, entities.RiskLevelMedium, snapshot.Patients[0].RiskLevel)
	require.NotEmpty(t, snapshot.Patients[0].RiskAssessments)
	assert.Equal(t, "assessment-p1", snapshot.Patients[0].RiskAssessments[0].ID)

	// The merge is observable on the patient-scoped channel too.
	scoped := bus.published("patients:p1")
	require.NotEmpty(t, scoped)
	assert.Equal(t, entities.PatientEventTypePatientUpdated, scoped[0].EventType)

	// The dashboard-wide channel carries the same update so list views and
	// cache invalidation see the merge without a patient subscription.
	var dashboardUpdates []*entities.PatientEvent
	for _, event := range bus.published("patients:updates") {
		if event.EventType == entities.PatientEventTypePatientUpdated {
			dashboardUpdates = append(dashboardUpdates, event)
		}
	}
	require.NotEmpty(t, dashboardUpdates)
	assert.Equal(t, "p1", dashboardUpdates[0].PatientID)
}

func TestLoad_EnrichmentSkipsFreshPatients(t *testing.T) {
	now := time.Now()
	patients := &stubPatientRepo{identities: []*entities.Patient{identity("p1", "Sarah Johnson")}}
	fresh := consultationAssessment(now.Add(-time.Hour))
	fresh.PatientID = "p1"
	assessments := &stubAssessmentRepo{assessments: []*entities.RiskAssessment{fresh}}

	analyzer := &fakeAnalyzer{}
	dispatcher := NewEnrichmentDispatcher(analyzer, 3, 0)

	loader := newTestLoader(patients, assessments, &stubConditionRepo{}, &stubVitalsRepo{}, &stubAlertRepo{}, dispatcher, nil)
	require.NoError(t, loader.Load(context.Background()))

	waitFor(t, time.Second, func() bool { return loader.State().Loading.Idle() })

	assert.Empty(t, analyzer.calls)
}

func TestLoad_PhaseEventsPublished(t *testing.T) {
	patients := &stubPatientRepo{identities: []*entities.Patient{identity("p1", "Sarah Johnson")}}
	bus := &recordingEventBus{}

	loader := newTestLoader(patients, &stubAssessmentRepo{}, &stubConditionRepo{}, &stubVitalsRepo{}, &stubAlertRepo{}, nil, bus)
	require.NoError(t, loader.Load(context.Background()))
	waitFor(t, time.Second, func() bool { return loader.State().Loading.Idle() })

	events := bus.published("patients:updates")
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, entities.PatientEventTypeSnapshot, events[0].EventType)
	assert.Equal(t, entities.PatientEventTypeSnapshot, events[1].EventType)
	assert.Equal(t, entities.PatientEventTypePhaseChanged, events[len(events)-1].EventType)
}

func TestState_ReturnsDeepCopies(t *testing.T) {
	patients := &stubPatientRepo{identities: []*entities.Patient{identity("p1", "Sarah Johnson")}}
	loader := newTestLoader(patients, &stubAssessmentRepo{}, &stubConditionRepo{}, &stubVitalsRepo{}, &stubAlertRepo{}, nil, nil)

	require.NoError(t, loader.Load(context.Background()))
	waitFor(t, time.Second, func() bool { return loader.State().Loading.Idle() })

	first := loader.State()
	first.Patients[0].Name = "mutated"

	second := loader.State()
	assert.Equal(t, "Sarah Johnson", second.Patients[0].Name)
}
