package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/providers"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
)

// PatientSnapshot is the read model handed to consumers: the patient list as
// of the latest published phase boundary, plus the loading flags.
type PatientSnapshot struct {
	Patients []*entities.Patient  `json:"patients"`
	Loading  entities.LoadingState `json:"loading"`
}

// PatientLoaderService orchestrates the three-phase progressive load:
// a narrow identity fetch for fast first paint, concurrent detail hydration
// over the id set, and a fire-and-forget enrichment dispatch. Consumers read
// snapshots via State at any time; each phase boundary publishes an event.
type PatientLoaderService struct {
	patientRepo    repositories.PatientRepository
	assessmentRepo repositories.RiskAssessmentRepository
	conditionRepo  repositories.ConditionRepository
	vitalsRepo     repositories.VitalsRepository
	alertRepo      repositories.AlertRepository
	dispatcher     *EnrichmentDispatcher
	eventBus       providers.EventBus

	mu       sync.RWMutex
	patients []*entities.Patient
	loading  entities.LoadingState

	// cycle is bumped by each Load; continuations from a superseded cycle
	// check it before touching shared state.
	cycle uint64
}

// NewPatientLoaderService creates a loader. The event bus may be nil, in
// which case phase boundaries are observable only through State.
func NewPatientLoaderService(
	patientRepo repositories.PatientRepository,
	assessmentRepo repositories.RiskAssessmentRepository,
	conditionRepo repositories.ConditionRepository,
	vitalsRepo repositories.VitalsRepository,
	alertRepo repositories.AlertRepository,
	dispatcher *EnrichmentDispatcher,
	eventBus providers.EventBus,
) *PatientLoaderService {
	return &PatientLoaderService{
		patientRepo:    patientRepo,
		assessmentRepo: assessmentRepo,
		conditionRepo:  conditionRepo,
		vitalsRepo:     vitalsRepo,
		alertRepo:      alertRepo,
		dispatcher:     dispatcher,
		eventBus:       eventBus,
	}
}

// State returns the current snapshot. Patients are deep-copied so callers
// can hold them across later phase mutations.
func (s *PatientLoaderService) State() PatientSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	patients := make([]*entities.Patient, len(s.patients))
	for i, p := range s.patients {
		patients[i] = p.Clone()
	}
	return PatientSnapshot{Patients: patients, Loading: s.loading}
}

// Load begins (or restarts) the load cycle. Phases 1 and 2 run before Load
// returns; phase 3 is dispatched in the background and flips the enrichment
// flag when its last chunk settles. A Load issued while a previous cycle's
// phase 3 is draining supersedes it: the old cycle's completions are dropped.
func (s *PatientLoaderService) Load(ctx context.Context) error {
	s.mu.Lock()
	s.cycle++
	cycle := s.cycle
	s.loading = entities.LoadingState{Basic: true}
	s.mu.Unlock()

	// Phase 1: narrow identity fetch.
	placeholders, err := s.patientRepo.ListIdentities(ctx)
	if err != nil {
		s.failCycle(ctx, cycle, fmt.Errorf("failed to fetch patients: %w", err))
		return err
	}

	if !s.publishPhase(ctx, cycle, placeholders, entities.LoadingState{Details: true}) {
		return nil
	}

	// Phase 2: hydrate details over the id set.
	hydrated, err := s.hydrate(ctx, placeholders)
	if err != nil {
		s.failCycle(ctx, cycle, fmt.Errorf("failed to hydrate patient details: %w", err))
		return err
	}

	if !s.publishPhase(ctx, cycle, hydrated, entities.LoadingState{Enrichment: true}) {
		return nil
	}

	// Phase 3: background enrichment, fire-and-forget.
	go s.runEnrichment(ctx, cycle, hydrated)

	return nil
}

// Refetch restarts the cycle from phase 1. A prior error is cleared by the
// fresh cycle's initial state.
func (s *PatientLoaderService) Refetch(ctx context.Context) error {
	return s.Load(ctx)
}

func (s *PatientLoaderService) hydrate(ctx context.Context, placeholders []*entities.Patient) ([]*entities.Patient, error) {
	ids := make([]string, len(placeholders))
	for i, p := range placeholders {
		ids[i] = p.ID
	}

	if len(ids) == 0 {
		return []*entities.Patient{}, nil
	}

	var (
		wg          sync.WaitGroup
		assessments []*entities.RiskAssessment
		conditions  []*entities.Condition
		vitals      []*entities.VitalSigns
		alerts      []*entities.ClinicalAlert
		errs        [4]error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		assessments, errs[0] = s.assessmentRepo.ListByPatientIDs(ctx, ids)
	}()
	go func() {
		defer wg.Done()
		conditions, errs[1] = s.conditionRepo.ListByPatientIDs(ctx, ids)
	}()
	go func() {
		defer wg.Done()
		vitals, errs[2] = s.vitalsRepo.ListByPatientIDs(ctx, ids)
	}()
	go func() {
		defer wg.Done()
		alerts, errs[3] = s.alertRepo.ListActiveByPatientIDs(ctx, ids)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	assessmentsByPatient := map[string][]*entities.RiskAssessment{}
	for _, a := range assessments {
		assessmentsByPatient[a.PatientID] = append(assessmentsByPatient[a.PatientID], a)
	}
	conditionsByPatient := map[string][]*entities.Condition{}
	for _, c := range conditions {
		conditionsByPatient[c.PatientID] = append(conditionsByPatient[c.PatientID], c)
	}
	vitalsByPatient := map[string][]*entities.VitalSigns{}
	for _, v := range vitals {
		vitalsByPatient[v.PatientID] = append(vitalsByPatient[v.PatientID], v)
	}
	alertCounts := map[string]int{}
	for _, a := range alerts {
		if a.IsActive {
			alertCounts[a.PatientID]++
		}
	}

	hydrated := make([]*entities.Patient, len(placeholders))
	for i, placeholder := range placeholders {
		patient := placeholder.Clone()
		mergeDetails(patient,
			assessmentsByPatient[patient.ID],
			conditionsByPatient[patient.ID],
			vitalsByPatient[patient.ID],
			alertCounts[patient.ID],
		)
		hydrated[i] = patient
	}

	return hydrated, nil
}

// mergeDetails folds the four detail collections into one patient. The
// displayed score/level come from the current assessment under the
// "prefer consultation-bearing, else newest" rule; patients with no
// assessment history keep their phase-1 defaults.
func mergeDetails(
	patient *entities.Patient,
	assessments []*entities.RiskAssessment,
	conditions []*entities.Condition,
	vitals []*entities.VitalSigns,
	activeAlerts int,
) {
	sort.SliceStable(assessments, func(i, j int) bool {
		return assessments[i].AssessedAt.After(assessments[j].AssessedAt)
	})
	patient.RiskAssessments = assessments

	if current := patient.CurrentAssessment(); current != nil {
		patient.RiskScore = current.Score
		patient.RiskLevel = current.Level
		if patient.RiskLevel == "" {
			patient.RiskLevel = entities.RiskLevelForScore(current.Score)
		}
		if current.ChartQualityScore != nil {
			patient.ChartQualityScore = current.ChartQualityScore
		}
		if len(current.ChartReviewDomains) > 0 {
			patient.ChartReviewDomains = current.ChartReviewDomains
		}
	}

	names := make([]string, 0, len(conditions))
	for _, c := range conditions {
		names = append(names, c.Name)
	}
	patient.Conditions = names

	patient.Alerts = activeAlerts

	if len(vitals) > 0 {
		sort.SliceStable(vitals, func(i, j int) bool {
			return vitals[i].RecordedAt.After(vitals[j].RecordedAt)
		})
		patient.Vitals = vitals[0]
	}
}

func (s *PatientLoaderService) runEnrichment(ctx context.Context, cycle uint64, patients []*entities.Patient) {
	if s.dispatcher == nil {
		s.finishEnrichment(ctx, cycle)
		return
	}

	s.dispatcher.Dispatch(ctx, patients, func(patientID string, assessment *entities.RiskAssessment) {
		s.applyAssessment(ctx, cycle, patientID, assessment)
	})

	s.finishEnrichment(ctx, cycle)
}

// applyAssessment merges a background enrichment result into the shared list
// for immediate reflection, then publishes a patient-scoped event. Results
// from a superseded cycle are dropped.
func (s *PatientLoaderService) applyAssessment(ctx context.Context, cycle uint64, patientID string, assessment *entities.RiskAssessment) {
	if assessment == nil {
		return
	}

	s.mu.Lock()
	if cycle != s.cycle {
		s.mu.Unlock()
		return
	}

	var updated *entities.Patient
	for _, p := range s.patients {
		if p.ID != patientID {
			continue
		}
		p.RiskScore = assessment.Score
		p.RiskLevel = assessment.Level
		if p.RiskLevel == "" {
			p.RiskLevel = entities.RiskLevelForScore(assessment.Score)
		}
		p.RiskAssessments = append([]*entities.RiskAssessment{assessment}, p.RiskAssessments...)
		updated = p.Clone()
		break
	}
	s.mu.Unlock()

	if updated != nil {
		event := entities.NewPatientEvent(entities.PatientEventTypePatientUpdated)
		event.PatientID = patientID
		event.Patient = updated
		// Both the patient-scoped stream and the dashboard-wide channel
		// need the merge: detail views follow the former, while the
		// dashboard list and cache invalidation follow the latter.
		s.publishEvent(ctx, providers.GetPatientChannel(patientID), event)
		s.publishEvent(ctx, providers.EventChannelPatientUpdates, event)
	}
}

func (s *PatientLoaderService) finishEnrichment(ctx context.Context, cycle uint64) {
	s.mu.Lock()
	if cycle != s.cycle {
		s.mu.Unlock()
		return
	}
	s.loading.Enrichment = false
	loading := s.loading
	s.mu.Unlock()

	event := entities.NewPatientEvent(entities.PatientEventTypePhaseChanged)
	event.Loading = &loading
	s.publishEvent(ctx, providers.EventChannelPatientUpdates, event)
}

// publishPhase installs the list and next-phase flags, returning false when
// the cycle has been superseded by a newer Load.
func (s *PatientLoaderService) publishPhase(ctx context.Context, cycle uint64, patients []*entities.Patient, next entities.LoadingState) bool {
	s.mu.Lock()
	if cycle != s.cycle {
		s.mu.Unlock()
		return false
	}
	s.patients = patients
	s.loading = next
	s.mu.Unlock()

	snapshot := s.State()
	event := entities.NewPatientEvent(entities.PatientEventTypeSnapshot)
	event.Patients = snapshot.Patients
	event.Loading = &snapshot.Loading
	s.publishEvent(ctx, providers.EventChannelPatientUpdates, event)

	return true
}

// failCycle records the error and clears all phase flags. The previously
// loaded list is preserved so a consumer degrades instead of blanking.
func (s *PatientLoaderService) failCycle(ctx context.Context, cycle uint64, err error) {
	s.mu.Lock()
	if cycle != s.cycle {
		s.mu.Unlock()
		return
	}
	s.loading = entities.LoadingState{Error: err.Error()}
	loading := s.loading
	s.mu.Unlock()

	log.Printf("Patient load cycle failed: %v", err)

	event := entities.NewPatientEvent(entities.PatientEventTypePhaseChanged)
	event.Loading = &loading
	s.publishEvent(ctx, providers.EventChannelPatientUpdates, event)
}

func (s *PatientLoaderService) publishEvent(ctx context.Context, channel string, event *entities.PatientEvent) {
	if s.eventBus == nil || event == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, channel, event); err != nil {
		log.Printf("Warning: Failed to publish patient event on %s: %v", channel, err)
	}
}
