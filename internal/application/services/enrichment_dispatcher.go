package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/providers"
)

const (
	// DefaultEnrichmentChunkSize caps simultaneous outstanding analysis calls.
	DefaultEnrichmentChunkSize = 3

	// DefaultStalenessWindow is how old a consultation-bearing assessment may
	// be before the patient is re-analyzed.
	DefaultStalenessWindow = 24 * time.Hour
)

// EnrichmentDispatcher fans out background analysis calls over a hydrated
// patient set with a fixed concurrency ceiling. Chunks run strictly in
// sequence; calls within a chunk run concurrently. A failed call is logged
// and skipped so the rest of the batch still runs.
type EnrichmentDispatcher struct {
	analyzer  providers.PatientAnalyzer
	chunkSize int
	staleness time.Duration
	now       func() time.Time
}

// NewEnrichmentDispatcher creates a dispatcher with the given chunk size and
// staleness window. Non-positive values fall back to the defaults.
func NewEnrichmentDispatcher(analyzer providers.PatientAnalyzer, chunkSize int, staleness time.Duration) *EnrichmentDispatcher {
	if chunkSize <= 0 {
		chunkSize = DefaultEnrichmentChunkSize
	}
	if staleness <= 0 {
		staleness = DefaultStalenessWindow
	}
	return &EnrichmentDispatcher{
		analyzer:  analyzer,
		chunkSize: chunkSize,
		staleness: staleness,
		now:       time.Now,
	}
}

// NeedsEnrichment reports whether a patient has no consultation-bearing
// assessment, or its newest one is older than the staleness window.
func (d *EnrichmentDispatcher) NeedsEnrichment(patient *entities.Patient) bool {
	newest := newestConsultationAssessment(patient.RiskAssessments)
	return newest.Stale(d.now(), d.staleness)
}

// SelectStale filters the snapshot down to the patients needing enrichment.
// The predicate is evaluated once, here, not re-evaluated mid-batch.
func (d *EnrichmentDispatcher) SelectStale(patients []*entities.Patient) []*entities.Patient {
	stale := []*entities.Patient{}
	for _, p := range patients {
		if d.NeedsEnrichment(p) {
			stale = append(stale, p)
		}
	}
	return stale
}

// Dispatch runs the batch to completion. For each successful call the apply
// callback receives the fresh assessment; the callback owns any shared-state
// mutation (and any cycle-token check). Dispatch never returns an error:
// per-patient failures are logged and skipped.
func (d *EnrichmentDispatcher) Dispatch(ctx context.Context, patients []*entities.Patient, apply func(patientID string, assessment *entities.RiskAssessment)) {
	stale := d.SelectStale(patients)
	if len(stale) == 0 {
		return
	}

	log.Printf("Dispatching enrichment for %d of %d patients (chunk size %d)", len(stale), len(patients), d.chunkSize)

	for start := 0; start < len(stale); start += d.chunkSize {
		end := start + d.chunkSize
		if end > len(stale) {
			end = len(stale)
		}

		var wg sync.WaitGroup
		for _, patient := range stale[start:end] {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				assessment, err := d.analyzer.Analyze(ctx, id)
				if err != nil {
					log.Printf("Enrichment failed for patient %s: %v", id, err)
					return
				}
				if apply != nil {
					apply(id, assessment)
				}
			}(patient.ID)
		}
		wg.Wait()
	}
}

// newestConsultationAssessment returns the most recent consultation-bearing
// record, or nil when the patient has none. The input is assumed newest-first
// but is scanned fully so unsorted input still yields the right record.
func newestConsultationAssessment(assessments []*entities.RiskAssessment) *entities.RiskAssessment {
	var newest *entities.RiskAssessment
	for _, a := range assessments {
		if a == nil || a.Consultation == nil {
			continue
		}
		if newest == nil || a.AssessedAt.After(newest.AssessedAt) {
			newest = a
		}
	}
	return newest
}
