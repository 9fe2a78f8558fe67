package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/providers"
)

// Cache keys shared with the cached patient adapter.
const (
	patientIdentitiesCacheKey = "patients:identities"
	patientCacheKeyFormat     = "patient:%s"
)

// CacheInvalidationService drops stale patient cache entries based on events
type CacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for events and invalidating cache
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelPatientUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to patient updates: %w", err)
	}

	go s.processEvents(eventChan)
	log.Println("Cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	log.Println("Cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.PatientEvent) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-eventChan:
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

// handleEvent handles a single patient event.
//
// Strategy: only the data-layer keys are invalidated here. HTTP response
// caches have short TTLs and expire naturally; dropping them on every load
// cycle would cause a stampede. Connected clients get real-time updates via
// SSE regardless.
func (s *CacheInvalidationService) handleEvent(event *entities.PatientEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch event.EventType {
	case entities.PatientEventTypeSnapshot, entities.PatientEventTypePhaseChanged:
		// A load cycle replaced the read model, so the cached identity
		// list no longer reflects the database.
		if err := s.cache.Delete(ctx, patientIdentitiesCacheKey); err != nil {
			log.Printf("Warning: Failed to invalidate identity list cache: %v", err)
		}
	case entities.PatientEventTypePatientUpdated, entities.PatientEventTypeAssessmentSaved:
		if event.PatientID == "" {
			return
		}
		if err := s.InvalidatePatient(ctx, event.PatientID); err != nil {
			log.Printf("Warning: Failed to invalidate cache for patient %s: %v", event.PatientID, err)
		}
	}
}

// InvalidatePatient drops the cached record for a single patient along with
// the identity list that embeds its summary fields.
func (s *CacheInvalidationService) InvalidatePatient(ctx context.Context, patientID string) error {
	if err := s.cache.Delete(ctx, fmt.Sprintf(patientCacheKeyFormat, patientID)); err != nil {
		return fmt.Errorf("failed to invalidate patient cache: %w", err)
	}
	if err := s.cache.Delete(ctx, patientIdentitiesCacheKey); err != nil {
		return fmt.Errorf("failed to invalidate identity list cache: %w", err)
	}
	return nil
}
