package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
	"github.com/clinsight/clinical-dashboard/internal/domain/providers"
	"github.com/clinsight/clinical-dashboard/internal/domain/repositories"
)

// CachedPatientAdapter wraps PatientAdapter with caching
type CachedPatientAdapter struct {
	adapter repositories.PatientRepository
	cache   providers.CacheProvider
}

// NewCachedPatientAdapter creates a new cached patient adapter
func NewCachedPatientAdapter(adapter repositories.PatientRepository, cache providers.CacheProvider) repositories.PatientRepository {
	return &CachedPatientAdapter{
		adapter: adapter,
		cache:   cache,
	}
}

// Cache TTLs (in seconds)
const (
	patientByIDTTL       = 300 // 5 minutes for single patient
	patientIdentitiesTTL = 60  // identity list renews once per minute
)

func patientCacheKey(id string) string {
	return fmt.Sprintf("patient:%s", id)
}

const patientIdentitiesCacheKey = "patients:identities"

// ListIdentities retrieves identity fields with caching. The TTL is short:
// the identity list is the first thing every load cycle reads.
func (a *CachedPatientAdapter) ListIdentities(ctx context.Context) ([]*entities.Patient, error) {
	if cached, err := a.cache.Get(ctx, patientIdentitiesCacheKey); err == nil {
		var patients []*entities.Patient
		if err := json.Unmarshal(cached, &patients); err == nil {
			return patients, nil
		}
	}

	patients, err := a.adapter.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}

	go func() {
		bgCtx := context.Background()
		if data, err := json.Marshal(patients); err == nil {
			if err := a.cache.Set(bgCtx, patientIdentitiesCacheKey, data, patientIdentitiesTTL); err != nil {
				log.Printf("Failed to cache patient identities: %v", err)
			}
		}
	}()

	return patients, nil
}

// GetByID retrieves a patient by ID with caching
func (a *CachedPatientAdapter) GetByID(ctx context.Context, id string) (*entities.Patient, error) {
	cacheKey := patientCacheKey(id)

	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var patient entities.Patient
		if err := json.Unmarshal(cached, &patient); err == nil {
			return &patient, nil
		}
		log.Printf("Failed to unmarshal cached patient %s", id)
	}

	patient, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	go func() {
		bgCtx := context.Background()
		if data, err := json.Marshal(patient); err == nil {
			if err := a.cache.Set(bgCtx, cacheKey, data, patientByIDTTL); err != nil {
				log.Printf("Failed to cache patient %s: %v", id, err)
			}
		}
	}()

	return patient, nil
}

// Upsert writes through to the database and invalidates stale cache entries
func (a *CachedPatientAdapter) Upsert(ctx context.Context, patient *entities.Patient) error {
	if err := a.adapter.Upsert(ctx, patient); err != nil {
		return err
	}

	if err := a.cache.Delete(ctx, patientCacheKey(patient.ID)); err != nil {
		log.Printf("Failed to invalidate patient cache %s: %v", patient.ID, err)
	}
	if err := a.cache.Delete(ctx, patientIdentitiesCacheKey); err != nil {
		log.Printf("Failed to invalidate identity list cache: %v", err)
	}

	return nil
}

// List passes through without caching; filtered lists are not on the hot path
func (a *CachedPatientAdapter) List(ctx context.Context, filter repositories.PatientFilter) ([]*entities.Patient, error) {
	return a.adapter.List(ctx, filter)
}
