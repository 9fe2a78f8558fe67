package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinsight/clinical-dashboard/internal/application/services"
	"github.com/clinsight/clinical-dashboard/internal/domain/entities"
)

type mockCacheProvider struct {
	mu      sync.RWMutex
	data    map[string][]byte
	deleted []string
}

func newMockCacheProvider() *mockCacheProvider {
	return &mockCacheProvider{data: make(map[string][]byte)}
}

func (m *mockCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key], nil
}

func (m *mockCacheProvider) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCacheProvider) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockCacheProvider) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *mockCacheProvider) deletedKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}

type channelEventBus struct {
	mu       sync.Mutex
	channels map[string]chan *entities.PatientEvent
}

func newChannelEventBus() *channelEventBus {
	return &channelEventBus{channels: make(map[string]chan *entities.PatientEvent)}
}

func (b *channelEventBus) Publish(ctx context.Context, channel string, event *entities.PatientEvent) error {
	b.mu.Lock()
	ch, ok := b.channels[channel]
	b.mu.Unlock()
	if ok {
		ch <- event
	}
	return nil
}

func (b *channelEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.PatientEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *entities.PatientEvent, 16)
	b.channels[channel] = ch
	return ch, nil
}

func (b *channelEventBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (b *channelEventBus) Close() error { return nil }

func containsKey(keys []string, want string) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}

func TestCacheInvalidation_PatientUpdatedDropsPatientKeys(t *testing.T) {
	cache := newMockCacheProvider()
	bus := newChannelEventBus()

	svc := services.NewCacheInvalidationService(cache, bus)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	event := entities.NewPatientEvent(entities.PatientEventTypePatientUpdated)
	event.PatientID = "patient-1"
	require.NoError(t, bus.Publish(context.Background(), "patients:updates", event))

	assert.Eventually(t, func() bool {
		keys := cache.deletedKeys()
		return containsKey(keys, "patient:patient-1") && containsKey(keys, "patients:identities")
	}, time.Second, 10*time.Millisecond)
}

func TestCacheInvalidation_SnapshotDropsIdentityList(t *testing.T) {
	cache := newMockCacheProvider()
	bus := newChannelEventBus()

	svc := services.NewCacheInvalidationService(cache, bus)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.NoError(t, bus.Publish(context.Background(), "patients:updates", entities.NewPatientEvent(entities.PatientEventTypeSnapshot)))

	assert.Eventually(t, func() bool {
		return containsKey(cache.deletedKeys(), "patients:identities")
	}, time.Second, 10*time.Millisecond)

	assert.False(t, containsKey(cache.deletedKeys(), "patient:"))
}

func TestCacheInvalidation_UpdateWithoutPatientIDIsIgnored(t *testing.T) {
	cache := newMockCacheProvider()
	bus := newChannelEventBus()

	svc := services.NewCacheInvalidationService(cache, bus)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.NoError(t, bus.Publish(context.Background(), "patients:updates", entities.NewPatientEvent(entities.PatientEventTypePatientUpdated)))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, cache.deletedKeys())
}

func TestInvalidatePatient_DropsRecordAndIdentityList(t *testing.T) {
	cache := newMockCacheProvider()
	require.NoError(t, cache.Set(context.Background(), "patient:p9", []byte("{}"), 60))

	svc := services.NewCacheInvalidationService(cache, newChannelEventBus())
	require.NoError(t, svc.InvalidatePatient(context.Background(), "p9"))

	keys := cache.deletedKeys()
	assert.True(t, containsKey(keys, "patient:p9"))
	assert.True(t, containsKey(keys, "patients:identities"))
}
