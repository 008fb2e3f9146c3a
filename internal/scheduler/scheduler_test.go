package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pricesync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigSource struct {
	configs []models.StoreConfig
	listErr error
}

func (f *fakeConfigSource) GetStoreConfig(ctx context.Context, id string) (*models.StoreConfig, error) {
	for i := range f.configs {
		if f.configs[i].ID == id {
			return &f.configs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeConfigSource) GetEnabledStoreConfigs(ctx context.Context) ([]models.StoreConfig, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var enabled []models.StoreConfig
	for _, cfg := range f.configs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	return enabled, nil
}

type fakeOutcomeSource struct {
	outcomes map[string]*models.SyncOutcome
	err      error
}

func (f *fakeOutcomeSource) GetLatestOutcome(ctx context.Context, storeID string) (*models.SyncOutcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.outcomes[storeID], nil
}

type fakeSyncer struct {
	mu      sync.Mutex
	calls   []string
	block   chan struct{}
	syncErr error
}

func (f *fakeSyncer) SyncStore(ctx context.Context, cfg models.StoreConfig) (*models.SyncOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cfg.ID)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return &models.SyncOutcome{StoreID: cfg.ID}, f.syncErr
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func enabledStore(id string, intervalMinutes int) models.StoreConfig {
	return models.StoreConfig{
		ID:                  id,
		Name:                id,
		Platform:            models.PlatformWooCommerce,
		SyncIntervalMinutes: intervalMinutes,
		Enabled:             true,
	}
}

func newScheduler(configs *fakeConfigSource, outcomes *fakeOutcomeSource, syncer *fakeSyncer) *SchedulerService {
	return NewSchedulerService(configs, outcomes, syncer, time.Minute)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestGuardAcquireIsExclusive(t *testing.T) {
	g := newRunGuard()

	assert.True(t, g.TryAcquire("store-1"))
	assert.False(t, g.TryAcquire("store-1"))
	assert.True(t, g.TryAcquire("store-2"))

	g.Release("store-1")
	assert.True(t, g.TryAcquire("store-1"))
}

func TestStoreWithNoPriorRunIsDue(t *testing.T) {
	s := newScheduler(&fakeConfigSource{}, &fakeOutcomeSource{}, &fakeSyncer{})

	due, err := s.isDue(context.Background(), enabledStore("store-1", 60))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestDueComputationUsesInterval(t *testing.T) {
	outcomes := &fakeOutcomeSource{outcomes: map[string]*models.SyncOutcome{
		"store-1": {StoreID: "store-1", StartedAt: time.Now().Add(-30 * time.Minute)},
	}}
	s := newScheduler(&fakeConfigSource{}, outcomes, &fakeSyncer{})

	due, err := s.isDue(context.Background(), enabledStore("store-1", 60))
	require.NoError(t, err)
	assert.False(t, due)

	due, err = s.isDue(context.Background(), enabledStore("store-1", 15))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestEvaluateLaunchesDueStores(t *testing.T) {
	configs := &fakeConfigSource{configs: []models.StoreConfig{
		enabledStore("store-1", 60),
		enabledStore("store-2", 60),
	}}
	syncer := &fakeSyncer{}
	s := newScheduler(configs, &fakeOutcomeSource{}, syncer)

	s.evaluateAll(context.Background())
	s.wg.Wait()

	assert.Equal(t, 2, syncer.callCount())
}

func TestEvaluateSkipsStoreWithActiveRun(t *testing.T) {
	configs := &fakeConfigSource{configs: []models.StoreConfig{enabledStore("store-1", 60)}}
	syncer := &fakeSyncer{block: make(chan struct{})}
	s := newScheduler(configs, &fakeOutcomeSource{}, syncer)

	s.evaluateAll(context.Background())
	waitFor(t, func() bool { return syncer.callCount() == 1 })

	// Second tick while the first run is still blocked.
	s.evaluateAll(context.Background())
	assert.Equal(t, 1, syncer.callCount())

	close(syncer.block)
	s.wg.Wait()
	assert.False(t, s.IsRunning("store-1"))
}

func TestGuardReleasedAfterFailedRun(t *testing.T) {
	configs := &fakeConfigSource{configs: []models.StoreConfig{enabledStore("store-1", 60)}}
	syncer := &fakeSyncer{syncErr: errors.New("feed down")}
	s := newScheduler(configs, &fakeOutcomeSource{}, syncer)

	s.evaluateAll(context.Background())
	s.wg.Wait()

	assert.False(t, s.IsRunning("store-1"))

	s.evaluateAll(context.Background())
	s.wg.Wait()
	assert.Equal(t, 2, syncer.callCount())
}

func TestOneStoreFailureDoesNotStopTick(t *testing.T) {
	configs := &fakeConfigSource{configs: []models.StoreConfig{
		enabledStore("store-1", 60),
		enabledStore("store-2", 60),
	}}
	outcomes := &fakeOutcomeSource{outcomes: map[string]*models.SyncOutcome{}}
	syncer := &fakeSyncer{}
	s := newScheduler(configs, outcomes, syncer)

	// Due lookup fails for store-1 only.
	failing := &fakeOutcomeSource{err: errors.New("db down")}
	s.outcomes = &selectiveOutcomeSource{failFor: "store-1", failing: failing, fallback: outcomes}

	s.evaluateAll(context.Background())
	s.wg.Wait()

	require.Equal(t, 1, syncer.callCount())
	assert.Equal(t, "store-2", syncer.calls[0])
}

type selectiveOutcomeSource struct {
	failFor  string
	failing  *fakeOutcomeSource
	fallback *fakeOutcomeSource
}

func (s *selectiveOutcomeSource) GetLatestOutcome(ctx context.Context, storeID string) (*models.SyncOutcome, error) {
	if storeID == s.failFor {
		return s.failing.GetLatestOutcome(ctx, storeID)
	}
	return s.fallback.GetLatestOutcome(ctx, storeID)
}

func TestTriggerNowLaunchesRun(t *testing.T) {
	configs := &fakeConfigSource{configs: []models.StoreConfig{enabledStore("store-1", 60)}}
	syncer := &fakeSyncer{}
	s := newScheduler(configs, &fakeOutcomeSource{}, syncer)

	require.NoError(t, s.TriggerNow(context.Background(), "store-1"))
	s.wg.Wait()
	assert.Equal(t, 1, syncer.callCount())
}

func TestTriggerNowRejectsUnknownStore(t *testing.T) {
	s := newScheduler(&fakeConfigSource{}, &fakeOutcomeSource{}, &fakeSyncer{})

	err := s.TriggerNow(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store")
}

func TestTriggerNowRejectsDisabledStore(t *testing.T) {
	cfg := enabledStore("store-1", 60)
	cfg.Enabled = false
	s := newScheduler(&fakeConfigSource{configs: []models.StoreConfig{cfg}}, &fakeOutcomeSource{}, &fakeSyncer{})

	err := s.TriggerNow(context.Background(), "store-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestTriggerNowRejectsActiveRun(t *testing.T) {
	configs := &fakeConfigSource{configs: []models.StoreConfig{enabledStore("store-1", 60)}}
	syncer := &fakeSyncer{block: make(chan struct{})}
	s := newScheduler(configs, &fakeOutcomeSource{}, syncer)

	require.NoError(t, s.TriggerNow(context.Background(), "store-1"))
	waitFor(t, func() bool { return s.IsRunning("store-1") })

	err := s.TriggerNow(context.Background(), "store-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	close(syncer.block)
	s.wg.Wait()
}

type drainSyncer struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (d *drainSyncer) SyncStore(ctx context.Context, cfg models.StoreConfig) (*models.SyncOutcome, error) {
	close(d.started)
	<-d.release
	d.ctxErr = ctx.Err()
	return &models.SyncOutcome{StoreID: cfg.ID}, nil
}

func TestShutdownDrainsInFlightRuns(t *testing.T) {
	configs := &fakeConfigSource{configs: []models.StoreConfig{enabledStore("store-1", 60)}}
	syncer := &drainSyncer{started: make(chan struct{}), release: make(chan struct{})}
	s := NewSchedulerService(configs, &fakeOutcomeSource{}, syncer, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	<-syncer.started
	cancel()

	select {
	case <-done:
		t.Fatal("scheduler returned before the in-flight run finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(syncer.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after the run drained")
	}
	assert.NoError(t, syncer.ctxErr, "an in-flight run must never observe shutdown cancellation")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	configs := &fakeConfigSource{configs: []models.StoreConfig{enabledStore("store-1", 60)}}
	syncer := &fakeSyncer{}
	s := NewSchedulerService(configs, &fakeOutcomeSource{}, syncer, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return syncer.callCount() >= 1 })
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
