package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/soccerserver/models"
	"github.com/wfunc/soccerserver/monitor"
	"github.com/wfunc/soccerserver/persistence"
	"github.com/wfunc/soccerserver/room"
)

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []*models.GameStateSnapshot
	panics    int
}

func (p *recordingPublisher) Publish(roomID string, snap *models.GameStateSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panics > 0 {
		p.panics--
		panic("publisher exploded")
	}
	p.snapshots = append(p.snapshots, snap)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

func (p *recordingPublisher) hasEvent(t models.EventType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.snapshots {
		if s.HasEvent(t) {
			return true
		}
	}
	return false
}

type recordingRecorder struct {
	mu      sync.Mutex
	results []*models.MatchResult
}

func (r *recordingRecorder) RecordMatch(_ context.Context, res *models.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *recordingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func testOptions() Options {
	return Options{
		TickInterval:   5 * time.Millisecond,
		BroadcastEvery: 1,
		IdleTimeout:    time.Minute,
	}
}

func newTestScheduler(t *testing.T, settings room.Settings, opts Options) (*Scheduler, *room.Registry, *recordingPublisher, *monitor.Metrics) {
	t.Helper()
	registry := room.NewRegistry(settings)
	pub := &recordingPublisher{}
	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	s := New(registry, pub, metrics, opts)
	t.Cleanup(s.Stop)
	return s, registry, pub, metrics
}

func TestScheduler_TicksAndPublishes(t *testing.T) {
	s, registry, pub, metrics := newTestScheduler(t, room.DefaultSettings(), testOptions())

	_, _, err := registry.Join("room-1", "a")
	require.NoError(t, err)
	_, _, err = registry.Join("room-1", "b")
	require.NoError(t, err)

	s.Start(context.Background())
	assert.True(t, s.Running())
	assert.Equal(t, 1, s.Loops())

	require.Eventually(t, func() bool { return pub.count() >= 5 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, pub.hasEvent(models.EventMatchStart))
	assert.Greater(t, testutil.ToFloat64(metrics.Ticks), 0.0)

	// rooms created after Start get their own loop
	registry.FindOrCreate("room-2")
	assert.Equal(t, 2, s.Loops())
}

func TestScheduler_RemovesIdleRooms(t *testing.T) {
	opts := testOptions()
	opts.IdleTimeout = 30 * time.Millisecond
	s, registry, _, _ := newTestScheduler(t, room.DefaultSettings(), opts)
	s.Start(context.Background())

	registry.FindOrCreate("empty")
	_, _, err := registry.Join("busy", "a")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := registry.Get("empty")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	_, ok := registry.Get("busy")
	assert.True(t, ok, "rooms with players are never removed")
	assert.Equal(t, 1, s.Loops())
}

// rejoinObserver re-creates a room from inside RoomRemoved, before the scheduler hears about the removal.
type rejoinObserver struct {
	registry *room.Registry
	once     sync.Once
}

func (o *rejoinObserver) RoomCreated(*room.Room) {}

func (o *rejoinObserver) RoomRemoved(r *room.Room) {
	o.once.Do(func() {
		o.registry.Join(r.ID, "a")
		o.registry.Join(r.ID, "b")
	})
}

func TestScheduler_RoomRecreatedDuringRemoval(t *testing.T) {
	opts := testOptions()
	opts.IdleTimeout = 20 * time.Millisecond
	s, registry, _, _ := newTestScheduler(t, room.DefaultSettings(), opts)
	registry.AddObserver(&rejoinObserver{registry: registry})

	old := registry.FindOrCreate("lobby")
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		r, ok := registry.Get("lobby")
		return ok && r != old && r.Phase() == models.PhasePlaying
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Loops())
}

func TestScheduler_MatchEndIsRecorded(t *testing.T) {
	settings := room.DefaultSettings()
	settings.MatchDuration = 100 * time.Millisecond
	s, registry, pub, metrics := newTestScheduler(t, settings, testOptions())

	store := persistence.NewMemoryStore()
	recorder := &recordingRecorder{}
	s.SetMirror(store)
	s.SetRecorder(recorder)

	r, _, err := registry.Join("room-1", "a")
	require.NoError(t, err)
	require.True(t, r.BindUser("a", 7))
	_, _, err = registry.Join("room-1", "b")
	require.NoError(t, err)

	s.Start(context.Background())

	require.Eventually(t, func() bool { return recorder.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, pub.hasEvent(models.EventMatchEnd))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MatchesPlayed))

	results := store.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "room-1", results[0].RoomID)
	assert.Len(t, results[0].Players, 2)

	rec, ok := store.Room("room-1")
	require.True(t, ok)
	assert.Equal(t, models.PhaseEnded, rec.Phase)
}

func TestScheduler_PanicIsConfinedToTick(t *testing.T) {
	s, registry, pub, _ := newTestScheduler(t, room.DefaultSettings(), testOptions())
	pub.panics = 3

	_, _, err := registry.Join("room-1", "a")
	require.NoError(t, err)
	s.Start(context.Background())

	require.Eventually(t, func() bool { return pub.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Loops())
}

func TestScheduler_BroadcastEvery(t *testing.T) {
	opts := testOptions()
	opts.BroadcastEvery = 3
	s, registry, pub, _ := newTestScheduler(t, room.DefaultSettings(), opts)

	r, _, err := registry.Join("room-1", "a")
	require.NoError(t, err)
	_, _, err = registry.Join("room-1", "b")
	require.NoError(t, err)
	// drain the join and kickoff events
	r.Advance(1.0 / 60)

	for n := uint64(1); n <= 6; n++ {
		s.tick(r, 1.0/60, n)
	}
	assert.Equal(t, 2, pub.count())
}

func TestScheduler_PublishNow(t *testing.T) {
	s, registry, pub, _ := newTestScheduler(t, room.DefaultSettings(), testOptions())
	r := registry.FindOrCreate("room-1")

	s.Publish(r)
	require.Equal(t, 1, pub.count())
	assert.Equal(t, "room-1", pub.snapshots[0].RoomID)
}

func TestScheduler_Stop(t *testing.T) {
	s, registry, _, _ := newTestScheduler(t, room.DefaultSettings(), testOptions())
	registry.FindOrCreate("room-1")
	s.Start(context.Background())
	require.Equal(t, 1, s.Loops())

	s.Stop()
	assert.False(t, s.Running())
	assert.Equal(t, 0, s.Loops())

	registry.FindOrCreate("room-2")
	assert.Equal(t, 0, s.Loops())
	s.Stop()
}

func TestScheduler_MirrorSweepAndGauges(t *testing.T) {
	opts := testOptions()
	opts.MirrorInterval = 20 * time.Millisecond
	s, registry, _, metrics := newTestScheduler(t, room.DefaultSettings(), opts)
	store := persistence.NewMemoryStore()
	s.SetMirror(store)

	_, _, err := registry.Join("room-1", "a")
	require.NoError(t, err)
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		_, ok := store.Player("a")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.OnlinePlayers) == 1
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveRooms))
}
