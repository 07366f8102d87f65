package announce

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-signage/internal/fleet"
	"fleet-signage/internal/geo"
)

const (
	isbtLat = 30.3153
	isbtLng = 78.0322
)

type fakeStore struct {
	waypoints map[string][]fleet.Waypoint
	buses     map[string]*fleet.Bus
	err       error
}

func (f *fakeStore) ActiveWaypoints(_ context.Context, busKey string) ([]fleet.Waypoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.waypoints[busKey], nil
}

func (f *fakeStore) Bus(_ context.Context, busKey string) (*fleet.Bus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.buses[busKey], nil
}

// flakyStore fails reads, and optionally writes, on demand.
type flakyStore struct {
	*MemoryStore
	failGet bool
	failPut bool
}

func (f *flakyStore) Get(ctx context.Context, busID string) (fleet.AnnouncementState, bool, error) {
	if f.failGet {
		return fleet.AnnouncementState{}, false, errors.New("redis: connection refused")
	}
	return f.MemoryStore.Get(ctx, busID)
}

func (f *flakyStore) Put(ctx context.Context, busID string, st fleet.AnnouncementState) error {
	if f.failPut {
		return errors.New("redis: connection refused")
	}
	return f.MemoryStore.Put(ctx, busID, st)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []fleet.LandmarkEvent
	err    error
}

func (p *recordingPublisher) PublishLandmark(_ context.Context, ev fleet.LandmarkEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func ptr(v float64) *float64 { return &v }

func isbtStore() *fakeStore {
	return &fakeStore{
		waypoints: map[string][]fleet.Waypoint{
			"UK07-1234": {{ID: "1", Name: "ISBT", Lat: isbtLat, Lng: isbtLng, RadiusMeters: 150, OrderIndex: 1, Active: true}},
		},
	}
}

func newTestService(t *testing.T, store WaypointStore) (*Service, *recordingPublisher, *clock) {
	t.Helper()
	pub := &recordingPublisher{}
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(store, NewMemoryStore(), pub, nil, nil, Options{})
	svc.now = clk.now
	return svc, pub, clk
}

func sample(bus string, lat, lng float64, force bool) fleet.GPSSample {
	return fleet.GPSSample{BusID: bus, Lat: ptr(lat), Lng: ptr(lng), Force: force}
}

func TestClassifier(t *testing.T) {
	wps := []fleet.Waypoint{{Name: "ISBT", Lat: isbtLat, Lng: isbtLng, RadiusMeters: 150}}
	c := Classifier{}

	t.Run("same coordinates is reached", func(t *testing.T) {
		m, ok := c.Classify(isbtLat, isbtLng, wps)
		require.True(t, ok)
		assert.Equal(t, fleet.StageReached, m.Stage)
		assert.Equal(t, 0.0, m.DistanceMeters)
	})

	t.Run("300m away is approaching", func(t *testing.T) {
		m, ok := c.Classify(geo.OffsetNorth(isbtLat, 300), isbtLng, wps)
		require.True(t, ok)
		assert.Equal(t, fleet.StageApproaching, m.Stage)
		assert.InDelta(t, 300, m.DistanceMeters, 0.5)
	})

	t.Run("600m away is out of range", func(t *testing.T) {
		_, ok := c.Classify(geo.OffsetNorth(isbtLat, 600), isbtLng, wps)
		assert.False(t, ok)
	})

	t.Run("default radius applies when unset", func(t *testing.T) {
		unset := []fleet.Waypoint{{Name: "Clock Tower", Lat: isbtLat, Lng: isbtLng}}
		m, ok := c.Classify(geo.OffsetNorth(isbtLat, 140), isbtLng, unset)
		require.True(t, ok)
		assert.Equal(t, fleet.StageReached, m.Stage)
		m, ok = c.Classify(geo.OffsetNorth(isbtLat, 160), isbtLng, unset)
		require.True(t, ok)
		assert.Equal(t, fleet.StageApproaching, m.Stage)
	})

	t.Run("nearest wins and ties go to the first", func(t *testing.T) {
		set := []fleet.Waypoint{
			{Name: "Far", Lat: geo.OffsetNorth(isbtLat, 400), Lng: isbtLng},
			{Name: "Twin A", Lat: geo.OffsetNorth(isbtLat, 100), Lng: isbtLng},
			{Name: "Twin B", Lat: geo.OffsetNorth(isbtLat, 100), Lng: isbtLng},
		}
		m, ok := c.Classify(isbtLat, isbtLng, set)
		require.True(t, ok)
		assert.Equal(t, "Twin A", m.Waypoint.Name)
	})

	t.Run("nothing within window for any waypoint", func(t *testing.T) {
		set := []fleet.Waypoint{
			{Name: "A", Lat: geo.OffsetNorth(isbtLat, 501), Lng: isbtLng},
			{Name: "B", Lat: geo.OffsetNorth(isbtLat, -900), Lng: isbtLng},
			{Name: "C", Lat: geo.OffsetNorth(isbtLat, 5000), Lng: isbtLng},
		}
		_, ok := c.Classify(isbtLat, isbtLng, set)
		assert.False(t, ok)
	})

	t.Run("non-finite waypoints never match", func(t *testing.T) {
		set := []fleet.Waypoint{
			{Name: "Corrupt", Lat: math.NaN(), Lng: 78.0},
			{Name: "Drifted", Lat: isbtLat, Lng: math.Inf(1)},
			{Name: "ISBT", Lat: isbtLat, Lng: isbtLng, RadiusMeters: 150},
		}
		m, ok := c.Classify(isbtLat, isbtLng, set)
		require.True(t, ok)
		assert.Equal(t, "ISBT", m.Waypoint.Name)
		assert.Equal(t, fleet.StageReached, m.Stage)

		_, ok = c.Classify(0, 0, set)
		assert.False(t, ok)
	})
}

func TestResolver(t *testing.T) {
	store := &fakeStore{
		waypoints: map[string][]fleet.Waypoint{
			"b1": {
				{Name: "Mid 1", OrderIndex: 1, Active: true},
				{Name: "Mid 2", OrderIndex: 2, Active: true},
			},
		},
		buses: map[string]*fleet.Bus{
			"b1": {ID: "b1", StartLat: ptr(30.1), StartLng: ptr(78.1), EndName: "Clock Tower", EndLat: ptr(30.2), EndLng: ptr(78.2)},
			"b2": {ID: "b2", StartLat: ptr(30.1)},
		},
	}
	r := NewResolver(store)

	wps, err := r.Resolve(context.Background(), "  b1 ")
	require.NoError(t, err)
	require.Len(t, wps, 4)
	assert.Equal(t, "Start", wps[0].Name)
	assert.Equal(t, fleet.StartOrderIndex, wps[0].OrderIndex)
	assert.Equal(t, "Mid 1", wps[1].Name)
	assert.Equal(t, "Mid 2", wps[2].Name)
	assert.Equal(t, "Clock Tower", wps[3].Name)
	assert.Equal(t, fleet.EndOrderIndex, wps[3].OrderIndex)

	wps, err = r.Resolve(context.Background(), "b2")
	require.NoError(t, err)
	assert.Empty(t, wps, "partial coordinates are not synthesized")

	_, err = r.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = NewResolver(nil).Resolve(context.Background(), "b1")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDebouncer(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("identical event within window emits once", func(t *testing.T) {
		d := NewDebouncer(NewMemoryStore(), 0)
		emit, err := d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0)
		require.NoError(t, err)
		assert.True(t, emit)
		emit, _ = d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0.Add(2499*time.Millisecond))
		assert.False(t, emit)
	})

	t.Run("reached repeats after window", func(t *testing.T) {
		d := NewDebouncer(NewMemoryStore(), 0)
		emit, _ := d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0)
		assert.True(t, emit)
		emit, _ = d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0.Add(3*time.Second))
		assert.True(t, emit)
	})

	t.Run("approaching never repeats", func(t *testing.T) {
		d := NewDebouncer(NewMemoryStore(), 0)
		emit, _ := d.Decide(ctx, "b", "Stop A", fleet.StageApproaching, false, t0)
		assert.True(t, emit)
		emit, _ = d.Decide(ctx, "b", "Stop A", fleet.StageApproaching, false, t0.Add(time.Hour))
		assert.False(t, emit)
	})

	t.Run("name change emits within window", func(t *testing.T) {
		d := NewDebouncer(NewMemoryStore(), 0)
		emit, _ := d.Decide(ctx, "b", "Stop A", fleet.StageApproaching, false, t0)
		assert.True(t, emit)
		emit, _ = d.Decide(ctx, "b", "Stop B", fleet.StageApproaching, false, t0.Add(time.Millisecond))
		assert.True(t, emit)
		emit, _ = d.Decide(ctx, "b", "Stop B", fleet.StageApproaching, false, t0.Add(2*time.Millisecond))
		assert.False(t, emit)
	})

	t.Run("stage change always emits", func(t *testing.T) {
		d := NewDebouncer(NewMemoryStore(), 0)
		emit, _ := d.Decide(ctx, "b", "Stop A", fleet.StageApproaching, false, t0)
		assert.True(t, emit)
		emit, _ = d.Decide(ctx, "b", "Stop A", fleet.StageReached, false, t0.Add(time.Millisecond))
		assert.True(t, emit)
	})

	t.Run("force always emits", func(t *testing.T) {
		d := NewDebouncer(NewMemoryStore(), 0)
		emit, _ := d.Decide(ctx, "b", "Stop A", fleet.StageApproaching, true, t0)
		assert.True(t, emit)
		emit, _ = d.Decide(ctx, "b", "Stop A", fleet.StageApproaching, true, t0)
		assert.True(t, emit)
	})

	t.Run("failed store read falls back to local state", func(t *testing.T) {
		store := &flakyStore{MemoryStore: NewMemoryStore()}
		d := NewDebouncer(store, 0)
		emit, err := d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0)
		require.NoError(t, err)
		assert.True(t, emit)

		store.failGet = true
		emit, err = d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0.Add(time.Second))
		assert.Error(t, err)
		assert.False(t, emit)
		emit, _ = d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0.Add(3*time.Second))
		assert.True(t, emit)
	})

	t.Run("store down from the start still debounces", func(t *testing.T) {
		d := NewDebouncer(&flakyStore{MemoryStore: NewMemoryStore(), failGet: true, failPut: true}, 0)
		emit, err := d.Decide(ctx, "b", "Stop A", fleet.StageApproaching, false, t0)
		assert.Error(t, err)
		assert.True(t, emit)
		emit, _ = d.Decide(ctx, "b", "Stop A", fleet.StageApproaching, false, t0.Add(time.Second))
		assert.False(t, emit)
	})

	t.Run("suppression leaves state unchanged", func(t *testing.T) {
		store := NewMemoryStore()
		d := NewDebouncer(store, 0)
		_, _ = d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0)
		_, _ = d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0.Add(2*time.Second))
		st, ok, _ := store.Get(ctx, "b")
		require.True(t, ok)
		assert.Equal(t, t0.UnixMilli(), st.Timestamp)
		// 2.5s after the first emission, not after the suppressed one.
		emit, _ := d.Decide(ctx, "b", "ISBT", fleet.StageReached, false, t0.Add(2500*time.Millisecond))
		assert.True(t, emit)
		assert.Equal(t, 1, store.Len())
	})
}

func TestHandleGPS(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid payloads have no side effects", func(t *testing.T) {
		svc, pub, _ := newTestService(t, isbtStore())
		for _, in := range []fleet.GPSSample{
			{BusID: "  ", Lat: ptr(isbtLat), Lng: ptr(isbtLng)},
			{BusID: "UK07-1234", Lng: ptr(isbtLng)},
			{BusID: "UK07-1234", Lat: ptr(isbtLat), Lng: ptr(math.NaN())},
		} {
			res := svc.HandleGPS(ctx, in)
			assert.Equal(t, Result{OK: false, Error: "invalid payload"}, res)
		}
		assert.Zero(t, pub.count())
	})

	t.Run("no waypoints configured", func(t *testing.T) {
		svc, pub, _ := newTestService(t, &fakeStore{})
		res := svc.HandleGPS(ctx, sample("ghost", isbtLat, isbtLng, true))
		assert.Equal(t, Result{OK: true, Reason: ReasonNoMidpoints}, res)
		assert.Zero(t, pub.count())
	})

	t.Run("store failure fails open", func(t *testing.T) {
		svc, _, _ := newTestService(t, &fakeStore{err: errors.New("connection refused")})
		res := svc.HandleGPS(ctx, sample("UK07-1234", isbtLat, isbtLng, false))
		assert.True(t, res.OK)
		assert.Equal(t, ReasonNoMidpoints, res.Reason)
	})

	t.Run("corrupt waypoint is never announced", func(t *testing.T) {
		store := isbtStore()
		store.waypoints["UK07-1234"] = append([]fleet.Waypoint{
			{ID: "0", Name: "Corrupt", Lat: math.NaN(), Lng: 78.0, OrderIndex: 0, Active: true},
		}, store.waypoints["UK07-1234"]...)
		svc, pub, _ := newTestService(t, store)

		res := svc.HandleGPS(ctx, sample("UK07-1234", isbtLat, isbtLng, false))
		assert.Equal(t, Result{OK: true, Announced: true, Name: "ISBT", Stage: fleet.StageReached}, res)

		res = svc.HandleGPS(ctx, sample("UK07-1234", 0, 0, true))
		assert.Equal(t, Result{OK: true, Reason: ReasonNoneWithinRadius}, res)
		assert.Equal(t, 1, pub.count())
	})

	t.Run("isbt scenario", func(t *testing.T) {
		svc, pub, clk := newTestService(t, isbtStore())

		res := svc.HandleGPS(ctx, sample("UK07-1234", geo.OffsetNorth(isbtLat, 600), isbtLng, true))
		assert.Equal(t, Result{OK: true, Reason: ReasonNoneWithinRadius}, res)

		res = svc.HandleGPS(ctx, sample("UK07-1234", geo.OffsetNorth(isbtLat, 300), isbtLng, false))
		assert.Equal(t, Result{OK: true, Announced: true, Name: "ISBT", Stage: fleet.StageApproaching}, res)

		clk.advance(time.Second)
		res = svc.HandleGPS(ctx, sample("UK07-1234", geo.OffsetNorth(isbtLat, 250), isbtLng, false))
		assert.Equal(t, Result{OK: true, Announced: false, Name: "ISBT", Stage: fleet.StageApproaching}, res)

		clk.advance(time.Second)
		res = svc.HandleGPS(ctx, sample("UK07-1234", isbtLat, isbtLng, false))
		assert.Equal(t, Result{OK: true, Announced: true, Name: "ISBT", Stage: fleet.StageReached}, res)

		clk.advance(3 * time.Second)
		res = svc.HandleGPS(ctx, sample("UK07-1234", isbtLat, isbtLng, false))
		assert.True(t, res.Announced)

		require.Equal(t, 3, pub.count())
		ev := pub.events[2]
		assert.Equal(t, fleet.EventTypeLandmark, ev.Type)
		assert.Equal(t, "UK07-1234", ev.BusID)
		assert.Equal(t, fleet.StageReached, ev.Stage)
		assert.NotEmpty(t, ev.ID)
		assert.NotEqual(t, pub.events[1].ID, ev.ID)
	})

	t.Run("first forced post then unforced duplicate", func(t *testing.T) {
		svc, pub, _ := newTestService(t, isbtStore())
		res := svc.HandleGPS(ctx, sample("UK07-1234", isbtLat, isbtLng, true))
		assert.True(t, res.Announced)
		res = svc.HandleGPS(ctx, sample("UK07-1234", isbtLat, isbtLng, false))
		assert.False(t, res.Announced)
		assert.Equal(t, 1, pub.count())
	})

	t.Run("explicit reconnect reason forces", func(t *testing.T) {
		svc, pub, _ := newTestService(t, isbtStore())
		in := sample("UK07-1234", isbtLat, isbtLng, false)
		svc.HandleGPS(ctx, in)
		in.Reason = fleet.ReasonClientReconnect
		res := svc.HandleGPS(ctx, in)
		assert.True(t, res.Announced)
		assert.Equal(t, 2, pub.count())
	})

	t.Run("always force option", func(t *testing.T) {
		svc, pub, _ := newTestService(t, isbtStore())
		svc.opts.AlwaysForce = true
		svc.HandleGPS(ctx, sample("UK07-1234", isbtLat, isbtLng, false))
		svc.HandleGPS(ctx, sample("UK07-1234", isbtLat, isbtLng, false))
		assert.Equal(t, 2, pub.count())
	})

	t.Run("publish failure does not fail the sample", func(t *testing.T) {
		svc, pub, _ := newTestService(t, isbtStore())
		pub.err = errors.New("nats: connection closed")
		res := svc.HandleGPS(ctx, sample("UK07-1234", isbtLat, isbtLng, true))
		assert.True(t, res.OK)
		assert.True(t, res.Announced)
	})
}
