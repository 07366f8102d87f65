package announce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"fleet-signage/internal/fleet"
	"fleet-signage/internal/geo"
)

// ErrInvalidPayload is returned for samples or lookups that cannot be
// evaluated at all.
var ErrInvalidPayload = errors.New("invalid payload")

// WaypointStore is the read-only data store holding configured midpoints
// and bus records.
type WaypointStore interface {
	ActiveWaypoints(ctx context.Context, busKey string) ([]fleet.Waypoint, error)
	Bus(ctx context.Context, busKey string) (*fleet.Bus, error)
}

type Resolver struct {
	store WaypointStore
}

func NewResolver(store WaypointStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the candidate waypoints for a bus: its active midpoints
// plus synthetic start/end waypoints taken from the bus record, ordered by
// OrderIndex.
func (r *Resolver) Resolve(ctx context.Context, busID string) ([]fleet.Waypoint, error) {
	busID = strings.TrimSpace(busID)
	if r == nil || r.store == nil || busID == "" {
		return nil, ErrInvalidPayload
	}

	wps, err := r.store.ActiveWaypoints(ctx, busID)
	if err != nil {
		return nil, fmt.Errorf("active waypoints for %q: %w", busID, err)
	}
	bus, err := r.store.Bus(ctx, busID)
	if err != nil {
		return nil, fmt.Errorf("bus %q: %w", busID, err)
	}

	out := make([]fleet.Waypoint, 0, len(wps)+2)
	out = append(out, wps...)
	if bus != nil {
		if w, ok := endpoint(bus.ID+":start", bus.StartName, "Start", bus.StartLat, bus.StartLng, fleet.StartOrderIndex); ok {
			out = append(out, w)
		}
		if w, ok := endpoint(bus.ID+":end", bus.EndName, "End", bus.EndLat, bus.EndLng, fleet.EndOrderIndex); ok {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func endpoint(id, name, fallback string, lat, lng *float64, order int) (fleet.Waypoint, bool) {
	if lat == nil || lng == nil || !geo.Finite(*lat) || !geo.Finite(*lng) {
		return fleet.Waypoint{}, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	return fleet.Waypoint{
		ID:           id,
		Name:         name,
		Lat:          *lat,
		Lng:          *lng,
		RadiusMeters: fleet.DefaultRadiusMeters,
		OrderIndex:   order,
		Active:       true,
	}, true
}
