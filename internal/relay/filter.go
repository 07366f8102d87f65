package relay

import (
	"time"

	"fleet-signage/internal/geo"
)

// Filter thins the GPS stream before it leaves the bus. A fix is sent when
// at least MinInterval has passed and the bus moved MinDistance, or when
// Heartbeat has passed so a parked bus keeps reporting.
type Filter struct {
	MinDistance float64
	MinInterval time.Duration
	Heartbeat   time.Duration

	sent     bool
	lastLat  float64
	lastLng  float64
	lastSent time.Time
}

// Accept reports whether the fix should be sent and records it if so.
func (f *Filter) Accept(lat, lng float64, now time.Time) bool {
	if !f.sent {
		f.record(lat, lng, now)
		return true
	}
	elapsed := now.Sub(f.lastSent)
	if elapsed < f.MinInterval {
		return false
	}
	moved := geo.Haversine(f.lastLat, f.lastLng, lat, lng)
	if moved < f.MinDistance && (f.Heartbeat <= 0 || elapsed < f.Heartbeat) {
		return false
	}
	f.record(lat, lng, now)
	return true
}

func (f *Filter) record(lat, lng float64, now time.Time) {
	f.sent = true
	f.lastLat, f.lastLng, f.lastSent = lat, lng, now
}
