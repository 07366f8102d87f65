package fleet

import "time"

// DefaultRadiusMeters applies to waypoints with no configured radius.
const DefaultRadiusMeters = 150.0

// Synthetic waypoints sort before and after every configured midpoint.
const (
	StartOrderIndex = -2
	EndOrderIndex   = 999999
)

type Waypoint struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radiusMeters,omitempty"`
	OrderIndex   int     `json:"orderIndex"`
	Active       bool    `json:"active"`
}

// EffectiveRadius is the "reached" radius in meters.
func (w Waypoint) EffectiveRadius() float64 {
	if w.RadiusMeters > 0 {
		return w.RadiusMeters
	}
	return DefaultRadiusMeters
}

// Bus is the subset of a bus record the announcer reads. Start/end
// coordinates are optional.
type Bus struct {
	ID        string
	BusNumber string
	StartName string
	StartLat  *float64
	StartLng  *float64
	EndName   string
	EndLat    *float64
	EndLng    *float64
}

type Stage string

const (
	StageApproaching Stage = "APPROACHING"
	StageReached     Stage = "REACHED"
)

// Force reasons accepted on a GPS sample.
const (
	ReasonClientReconnect = "client_reconnect"
	ReasonDebug           = "debug"
)

type GPSSample struct {
	BusID  string   `json:"busId"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
	Force  bool     `json:"force,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// Forced reports whether the sample bypasses the debounce window.
func (s GPSSample) Forced() bool {
	switch s.Reason {
	case ReasonClientReconnect, ReasonDebug:
		return true
	}
	return s.Force
}

// AnnouncementState is the last emitted announcement for a bus.
type AnnouncementState struct {
	Name      string `json:"name"`
	Stage     Stage  `json:"stage"`
	Timestamp int64  `json:"timestampMs"`
}

func (a AnnouncementState) At() time.Time { return time.UnixMilli(a.Timestamp) }

const EventTypeLandmark = "LANDMARK"

type LandmarkEvent struct {
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	BusID          string    `json:"busId"`
	Stage          Stage     `json:"stage"`
	DistanceMeters float64   `json:"distanceMeters"`
	At             time.Time `json:"at"`
}
