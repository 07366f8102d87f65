package announce

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-signage/internal/fleet"
	"fleet-signage/internal/geo"
)

// Reasons reported when a sample does not produce an announcement.
const (
	ReasonNoMidpoints      = "no_midpoints_configured"
	ReasonNoneWithinRadius = "no_midpoint_within_radius"
)

// Outcome labels passed to Metrics.SampleObserve.
const (
	OutcomeInvalid    = "invalid"
	OutcomeNoConfig   = "no_config"
	OutcomeOutOfRange = "out_of_range"
	OutcomeSuppressed = "suppressed"
	OutcomeAnnounced  = "announced"
)

// Publisher fans a landmark event out to the per-bus and global topics.
type Publisher interface {
	PublishLandmark(ctx context.Context, ev fleet.LandmarkEvent) error
}

type Metrics interface {
	SampleObserve(outcome string)
	AnnouncementInc(stage fleet.Stage)
	ResolverErrInc()
	PublishErrInc()
	StateErrInc()
}

type Options struct {
	ApproachMeters float64
	RepeatWindow   time.Duration
	// AlwaysForce bypasses the debouncer for every sample.
	AlwaysForce bool
}

type Result struct {
	OK        bool        `json:"ok"`
	Announced bool        `json:"announced"`
	Error     string      `json:"error,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Name      string      `json:"name,omitempty"`
	Stage     fleet.Stage `json:"stage,omitempty"`
}

// Service handles one GPS sample end to end.
type Service struct {
	resolver   *Resolver
	classifier Classifier
	debouncer  *Debouncer
	pub        Publisher
	metrics    Metrics
	log        *zap.Logger
	opts       Options

	now   func() time.Time
	newID func() string
}

func NewService(store WaypointStore, state StateStore, pub Publisher, m Metrics, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if state == nil {
		state = NewMemoryStore()
	}
	return &Service{
		resolver:   NewResolver(store),
		classifier: Classifier{ApproachMeters: opts.ApproachMeters},
		debouncer:  NewDebouncer(state, opts.RepeatWindow),
		pub:        pub,
		metrics:    m,
		log:        log,
		opts:       opts,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Waypoints exposes the resolver's configured midpoints for a bus.
func (s *Service) Waypoints(ctx context.Context, busKey string) ([]fleet.Waypoint, error) {
	if s.resolver.store == nil {
		return nil, ErrInvalidPayload
	}
	return s.resolver.store.ActiveWaypoints(ctx, busKey)
}

func (s *Service) HandleGPS(ctx context.Context, in fleet.GPSSample) Result {
	busID := strings.TrimSpace(in.BusID)
	if busID == "" || in.Lat == nil || in.Lng == nil || !geo.Finite(*in.Lat) || !geo.Finite(*in.Lng) {
		s.observe(OutcomeInvalid)
		return Result{OK: false, Error: ErrInvalidPayload.Error()}
	}
	lat, lng := *in.Lat, *in.Lng

	wps, err := s.resolver.Resolve(ctx, busID)
	if err != nil {
		// Fail open: GPS ingestion stays live when the store is degraded.
		s.log.Warn("waypoint lookup failed", zap.String("bus", busID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.ResolverErrInc()
		}
		wps = nil
	}
	if len(wps) == 0 {
		s.observe(OutcomeNoConfig)
		return Result{OK: true, Reason: ReasonNoMidpoints}
	}

	m, ok := s.classifier.Classify(lat, lng, wps)
	if !ok {
		s.observe(OutcomeOutOfRange)
		return Result{OK: true, Reason: ReasonNoneWithinRadius}
	}

	now := s.now()
	name := m.Waypoint.Name
	force := s.opts.AlwaysForce || in.Forced()
	emit, err := s.debouncer.Decide(ctx, busID, name, m.Stage, force, now)
	if err != nil {
		s.log.Warn("announcement state store error", zap.String("bus", busID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.StateErrInc()
		}
	}
	if !emit {
		s.observe(OutcomeSuppressed)
		return Result{OK: true, Name: name, Stage: m.Stage}
	}

	ev := fleet.LandmarkEvent{
		Type:           fleet.EventTypeLandmark,
		ID:             s.newID(),
		Name:           name,
		BusID:          busID,
		Stage:          m.Stage,
		DistanceMeters: m.DistanceMeters,
		At:             now,
	}
	s.publish(ctx, ev)
	s.log.Info("landmark announced",
		zap.String("bus", busID),
		zap.String("name", name),
		zap.String("stage", string(m.Stage)),
		zap.Float64("distance_m", m.DistanceMeters),
		zap.Bool("forced", force))
	s.observe(OutcomeAnnounced)
	if s.metrics != nil {
		s.metrics.AnnouncementInc(m.Stage)
	}
	return Result{OK: true, Announced: true, Name: name, Stage: m.Stage}
}

// publish is best effort; a failed broadcast never fails the sample.
func (s *Service) publish(ctx context.Context, ev fleet.LandmarkEvent) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishLandmark(ctx, ev); err != nil {
		s.log.Warn("landmark publish failed", zap.String("bus", ev.BusID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.PublishErrInc()
		}
	}
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.SampleObserve(outcome)
	}
}
