package display

import (
	"sync"
	"time"

	"fleet-signage/internal/fleet"
)

// Player is the ad video on the display.
type Player interface {
	Playing() bool
	Pause()
	Resume()
}

// Screen renders the full-screen announcement overlay.
type Screen interface {
	Show(o Overlay)
	Hide()
}

type Overlay struct {
	Name    string
	Stage   fleet.Stage
	Hindi   string
	English string
}

func NewOverlay(ev fleet.LandmarkEvent) Overlay {
	u := Utterances(ev)
	return Overlay{Name: ev.Name, Stage: ev.Stage, Hindi: u[0].Text, English: u[1].Text}
}

// OverlayController shows one overlay at a time. A new event replaces the
// visible overlay and restarts its timer; the video paused by the first
// overlay resumes when the last one expires.
type OverlayController struct {
	screen   Screen
	player   Player
	duration time.Duration
	throttle time.Duration
	now      func() time.Time

	mu           sync.Mutex
	timer        *time.Timer
	gen          int
	pausedVideo  bool
	lastApproach map[string]time.Time
}

// throttle limits APPROACHING overlays per landmark name; zero disables it.
func NewOverlayController(screen Screen, player Player, duration, throttle time.Duration) *OverlayController {
	return &OverlayController{
		screen:       screen,
		player:       player,
		duration:     duration,
		throttle:     throttle,
		now:          time.Now,
		lastApproach: make(map[string]time.Time),
	}
}

func (o *OverlayController) Consume(ev fleet.LandmarkEvent) {
	o.Show(ev)
}

// Show displays the event and reports whether it was shown.
func (o *OverlayController) Show(ev fleet.LandmarkEvent) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if ev.Stage == fleet.StageApproaching && o.throttle > 0 {
		if last, ok := o.lastApproach[ev.Name]; ok && now.Sub(last) < o.throttle {
			return false
		}
		o.lastApproach[ev.Name] = now
	}

	if o.timer != nil {
		o.timer.Stop()
	}
	if o.player != nil && !o.pausedVideo && o.player.Playing() {
		o.player.Pause()
		o.pausedVideo = true
	}
	o.screen.Show(NewOverlay(ev))

	o.gen++
	gen := o.gen
	o.timer = time.AfterFunc(o.duration, func() { o.expire(gen) })
	return true
}

// Close hides any overlay and resumes the video immediately.
func (o *OverlayController) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.gen++
	o.clear()
}

func (o *OverlayController) expire(gen int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return
	}
	o.timer = nil
	o.clear()
}

func (o *OverlayController) clear() {
	o.screen.Hide()
	if o.pausedVideo {
		o.player.Resume()
		o.pausedVideo = false
	}
}
