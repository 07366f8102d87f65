package display

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// The headless renderers log what a TV would say and show. They back the
// display command on boxes without a speech engine or screen attached.

type LogSpeaker struct {
	Log *zap.Logger
	// Pace approximates speaking time per utterance.
	Pace time.Duration
}

func (s LogSpeaker) Speak(ctx context.Context, u Utterance) error {
	s.Log.Info("speak", zap.String("lang", u.Lang), zap.String("text", u.Text))
	if s.Pace <= 0 {
		return nil
	}
	t := time.NewTimer(s.Pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type LogScreen struct{ Log *zap.Logger }

func (s LogScreen) Show(o Overlay) {
	s.Log.Info("overlay shown", zap.String("name", o.Name), zap.String("hi", o.Hindi), zap.String("en", o.English))
}

func (s LogScreen) Hide() { s.Log.Debug("overlay hidden") }

// LoopPlayer stands in for an ad loop that is always playing unless paused.
type LoopPlayer struct {
	Log *zap.Logger

	mu     sync.Mutex
	paused bool
}

func (p *LoopPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.paused
}

func (p *LoopPlayer) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	p.Log.Debug("video paused")
}

func (p *LoopPlayer) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	p.Log.Debug("video resumed")
}
