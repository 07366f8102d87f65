package display

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"fleet-signage/internal/fleet"
)

const (
	LangHindi   = "hi-IN"
	LangEnglish = "en-IN"
)

type Utterance struct {
	Lang string
	Text string
}

// Speaker plays one utterance and returns when it has finished.
type Speaker interface {
	Speak(ctx context.Context, u Utterance) error
}

// Utterances returns the announcement for an event, Hindi first.
func Utterances(ev fleet.LandmarkEvent) []Utterance {
	hi := Transliterate(ev.Name)
	if ev.Stage == fleet.StageReached {
		return []Utterance{
			{Lang: LangHindi, Text: fmt.Sprintf("हम %s पहुँच गए हैं", hi)},
			{Lang: LangEnglish, Text: fmt.Sprintf("We have reached %s", ev.Name)},
		}
	}
	return []Utterance{
		{Lang: LangHindi, Text: fmt.Sprintf("अगला पड़ाव %s", hi)},
		{Lang: LangEnglish, Text: fmt.Sprintf("Approaching %s", ev.Name)},
	}
}

// VoiceQueue speaks announcements strictly in arrival order. New events
// are appended, never replacing what is already queued.
type VoiceQueue struct {
	speaker Speaker
	log     *zap.Logger

	mu    sync.Mutex
	items []Utterance
	wake  chan struct{}
}

func NewVoiceQueue(s Speaker, logger *zap.Logger) *VoiceQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VoiceQueue{speaker: s, log: logger, wake: make(chan struct{}, 1)}
}

func (q *VoiceQueue) Consume(ev fleet.LandmarkEvent) {
	q.mu.Lock()
	q.items = append(q.items, Utterances(ev)...)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *VoiceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run speaks queued utterances until ctx is cancelled.
func (q *VoiceQueue) Run(ctx context.Context) {
	for {
		u, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		if err := q.speaker.Speak(ctx, u); err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Warn("speech failed", zap.String("lang", u.Lang), zap.Error(err))
		}
	}
}

func (q *VoiceQueue) pop() (Utterance, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Utterance{}, false
	}
	u := q.items[0]
	q.items = q.items[1:]
	return u, true
}
