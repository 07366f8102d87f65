package announce

import (
	"context"
	"sync"
	"time"

	"fleet-signage/internal/fleet"
)

const DefaultRepeatWindow = 2500 * time.Millisecond

// Debouncer decides whether a classified event is emitted.
//
// APPROACHING fires once per (name, stage) change. REACHED repeats at most
// once per repeat window while the bus lingers. A forced sample always
// emits.
type Debouncer struct {
	store  StateStore
	repeat time.Duration
	// local mirrors every recorded state and answers when store reads fail
	local *MemoryStore

	// serializes read-modify-write on the store within this process
	mu sync.Mutex
}

func NewDebouncer(store StateStore, repeat time.Duration) *Debouncer {
	if repeat <= 0 {
		repeat = DefaultRepeatWindow
	}
	local, ok := store.(*MemoryStore)
	if !ok {
		local = NewMemoryStore()
	}
	return &Debouncer{store: store, repeat: repeat, local: local}
}

// Decide reports whether to emit and records the new state when it does.
// Store errors are returned alongside the decision; a failed read falls
// back to the last state this process recorded.
func (d *Debouncer) Decide(ctx context.Context, busID, name string, stage fleet.Stage, force bool, now time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok, getErr := d.store.Get(ctx, busID)
	if getErr != nil {
		prev, ok, _ = d.local.Get(ctx, busID)
	}
	if !d.shouldEmit(prev, ok, name, stage, force, now) {
		return false, getErr
	}
	next := fleet.AnnouncementState{Name: name, Stage: stage, Timestamp: now.UnixMilli()}
	if d.local != d.store {
		_ = d.local.Put(ctx, busID, next)
	}
	if err := d.store.Put(ctx, busID, next); err != nil {
		return true, err
	}
	return true, getErr
}

func (d *Debouncer) shouldEmit(prev fleet.AnnouncementState, ok bool, name string, stage fleet.Stage, force bool, now time.Time) bool {
	switch {
	case force, !ok:
		return true
	case prev.Name != name || prev.Stage != stage:
		return true
	case stage == fleet.StageReached:
		return now.UnixMilli()-prev.Timestamp >= d.repeat.Milliseconds()
	default:
		return false
	}
}
