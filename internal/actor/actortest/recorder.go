// Package actortest provides test helpers for the actor framework.
package actortest

import (
	"context"
	"sync"

	"github.com/primeshop/chat/internal/actor"
)

// Recorder is a Runtime that records every effect it is handed and can
// synthesize follow-up inputs.
type Recorder struct {
	mu      sync.Mutex
	effects []actor.Effect
	stopped int

	// Reply, when non-nil, is invoked for each effect. Tests use it to emit
	// the event a real runtime would produce.
	Reply func(eff actor.Effect, emit func(actor.Input))
}

var _ actor.Runtime = (*Recorder)(nil)

// HandleEffects implements actor.Runtime.
func (r *Recorder) HandleEffects(_ context.Context, effects []actor.Effect, emit func(actor.Input)) {
	r.mu.Lock()
	r.effects = append(r.effects, effects...)
	reply := r.Reply
	r.mu.Unlock()

	if reply == nil {
		return
	}
	for _, eff := range effects {
		reply(eff, emit)
	}
}

// Stop implements actor.Runtime.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

// Stopped reports how many times Stop was called.
func (r *Recorder) Stopped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Effects returns a snapshot of recorded effects.
func (r *Recorder) Effects() []actor.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]actor.Effect, len(r.effects))
	copy(out, r.effects)
	return out
}

// OfType returns the recorded effects that have concrete type T.
func OfType[T actor.Effect](r *Recorder) []T {
	var out []T
	for _, eff := range r.Effects() {
		if typed, ok := eff.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}
