// Package actortest provides fakes for code built on the actor loop.
package actortest

import (
	"context"
	"sync"

	"github.com/bhandras/shellkit/internal/actor"
)

// FakeRuntime records the effects it is handed.
type FakeRuntime struct {
	mu sync.Mutex

	effects []actor.Effect

	// EmitFn, when set, runs for every effect so tests can synthesize
	// follow-up inputs.
	EmitFn func(ctx context.Context, eff actor.Effect, emit func(actor.Input))
}

// HandleEffects implements actor.Runtime.
func (r *FakeRuntime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	r.mu.Lock()
	r.effects = append(r.effects, effects...)
	emitFn := r.EmitFn
	r.mu.Unlock()

	if emitFn == nil {
		return
	}
	for _, eff := range effects {
		emitFn(ctx, eff, emit)
	}
}

// Stop implements actor.Runtime.
func (r *FakeRuntime) Stop() {}

// Effects returns a copy of everything recorded so far.
func (r *FakeRuntime) Effects() []actor.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]actor.Effect, len(r.effects))
	copy(out, r.effects)
	return out
}

// Reset forgets recorded effects.
func (r *FakeRuntime) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = nil
}
