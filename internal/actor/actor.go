// Package actor runs a single goroutine that owns a piece of state.
//
// Every mutation goes through one mailbox: a pure reducer turns (state, input)
// into the next state plus a list of effects, and a Runtime interprets those
// effects, feeding follow-up inputs back into the same mailbox. The dynamic
// store and the navigation state machine are both built on this loop.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is anything that can be delivered to an actor mailbox.
type Input interface {
	isActorInput()
}

// Effect is a declarative side-effect returned by a reducer. The Runtime
// executes it; the reducer never does.
type Effect interface {
	isActorEffect()
}

// ReducerFunc is a pure state transition.
//
// Reducers must not perform I/O, spawn goroutines or read the wall clock.
// Timestamps and random identifiers arrive through inputs.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and emits follow-up inputs.
type Runtime interface {
	// HandleEffects runs on the actor goroutine, in reduce order. Blocking
	// work must be moved to another goroutine. Nothing may be emitted after
	// ctx is canceled.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop releases background work. It may be called more than once.
	Stop()
}

// Hooks observe an actor without taking part in it.
type Hooks[S any] struct {
	// OnInput fires after an input is dequeued, before reducing.
	OnInput func(input Input)
	// OnTransition fires after the new state is committed.
	OnTransition func(prev S, next S, input Input)
	// OnEffects fires before effects reach the Runtime.
	OnEffects func(effects []Effect)
	// OnPanic receives a recovered loop panic. Without it the panic
	// propagates.
	OnPanic func(recovered any)
}

// ErrStopped is returned when an input is sent to a stopped actor.
var ErrStopped = errors.New("actor stopped")

// Actor is a serialized event loop owning state of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	mu     sync.Mutex
	state  S
	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks attaches observability hooks.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize overrides the default mailbox buffer of 256.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.inbox = make(chan Input, n)
		}
	}
}

// New builds an actor. The loop does not run until Start is called.
func New[S any](initial S, reducer ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, 256),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the loop. Repeated calls are no-ops.
func (a *Actor[S]) Start() {
	a.once.Do(func() { go a.loop() })
}

// Stop cancels the loop and the runtime. Safe to call repeatedly.
func (a *Actor[S]) Stop() {
	a.cancel()
	if a.runtime != nil {
		a.runtime.Stop()
	}
}

// Done is closed once the loop goroutine has returned.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Enqueue offers an input without blocking. It reports false when the actor is
// stopped or the mailbox is full.
func (a *Actor[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	select {
	case <-a.ctx.Done():
		return false
	default:
	}
	select {
	case a.inbox <- input:
		return true
	default:
		return false
	}
}

// Send delivers an input, waiting for mailbox space. It never drops: it
// returns ctx.Err() if the caller gives up and ErrStopped if the actor stops
// first.
func (a *Actor[S]) Send(ctx context.Context, input Input) error {
	if input == nil {
		return nil
	}
	select {
	case <-a.ctx.Done():
		return ErrStopped
	default:
	}
	select {
	case a.inbox <- input:
		return nil
	case <-a.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the last committed state.
func (a *Actor[S]) State() S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor[S]) loop() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			if a.hooks.OnPanic != nil {
				a.hooks.OnPanic(r)
				return
			}
			panic(r)
		}
	}()

	emit := func(in Input) {
		// Follow-ups must not be lost when the mailbox is momentarily full,
		// but the runtime may call emit from the loop goroutine itself.
		if !a.Enqueue(in) {
			go func() { _ = a.Send(a.ctx, in) }()
		}
	}

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			a.step(in, emit)
		}
	}
}

func (a *Actor[S]) step(in Input, emit func(Input)) {
	if in == nil {
		return
	}
	if a.hooks.OnInput != nil {
		a.hooks.OnInput(in)
	}

	a.mu.Lock()
	prev := a.state
	a.mu.Unlock()

	next, effects := a.reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.hooks.OnTransition != nil {
		a.hooks.OnTransition(prev, next, in)
	}
	if len(effects) == 0 {
		return
	}
	if a.hooks.OnEffects != nil {
		a.hooks.OnEffects(effects)
	}
	if a.runtime != nil {
		a.runtime.HandleEffects(a.ctx, effects, emit)
	}
}
