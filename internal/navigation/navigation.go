// Package navigation turns history changes into resolution sequences.
//
// Every qualifying history event starts a new generation. Cross-base
// transitions flip the loading flag and wait for at least MinDelay before the
// result is shown; same-base transitions only scroll and swap the component
// when its name changes. Only the latest generation's result is applied.
package navigation

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bhandras/shellkit/internal/actor"
	"github.com/bhandras/shellkit/internal/resolve"
	"github.com/bhandras/shellkit/internal/router"
	"github.com/bhandras/shellkit/internal/runtime"
	"github.com/bhandras/shellkit/internal/store"
	"github.com/bhandras/shellkit/pkg/logger"
)

var log = logger.Named("navigation")

const (
	DefaultMinDelay       = 300 * time.Millisecond
	DefaultScrollDuration = 300 * time.Millisecond
)

// Config configures Epic.
type Config struct {
	Resolve resolve.Func
	// Policy decides same-base transitions. Zero means DefaultPolicy.
	Policy Policy
	// Bases are the base segments owned by mounted route groups.
	Bases *router.Bases
	// MinDelay is the floor on cross-base resolution time. Zero means
	// DefaultMinDelay; negative disables the floor.
	MinDelay time.Duration
	// ScrollDuration animates cross-base scrolls. Zero means
	// DefaultScrollDuration; negative means instant.
	ScrollDuration time.Duration
	// StartFrom replaces the router slice location as the previous location
	// of the first navigation.
	StartFrom *router.Location
}

func (c Config) timings() timings {
	t := timings{minDelay: c.MinDelay, scrollDuration: c.ScrollDuration}
	if t.minDelay == 0 {
		t.minDelay = DefaultMinDelay
	}
	if t.minDelay < 0 {
		t.minDelay = 0
	}
	if t.scrollDuration == 0 {
		t.scrollDuration = DefaultScrollDuration
	}
	if t.scrollDuration < 0 {
		t.scrollDuration = 0
	}
	return t
}

// Qualifies reports whether a history event starts a navigation. The POP of
// the very first render does not.
func Qualifies(ev router.HistoryEvent) bool {
	switch ev.Action {
	case router.Push, router.Replace:
		return true
	case router.Pop:
		return !ev.IsFirstRendering
	default:
		return false
	}
}

// Epic returns the navigation handler.
func Epic(cfg Config) store.Epic {
	return store.Epic{
		Name: "navigation",
		Run: func(ctx context.Context, actions <-chan store.Action, state store.StateReader, deps *store.Deps, emit store.Emitter) error {
			if cfg.Resolve == nil {
				return errors.New("navigation: no resolver configured")
			}
			rt := &navRuntime{resolve: cfg.Resolve, deps: deps, emit: emit}
			a := actor.New(navState{}, reducer(cfg.Policy, cfg.timings()), rt,
				actor.WithHooks(actor.Hooks[navState]{
					OnInput: func(in actor.Input) {
						logger.Tracef("navigation: input %T", in)
					},
					OnPanic: func(r any) {
						log.Errorf("navigation loop panic: %v", r)
					},
				}))
			a.Start()
			defer func() {
				a.Stop()
				<-a.Done()
				rt.wait()
			}()

			st := state.State()
			initial := router.Location{}
			if rs, ok := store.Slice[router.State](st, router.Slice); ok {
				initial = rs.Location
			}
			if cfg.StartFrom != nil {
				initial = *cfg.StartFrom
			}
			if err := a.Send(ctx, evInit{
				Location:  initial,
				Displayed: runtime.FromState(st).Resolve.ComponentName,
			}); err != nil {
				return nil
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case act, ok := <-actions:
					if !ok {
						return nil
					}
					if act.Type != router.ActionChange {
						continue
					}
					ev, ok := act.Payload.(router.HistoryEvent)
					if !ok || !Qualifies(ev) {
						continue
					}
					rs := runtime.FromState(state.State())
					if err := a.Send(ctx, evNavigate{
						Location:       ev.Location,
						Online:         rs.Online,
						Outdated:       rs.Outdated,
						BaseRegistered: cfg.Bases.Has(ev.Location.FirstSegment()),
					}); err != nil {
						return nil
					}
				}
			}
		},
	}
}

// navRuntime interprets navigation effects.
type navRuntime struct {
	resolve resolve.Func
	deps    *store.Deps
	emit    store.Emitter

	wg sync.WaitGroup
}

func (r *navRuntime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case effDispatch:
			for _, a := range e.Actions {
				r.emit(a)
			}
		case effResolve:
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				res, err := r.run(ctx, e)
				if err != nil {
					return
				}
				emit(evResolved{Gen: e.Gen, SameBase: e.SameBase, Result: res})
			}()
		}
	}
}

// run resolves e and waits for its floor, whichever finishes later.
func (r *navRuntime) run(ctx context.Context, e effResolve) (resolve.ResolvedComponent, error) {
	var res resolve.ResolvedComponent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res = r.resolve(gctx, e.Pathname, e.Online, e.Outdated)
		return nil
	})
	if e.Floor > 0 {
		g.Go(func() error {
			select {
			case <-r.deps.After(e.Floor):
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, ctx.Err()
}

func (r *navRuntime) Stop() {}

func (r *navRuntime) wait() { r.wg.Wait() }
