package navigation

import (
	"time"

	"github.com/bhandras/shellkit/internal/actor"
	"github.com/bhandras/shellkit/internal/resolve"
	"github.com/bhandras/shellkit/internal/router"
	"github.com/bhandras/shellkit/internal/runtime"
	"github.com/bhandras/shellkit/internal/store"
)

// navState is owned by the navigation actor.
type navState struct {
	prev router.Location
	// gen identifies the latest navigation. Results tagged with an older
	// generation are discarded.
	gen uint64
	// displayed is the component name currently on screen.
	displayed string
	// loading is set while SetResolving(true) is outstanding.
	loading bool
	// inflight is set while the resolution of generation gen is pending.
	inflight bool
}

type evInit struct {
	actor.InputBase
	Location  router.Location
	Displayed string
}

type evNavigate struct {
	actor.InputBase
	Location       router.Location
	Online         bool
	Outdated       bool
	BaseRegistered bool
}

type evResolved struct {
	actor.InputBase
	Gen      uint64
	SameBase bool
	Result   resolve.ResolvedComponent
}

// effDispatch dispatches actions in order.
type effDispatch struct {
	actor.EffectBase
	Actions []store.Action
}

// effResolve starts a resolution for generation Gen.
type effResolve struct {
	actor.EffectBase
	Gen      uint64
	SameBase bool
	Pathname string
	Online   bool
	Outdated bool
	// Floor is the minimum time before the result is reported.
	Floor time.Duration
}

type timings struct {
	minDelay       time.Duration
	scrollDuration time.Duration
}

func reducer(policy Policy, t timings) actor.ReducerFunc[navState] {
	return func(s navState, in actor.Input) (navState, []actor.Effect) {
		switch ev := in.(type) {
		case evInit:
			s.prev = ev.Location
			s.displayed = ev.Displayed
			return s, nil
		case evNavigate:
			return navigate(s, ev, policy, t)
		case evResolved:
			return resolved(s, ev)
		}
		return s, nil
	}
}

func navigate(s navState, ev evNavigate, policy Policy, t timings) (navState, []actor.Effect) {
	prev, next := s.prev, ev.Location
	s.prev = next
	selector := next.ScrollTarget()

	if ev.Outdated {
		s.gen++
		s.inflight = false
		var actions []store.Action
		actions, s.loading = settle(actions, s.loading)
		return s, dispatch(append(actions, router.Resolved(), runtime.Reload())...)
	}

	if prev.Pathname == next.Pathname && prev.Search == next.Search {
		return s, dispatch(router.Resolved())
	}

	same := policy.SameBase(prev, next)
	// A mounted route group renders its own base. A pending resolution still
	// has to land, so it goes through the regular same-base path.
	if same && ev.BaseRegistered && !s.inflight {
		s.gen++
		actions := []store.Action{runtime.ScrollTo(selector, 0)}
		actions, s.loading = settle(actions, s.loading)
		return s, []actor.Effect{effDispatch{Actions: append(actions, router.Resolved())}}
	}

	s.gen++
	s.inflight = true
	eff := effResolve{
		Gen:      s.gen,
		SameBase: same,
		Pathname: next.Pathname,
		Online:   ev.Online,
		Outdated: ev.Outdated,
	}
	if same {
		return s, []actor.Effect{
			effDispatch{Actions: []store.Action{runtime.ScrollTo(selector, 0)}},
			eff,
		}
	}

	eff.Floor = t.minDelay
	var actions []store.Action
	if !s.loading {
		actions = append(actions, runtime.SetResolving(true))
		s.loading = true
	}
	actions = append(actions, runtime.ScrollTo(selector, t.scrollDuration))
	return s, []actor.Effect{effDispatch{Actions: actions}, eff}
}

func resolved(s navState, ev evResolved) (navState, []actor.Effect) {
	if ev.Gen != s.gen {
		log.Debugf("discarding stale resolution of %s", ev.Result.URLKey)
		return s, nil
	}

	var actions []store.Action
	if !ev.SameBase || ev.Result.ComponentName != s.displayed {
		actions = append(actions, runtime.SetResolve(ev.Result))
	}
	s.displayed = ev.Result.ComponentName
	s.inflight = false
	actions, s.loading = settle(actions, s.loading)
	actions = append(actions, router.Resolved())
	return s, []actor.Effect{effDispatch{Actions: actions}}
}

// settle clears an outstanding loading flag.
func settle(actions []store.Action, loading bool) ([]store.Action, bool) {
	if loading {
		actions = append(actions, runtime.SetResolving(false))
	}
	return actions, false
}

func dispatch(actions ...store.Action) []actor.Effect {
	return []actor.Effect{effDispatch{Actions: actions}}
}
