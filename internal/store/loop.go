package store

import (
	"context"
	"maps"

	"github.com/bhandras/shellkit/internal/actor"
)

// loopState is owned by the dispatch loop.
type loopState struct {
	state    State
	reducers map[string]Reducer
}

type cmdDispatch struct {
	actor.InputBase
	action Action
	reply  chan State
}

type cmdInject struct {
	actor.InputBase
	reducers map[string]Reducer
	reply    chan State
}

// effCommit publishes a committed state. Inject commits are not delivered to
// epics.
type effCommit struct {
	actor.EffectBase
	action  Action
	state   State
	publish bool
	reply   chan State
}

func reduceLoop(s loopState, in actor.Input) (loopState, []actor.Effect) {
	switch in := in.(type) {
	case cmdDispatch:
		next := make(State, len(s.state))
		maps.Copy(next, s.state)
		for key, r := range s.reducers {
			next[key] = r(s.state[key], in.action)
		}
		s.state = next
		return s, []actor.Effect{effCommit{action: in.action, state: next, publish: true, reply: in.reply}}

	case cmdInject:
		reducers := maps.Clone(s.reducers)
		next := maps.Clone(s.state)
		for key, r := range in.reducers {
			reducers[key] = r
			next[key] = r(s.state[key], Action{Type: ActionInject})
		}
		s.reducers = reducers
		s.state = next
		return s, []actor.Effect{effCommit{action: Action{Type: ActionInject}, state: next, reply: in.reply}}
	}
	return s, nil
}

type loopRuntime struct {
	store *Store
}

func (r *loopRuntime) HandleEffects(_ context.Context, effects []actor.Effect, _ func(actor.Input)) {
	for _, eff := range effects {
		commit, ok := eff.(effCommit)
		if !ok {
			continue
		}
		if commit.publish {
			r.store.epics.deliver(commit.action, nodeEnvOf(commit.state, r.store.envKey))
		}
		r.store.notify(commit.state)
		if commit.reply != nil {
			commit.reply <- commit.state
		}
	}
}

func (r *loopRuntime) Stop() {}
