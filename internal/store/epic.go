package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"github.com/bhandras/shellkit/pkg/logger"
)

// StateReader exposes the latest committed state.
type StateReader interface {
	State() State
}

// Emitter feeds an action back into the store's dispatch path.
type Emitter func(Action)

// EpicFunc is a long-lived side-effect handler. It receives every action
// dispatched after it was added, in dispatch order, and returns when ctx is
// canceled or actions is closed. A returned error is reported as a LogType
// action.
type EpicFunc func(ctx context.Context, actions <-chan Action, state StateReader, deps *Deps, emit Emitter) error

// Epic is an EpicFunc plus metadata.
type Epic struct {
	Name string
	// SkipEnv lists NODE_ENV values under which the epic is inactive.
	SkipEnv []string
	Run     EpicFunc
}

func (e Epic) gated(env string) bool {
	return env != "" && slices.Contains(e.SkipEnv, env)
}

// ForEach builds an epic body that calls fn for every action whose type is in
// types. An error from fn is converted into a LogType action and the epic
// keeps running.
func ForEach(fn func(ctx context.Context, a Action, state StateReader, deps *Deps, emit Emitter) error, types ...string) EpicFunc {
	return func(ctx context.Context, actions <-chan Action, state StateReader, deps *Deps, emit Emitter) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case a, ok := <-actions:
				if !ok {
					return nil
				}
				if len(types) > 0 && !slices.Contains(types, a.Type) {
					continue
				}
				if err := fn(ctx, a, state, deps, emit); err != nil {
					emit(Action{Type: LogType, Payload: []any{a.Type, err.Error()}})
				}
			}
		}
	}
}

// EpicHandle controls one running epic.
type EpicHandle struct {
	id     string
	label  string
	cancel context.CancelFunc
	done   chan struct{}
}

// ID is the handle's unique id.
func (h *EpicHandle) ID() string { return h.id }

// Label is the name the epic was registered under.
func (h *EpicHandle) Label() string { return h.label }

// Done is closed after the epic and its mailbox have exited.
func (h *EpicHandle) Done() <-chan struct{} { return h.done }

// Stop cancels the epic and waits for it to release its goroutines. It must
// not be called from inside the epic it stops.
func (h *EpicHandle) Stop() {
	h.cancel()
	<-h.done
}

// mailbox is an unbounded FIFO so a slow epic never blocks the dispatcher.
type mailbox struct {
	mu     sync.Mutex
	queue  []Action
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(a Action) {
	m.mu.Lock()
	m.queue = append(m.queue, a)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) pop() (Action, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Action{}, false
	}
	a := m.queue[0]
	m.queue[0] = Action{}
	m.queue = m.queue[1:]
	return a, true
}

// pump moves queued actions into out until ctx ends, then closes out.
func (m *mailbox) pump(ctx context.Context, out chan<- Action) {
	defer close(out)
	for {
		a, ok := m.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-m.signal:
				continue
			}
		}
		select {
		case out <- a:
		case <-ctx.Done():
			return
		}
	}
}

type runningEpic struct {
	epic  Epic
	label string
	inbox *mailbox
}

// supervisor owns the live epic set.
type supervisor struct {
	store *Store

	mu    sync.RWMutex
	epics map[string]*runningEpic
	wg    sync.WaitGroup
}

func newSupervisor(s *Store) *supervisor {
	return &supervisor{store: s, epics: make(map[string]*runningEpic)}
}

// deliver fans a committed action out to every epic that is not gated under
// env. It never blocks.
func (sv *supervisor) deliver(a Action, env string) {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	for _, re := range sv.epics {
		if re.epic.gated(env) {
			continue
		}
		re.inbox.push(a)
	}
}

func (sv *supervisor) len() int {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return len(sv.epics)
}

func (sv *supervisor) start(parent context.Context, epic Epic, label string) *EpicHandle {
	if label == "" {
		label = epic.Name
	}
	if label == "" {
		label = "anonymous"
	}
	ctx, cancel := context.WithCancel(parent)
	h := &EpicHandle{
		id:     uuid.NewString(),
		label:  label,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	re := &runningEpic{epic: epic, label: label, inbox: newMailbox()}

	sv.mu.Lock()
	sv.epics[h.id] = re
	sv.mu.Unlock()
	sv.wg.Add(1)

	actions := make(chan Action)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		re.inbox.pump(ctx, actions)
	}()

	emit := func(a Action) {
		if ctx.Err() != nil {
			return
		}
		if env := sv.store.nodeEnv(); epic.gated(env) {
			logger.Tracef("store: drop %s from %s (gated by %s)", a.Type, label, env)
			return
		}
		if err := sv.store.Dispatch(ctx, a); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debugf("store: emit %s from %s: %v", a.Type, label, err)
		}
	}

	go func() {
		defer sv.wg.Done()
		defer close(h.done)

		var err error
		if r := panics.Try(func() {
			err = epic.Run(ctx, actions, sv.store, sv.store.deps, emit)
		}); r != nil {
			err = fmt.Errorf("panic: %w", r.AsError())
		}

		sv.mu.Lock()
		delete(sv.epics, h.id)
		sv.mu.Unlock()
		cancel()
		<-pumpDone

		if err != nil && !errors.Is(err, context.Canceled) {
			sv.store.reportFailure(label, err)
		}
	}()

	logger.Debugf("store: epic %s started (%s)", label, h.id)
	return h
}
