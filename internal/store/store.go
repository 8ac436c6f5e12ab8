// Package store is the dynamic state container.
//
// A Store holds named slices, each owned by a reducer registered by a feature.
// All mutation goes through one serialized dispatch loop; epics observe the
// committed actions and feed new ones back through the same path. Features can
// be added at any time without disturbing state or running epics.
package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/bhandras/shellkit/internal/actor"
	"github.com/bhandras/shellkit/pkg/logger"
)

// ErrStopped is returned once the store has been closed.
var ErrStopped = errors.New("store stopped")

// DispatchFunc sends an action into the store.
type DispatchFunc func(ctx context.Context, a Action) error

// Middleware wraps the dispatch path. It may swallow an action by not calling
// next.
type Middleware func(next DispatchFunc) DispatchFunc

// Options configures New.
type Options struct {
	Deps *Deps
	// InitialState seeds slices before any reducer runs.
	InitialState State
	// Reducers are injected before the first dispatch.
	Reducers map[string]Reducer
	// Epics are started with the store.
	Epics []Epic
	// Features are registered with the store.
	Features []RegisterItem
	// Middleware runs outermost first.
	Middleware []Middleware
	// EnvKey names the slice implementing EnvSource. Defaults to "runtime".
	EnvKey string
	// DisableEpics registers reducers only. Used for per-request server
	// stores that must not start background work.
	DisableEpics bool
}

// Store is the explicit state container built once at the composition root.
type Store struct {
	deps         *Deps
	envKey       string
	disableEpics bool

	loop     *actor.Actor[loopState]
	dispatch DispatchFunc
	epics    *supervisor

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	registered map[string]struct{}
	subs       map[int]chan State
	nextSub    int
	closed     bool
}

// New builds and starts a store.
func New(opts Options) (*Store, error) {
	deps := opts.Deps
	if deps == nil {
		deps = &Deps{}
	}
	envKey := opts.EnvKey
	if envKey == "" {
		envKey = "runtime"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		deps:         deps,
		envKey:       envKey,
		disableEpics: opts.DisableEpics,
		ctx:          ctx,
		cancel:       cancel,
		registered:   make(map[string]struct{}),
		subs:         make(map[int]chan State),
	}
	s.epics = newSupervisor(s)

	initial := loopState{
		state:    maps.Clone(opts.InitialState),
		reducers: make(map[string]Reducer),
	}
	if initial.state == nil {
		initial.state = State{}
	}
	s.loop = actor.New(initial, reduceLoop, &loopRuntime{store: s}, actor.WithHooks(actor.Hooks[loopState]{
		OnInput: func(in actor.Input) {
			if cmd, ok := in.(cmdDispatch); ok {
				logger.Tracef("store: dispatch %s", cmd.action.Type)
			}
		},
		OnPanic: func(r any) {
			logger.Errorf("store: reducer panic: %v", r)
		},
	}))
	s.loop.Start()

	var dispatch DispatchFunc = s.commit
	for i := len(opts.Middleware) - 1; i >= 0; i-- {
		dispatch = opts.Middleware[i](dispatch)
	}
	s.dispatch = countDispatch(dispatch)

	if len(opts.Reducers) > 0 {
		if err := s.inject(ctx, opts.Reducers); err != nil {
			s.Close()
			return nil, err
		}
	}
	for _, e := range opts.Epics {
		s.RegisterEpic(e, e.Name)
	}
	if err := s.Register(ctx, opts.Features...); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Deps returns the capability bag handed to epics.
func (s *Store) Deps() *Deps { return s.deps }

// State returns the latest committed snapshot.
func (s *Store) State() State {
	return s.loop.State().state
}

// Dispatch runs a through the middleware chain and reduces it. It returns
// after the new state is committed and the action is queued for every epic.
func (s *Store) Dispatch(ctx context.Context, a Action) error {
	if a.Type == "" {
		return fmt.Errorf("dispatch: empty action type")
	}
	return s.dispatch(ctx, a)
}

func (s *Store) commit(ctx context.Context, a Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	reply := make(chan State, 1)
	if err := s.loop.Send(ctx, cmdDispatch{action: a, reply: reply}); err != nil {
		return translate(err)
	}
	return s.await(ctx, reply)
}

func (s *Store) inject(ctx context.Context, reducers map[string]Reducer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	reply := make(chan State, 1)
	if err := s.loop.Send(ctx, cmdInject{reducers: maps.Clone(reducers), reply: reply}); err != nil {
		return translate(err)
	}
	return s.await(ctx, reply)
}

func (s *Store) await(ctx context.Context, reply <-chan State) error {
	select {
	case <-reply:
		return nil
	case <-s.loop.Done():
		return ErrStopped
	case <-s.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func translate(err error) error {
	if errors.Is(err, actor.ErrStopped) {
		return ErrStopped
	}
	return err
}

// Register adds features. A name that was already registered is skipped
// without error and without re-injecting anything.
func (s *Store) Register(ctx context.Context, items ...RegisterItem) error {
	for _, item := range items {
		if item.Name == "" {
			return fmt.Errorf("register: feature without a name")
		}
		s.mu.Lock()
		_, seen := s.registered[item.Name]
		if !seen {
			s.registered[item.Name] = struct{}{}
		}
		s.mu.Unlock()
		if seen {
			logger.Tracef("store: %s already registered", item.Name)
			continue
		}

		if len(item.Reducers) > 0 {
			logger.Debugf("store: injecting %d reducers for %s", len(item.Reducers), item.Name)
			if err := s.inject(ctx, item.Reducers); err != nil {
				s.mu.Lock()
				delete(s.registered, item.Name)
				s.mu.Unlock()
				return fmt.Errorf("register %s: %w", item.Name, err)
			}
		}
		if s.disableEpics {
			continue
		}
		logger.Debugf("store: registering %d epics for %s", len(item.Epics), item.Name)
		for _, e := range item.Epics {
			s.epics.start(s.ctx, e, item.Name+"/"+e.Name)
		}
	}
	return nil
}

// Registered reports whether a feature name has been registered.
func (s *Store) Registered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.registered[name]
	return ok
}

// RegisterEpic starts a single epic outside of name deduplication.
func (s *Store) RegisterEpic(epic Epic, label string) *EpicHandle {
	if s.disableEpics {
		h := &EpicHandle{label: label, cancel: func() {}, done: make(chan struct{})}
		close(h.done)
		return h
	}
	return s.epics.start(s.ctx, epic, label)
}

// ActiveEpics reports how many epics are running.
func (s *Store) ActiveEpics() int { return s.epics.len() }

// Mount is a group of epics tied to the lifetime of a lazily mounted feature.
type Mount struct {
	label   string
	cancel  context.CancelFunc
	handles []*EpicHandle
	once    sync.Once
}

// Unmount sends the unmount signal and blocks until every epic in the group
// has returned.
func (m *Mount) Unmount() {
	m.once.Do(func() {
		m.cancel()
		for _, h := range m.handles {
			<-h.Done()
		}
		logger.Debugf("store: unmounted %s", m.label)
	})
}

// Mount registers the reducers of items (deduplicated by name) and starts all
// of their epics as one group with a shared cancellation signal.
func (s *Store) Mount(ctx context.Context, label string, items ...RegisterItem) (*Mount, error) {
	stripped := make([]RegisterItem, 0, len(items))
	var epics []Epic
	for _, item := range items {
		epics = append(epics, item.Epics...)
		stripped = append(stripped, RegisterItem{Name: item.Name, Reducers: item.Reducers})
	}
	if err := s.Register(ctx, stripped...); err != nil {
		return nil, err
	}

	groupCtx, cancel := context.WithCancel(s.ctx)
	m := &Mount{label: label, cancel: cancel}
	if !s.disableEpics {
		for _, e := range epics {
			m.handles = append(m.handles, s.epics.start(groupCtx, e, label+"/"+e.Name))
		}
	}
	return m, nil
}

// Subscribe returns a channel carrying the latest state after every commit.
// Slow readers only ever see the newest snapshot.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan State, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Store) notify(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// Close stops every epic, waits for them and stops the dispatch loop.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.epics.wg.Wait()
	s.loop.Stop()
	<-s.loop.Done()

	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Store) nodeEnv() string {
	return nodeEnvOf(s.State(), s.envKey)
}

func nodeEnvOf(st State, key string) string {
	if src, ok := st[key].(EnvSource); ok {
		return src.NodeEnv()
	}
	return ""
}

func (s *Store) reportFailure(label string, err error) {
	epicFailures.WithLabelValues(label).Inc()
	logger.Errorf("store: epic %s failed: %v", label, err)
	if s.ctx.Err() != nil {
		return
	}
	_ = s.Dispatch(s.ctx, Action{Type: LogType, Payload: []any{"epic " + label + " failed", err.Error()}})
}

type registrarKey struct{}

// WithRegistrar returns a context carrying s for code that registers
// features on demand.
func WithRegistrar(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, registrarKey{}, s)
}

// RegistrarFrom returns the store stored by WithRegistrar.
func RegistrarFrom(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(registrarKey{}).(*Store)
	return s, ok
}
