// Package router holds the router slice, history events and the set of
// registered route bases.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bhandras/shellkit/internal/store"
	"github.com/bhandras/shellkit/pkg/logger"
)

// Slice is the state key owned by the router feature.
const Slice = "router"

const (
	// ActionChange is dispatched for every history event.
	ActionChange = "AsyncRouter.CHANGE"
	// ActionResolved marks the end of a navigation.
	ActionResolved = "AsyncRouter.Resolved"
	// ActionInternal asks the history to push or replace.
	ActionInternal = "AsyncRouter.@@INTERNAL"
)

// HistoryAction is how a location was reached.
type HistoryAction string

const (
	Push    HistoryAction = "PUSH"
	Replace HistoryAction = "REPLACE"
	Pop     HistoryAction = "POP"
)

// Location is a parsed URL plus history state.
type Location struct {
	Pathname string         `json:"pathname"`
	Search   string         `json:"search"`
	Hash     string         `json:"hash"`
	State    map[string]any `json:"state,omitempty"`
}

// ParseLocation splits a raw request path into a Location.
func ParseLocation(raw string) Location {
	var loc Location
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		loc.Hash = raw[i:]
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		loc.Search = raw[i:]
		raw = raw[:i]
	}
	loc.Pathname = raw
	return loc
}

// ScrollTarget is the selector from history state, or "body".
func (l Location) ScrollTarget() string {
	if s, ok := l.State["scrollTo"].(string); ok && s != "" {
		return s
	}
	return "body"
}

// FirstSegment is the first path segment without the leading slash.
func (l Location) FirstSegment() string {
	p := strings.TrimPrefix(l.Pathname, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

// HistoryEvent is one history transition.
type HistoryEvent struct {
	Location         Location      `json:"location"`
	Action           HistoryAction `json:"action"`
	IsFirstRendering bool          `json:"isFirstRendering"`
}

// State is the router slice.
type State struct {
	Location  Location      `json:"location"`
	Action    HistoryAction `json:"action"`
	Resolving bool          `json:"resolving"`
}

// Reduce is the router slice reducer.
func Reduce(s State, a store.Action) State {
	switch a.Type {
	case ActionChange:
		ev, ok := a.Payload.(HistoryEvent)
		if !ok {
			return s
		}
		s.Location = ev.Location
		s.Action = ev.Action
		s.Resolving = true
	case ActionResolved:
		s.Resolving = false
	}
	return s
}

// Change wraps a history event in an action.
func Change(ev HistoryEvent) store.Action {
	return store.Action{Type: ActionChange, Payload: ev}
}

// Resolved is the navigation completion action.
func Resolved() store.Action {
	return store.Action{Type: ActionResolved}
}

// Command is the payload of ActionInternal.
type Command struct {
	Method HistoryAction
	Path   string
	State  map[string]any
}

// PushTo asks the history to push path.
func PushTo(path string, state map[string]any) store.Action {
	return store.Action{Type: ActionInternal, Payload: Command{Method: Push, Path: path, State: state}}
}

// ReplaceWith asks the history to replace the current entry with path.
func ReplaceWith(path string, state map[string]any) store.Action {
	return store.Action{Type: ActionInternal, Payload: Command{Method: Replace, Path: path, State: state}}
}

// History is the navigation backend.
type History interface {
	Push(path string, state map[string]any) error
	Replace(path string, state map[string]any) error
}

// Middleware executes ActionInternal against h instead of reducing it.
func Middleware(h History) store.Middleware {
	return func(next store.DispatchFunc) store.DispatchFunc {
		return func(ctx context.Context, a store.Action) error {
			if a.Type != ActionInternal {
				return next(ctx, a)
			}
			cmd, ok := a.Payload.(Command)
			if !ok {
				return fmt.Errorf("router: bad %s payload %T", ActionInternal, a.Payload)
			}
			logger.Debugf("router: %s %s", cmd.Method, cmd.Path)
			switch cmd.Method {
			case Push:
				return h.Push(cmd.Path, cmd.State)
			case Replace:
				return h.Replace(cmd.Path, cmd.State)
			default:
				return fmt.Errorf("router: unsupported method %q", cmd.Method)
			}
		}
	}
}

// Register returns the router feature.
func Register() store.RegisterItem {
	return store.RegisterItem{
		Name: "router",
		Reducers: map[string]store.Reducer{
			Slice: store.SliceReducer(State{}, Reduce),
		},
	}
}

// Bases is the set of base segments owned by mounted route groups.
type Bases struct {
	mu  sync.RWMutex
	set map[string]int
}

// NewBases returns an empty set.
func NewBases() *Bases {
	return &Bases{set: make(map[string]int)}
}

// Register adds base (with or without a leading slash) and returns a func
// that removes it again.
func (b *Bases) Register(base string) func() {
	base = strings.TrimPrefix(base, "/")
	b.mu.Lock()
	b.set[base]++
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.set[base] <= 1 {
				delete(b.set, base)
				return
			}
			b.set[base]--
		})
	}
}

// Has reports whether base is registered. A nil set has nothing.
func (b *Bases) Has(base string) bool {
	if b == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.set[base] > 0
}
