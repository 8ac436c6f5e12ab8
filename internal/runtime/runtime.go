// Package runtime is the core feature every application registers: resolution
// state, connectivity, staleness of the running build and the app environment.
package runtime

import (
	"maps"
	"time"

	"github.com/bhandras/shellkit/internal/gql"
	"github.com/bhandras/shellkit/internal/resolve"
	"github.com/bhandras/shellkit/internal/store"
)

// Slice is the state key owned by the runtime feature.
const Slice = "runtime"

const (
	SetResolvingType = "Runtime/SetResolving"
	SetResolveType   = "Runtime/SetResolve"
	WriteURLsType    = "Runtime/WriteUrls"
	LogType          = store.LogType
	SetOutdatedType  = "Runtime/SetOutdated"
	SetOnlineType    = "Runtime/SetOnline"
	ReloadType       = "Runtime/Reload"
	ScrollTopType    = "Runtime/ScrollTop"
	SetEnvType       = "Runtime/SetEnv"
)

// Env keys.
const (
	EnvNodeEnv       = "NODE_ENV"
	EnvVersion       = "VERSION"
	EnvDomain        = "DOMAIN"
	EnvServiceWorker = "SERVICE_WORKER"
)

// Env is the application environment. Missing keys are unset.
type Env map[string]string

// State is the runtime slice.
type State struct {
	Resolving bool                      `json:"resolving"`
	Resolve   resolve.ResolvedComponent `json:"resolve"`
	Online    bool                      `json:"online"`
	Outdated  bool                      `json:"outdated"`
	Env       Env                       `json:"env"`
}

// NodeEnv lets the store gate epics on the environment.
func (s State) NodeEnv() string { return s.Env[EnvNodeEnv] }

// InitialState is the slice before anything was dispatched.
func InitialState() State {
	return State{
		Online: true,
		Env:    Env{},
		Resolve: resolve.ResolvedComponent{ResolvedURL: resolve.ResolvedURL{
			ComponentName: "loading",
			URLKey:        "string",
		}},
	}
}

// ScrollTop is the payload of ScrollTopType.
type ScrollTop struct {
	Duration time.Duration `json:"duration"`
	Selector string        `json:"selector"`
}

// Reduce is the runtime reducer.
func Reduce(s State, a store.Action) State {
	switch a.Type {
	case SetResolvingType:
		if v, ok := a.Payload.(bool); ok {
			s.Resolving = v
		}
	case SetResolveType:
		if v, ok := a.Payload.(resolve.ResolvedComponent); ok {
			s.Resolve = v
		}
	case SetOutdatedType:
		s.Outdated = true
	case SetOnlineType:
		if v, ok := a.Payload.(bool); ok {
			s.Online = v
		}
	case SetEnvType:
		if v, ok := a.Payload.(Env); ok {
			next := make(Env, len(s.Env)+len(v))
			maps.Copy(next, s.Env)
			maps.Copy(next, v)
			s.Env = next
		}
	}
	return s
}

// Reducer wraps Reduce for registration.
func Reducer() store.Reducer {
	return store.SliceReducer(InitialState(), Reduce)
}

// FromState returns the runtime slice of st, or the initial state.
func FromState(st store.State) State {
	if s, ok := store.Slice[State](st, Slice); ok {
		return s
	}
	return InitialState()
}

func SetResolving(v bool) store.Action {
	return store.Action{Type: SetResolvingType, Payload: v}
}

func SetResolve(r resolve.ResolvedComponent) store.Action {
	return store.Action{Type: SetResolveType, Payload: r}
}

// WriteURLs asks for the given entries to be written into the url cache.
func WriteURLs(entries []gql.URLEntry) store.Action {
	return store.Action{Type: WriteURLsType, Payload: entries}
}

func Log(args ...any) store.Action {
	return store.Action{Type: LogType, Payload: args}
}

func SetOutdated() store.Action {
	return store.Action{Type: SetOutdatedType}
}

func SetOnline(v bool) store.Action {
	return store.Action{Type: SetOnlineType, Payload: v}
}

func Reload() store.Action {
	return store.Action{Type: ReloadType}
}

func ScrollTo(selector string, d time.Duration) store.Action {
	return store.Action{Type: ScrollTopType, Payload: ScrollTop{Duration: d, Selector: selector}}
}

func SetEnv(env Env) store.Action {
	return store.Action{Type: SetEnvType, Payload: env}
}
