package ssr

import (
	"github.com/bhandras/shellkit/internal/gql"
	"github.com/bhandras/shellkit/internal/router"
	"github.com/bhandras/shellkit/internal/runtime"
	"github.com/bhandras/shellkit/internal/storage"
	"github.com/bhandras/shellkit/internal/store"
)

// SetupParams configure the per-request store.
type SetupParams struct {
	Client  *gql.Client
	RawPath string
	Domain  string
	Version string
	// Reducers and State extend the runtime and router slices.
	Reducers map[string]store.Reducer
	State    store.State
	// Values are merged into Deps.Values next to the client.
	Values map[string]any
	// Storage backs Deps.Storage, shared by every request. Nil discards.
	// Cookie storage belongs to the visitor and always discards here.
	Storage store.KV
}

// ClientKey is the Deps.Values key of the request's GraphQL client.
const ClientKey = "client"

// SetupStore builds the store a request renders against. It never starts
// epics.
func SetupStore(p SetupParams) (*store.Store, error) {
	rt := runtime.InitialState()
	rt.Env = runtime.Env{
		runtime.EnvVersion: p.Version,
		runtime.EnvDomain:  p.Domain,
		runtime.EnvNodeEnv: "production",
	}
	loc := router.ParseLocation(p.RawPath)
	loc.Hash = ""

	state := store.State{
		runtime.Slice: rt,
		router.Slice:  router.State{Location: loc},
	}
	for k, v := range p.State {
		state[k] = v
	}

	reducers := map[string]store.Reducer{
		runtime.Slice: runtime.Reducer(),
		router.Slice:  store.SliceReducer(router.State{}, router.Reduce),
	}
	for k, r := range p.Reducers {
		reducers[k] = r
	}

	values := map[string]any{ClientKey: p.Client}
	for k, v := range p.Values {
		values[k] = v
	}

	local := p.Storage
	if local == nil {
		local = storage.Noop{}
	}

	return store.New(store.Options{
		Deps: &store.Deps{
			Storage:       local,
			CookieStorage: storage.Noop{},
			Values:        values,
		},
		InitialState: state,
		Reducers:     reducers,
		DisableEpics: true,
	})
}
