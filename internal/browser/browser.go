// Package browser boots the client side of the application from a server
// rendered document: it restores the GraphQL cache, picks up the page the
// server already rendered and starts the runtime, router, storage and
// navigation features.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bhandras/shellkit/internal/actor"
	"github.com/bhandras/shellkit/internal/gql"
	"github.com/bhandras/shellkit/internal/navigation"
	"github.com/bhandras/shellkit/internal/resolve"
	"github.com/bhandras/shellkit/internal/router"
	"github.com/bhandras/shellkit/internal/runtime"
	"github.com/bhandras/shellkit/internal/storage"
	"github.com/bhandras/shellkit/internal/store"
	"github.com/bhandras/shellkit/internal/ui"
	"github.com/bhandras/shellkit/internal/window"
	"github.com/bhandras/shellkit/pkg/logger"
)

var log = logger.Named("browser")

// PageLoad is the placeholder location the navigation handler starts from
// when the server rendered nothing the client can reuse.
const PageLoad = "PAGE_LOAD"

// History is a navigation backend that also publishes its transitions.
type History interface {
	router.History
	Events() <-chan router.HistoryEvent
	Location() router.Location
}

// Params configure Init.
type Params struct {
	// Document is the server rendered HTML.
	Document []byte
	History  History

	Backend    string
	Links      []gql.Link
	HTTP       *http.Client
	MaxElapsed time.Duration

	Components  resolve.Components
	Loader      ui.Loader
	KnownRoutes []resolve.RouteData
	URLQuery    string
	// Registry holds the components shipped in the initial bundle.
	Registry *ui.Registry

	Policy         navigation.Policy
	Bases          *router.Bases
	MinDelay       time.Duration
	ScrollDuration time.Duration

	// Env is the build environment (NODE_ENV, SERVICE_WORKER, ...).
	Env           runtime.Env
	Window        store.Window
	Storage       store.KV
	CookieStorage store.KV
	Versions      runtime.VersionSource
	Clock         actor.Clock

	Features []store.RegisterItem
	// State seeds additional slices.
	State store.State
}

// App is a running client.
type App struct {
	Store    *store.Store
	Client   *gql.Client
	Resolver *resolve.Resolver
	// Initial is the page the server rendered, or a stub when the client has
	// to resolve it itself.
	Initial resolve.ResolvedComponent

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Init boots the client.
func Init(p Params) (*App, error) {
	if p.History == nil {
		return nil, errors.New("browser: no history")
	}

	client, err := gql.New(gql.Options{
		Backend:    p.Backend,
		Links:      p.Links,
		HTTP:       p.HTTP,
		MaxElapsed: p.MaxElapsed,
	})
	if err != nil {
		return nil, err
	}
	var cache map[string]json.RawMessage
	if err := json.Unmarshal(ReadJSON(p.Document, StateElement), &cache); err != nil {
		log.Warnf("ignoring client state: %v", err)
	}
	client.Restore(cache)

	var appEnv runtime.Env
	if err := json.Unmarshal(ReadJSON(p.Document, EnvElement), &appEnv); err != nil {
		log.Warnf("ignoring app env: %v", err)
	}

	resolver := resolve.New(resolve.Params{
		KnownRoutes: p.KnownRoutes,
		Query:       p.URLQuery,
		Components:  p.Components,
		Loader:      p.Loader,
		Client:      client,
	})

	loc := p.History.Location()
	initial := resolver.ResolveWeak(loc.Pathname, p.Registry)

	rt := runtime.InitialState()
	rt.Env = runtime.Env{}
	for k, v := range appEnv {
		rt.Env[k] = v
	}
	var startFrom *router.Location
	if initial.Component != nil {
		rt.Resolve = initial
	} else {
		startFrom = &router.Location{Pathname: PageLoad}
	}

	state := store.State{
		runtime.Slice: rt,
		router.Slice:  router.State{Location: router.Location{Pathname: loc.Pathname, Search: loc.Search}},
	}
	for k, v := range p.State {
		state[k] = v
	}

	deps := &store.Deps{
		Storage:       p.Storage,
		CookieStorage: p.CookieStorage,
		Window:        p.Window,
		Env:           p.Env,
		Values:        map[string]any{"client": client},
	}
	if deps.Storage == nil {
		deps.Storage = storage.Noop{}
	}
	if deps.CookieStorage == nil {
		deps.CookieStorage = storage.Noop{}
	}
	if deps.Window == nil {
		deps.Window = window.NewHeadless()
	}
	if p.Clock != nil {
		deps.Clock = p.Clock
	}

	nav := navigation.Epic(navigation.Config{
		Resolve:        resolver.Func(),
		Policy:         p.Policy,
		Bases:          p.Bases,
		MinDelay:       p.MinDelay,
		ScrollDuration: p.ScrollDuration,
		StartFrom:      startFrom,
	})
	features := []store.RegisterItem{
		runtime.Register(runtime.Options{
			URLWriter: func(entries []gql.URLEntry) error {
				return client.WriteURLs(entries, p.URLQuery)
			},
			Versions: p.Versions,
			Epics:    []store.Epic{nav},
		}),
		router.Register(),
		storage.Register(),
	}

	st, err := store.New(store.Options{
		Deps:         deps,
		InitialState: state,
		Middleware:   []store.Middleware{router.Middleware(p.History)},
		Features:     append(features, p.Features...),
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("browser: build store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Store:    st,
		Client:   client,
		Resolver: resolver,
		Initial:  initial,
		cancel:   cancel,
	}

	if initial.Component == nil {
		log.Debugf("nothing reusable for %s, resolving on load", loc.Pathname)
		if err := st.Dispatch(ctx, router.Change(router.HistoryEvent{Location: loc, Action: router.Replace})); err != nil {
			app.Close()
			return nil, err
		}
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := router.Pump(ctx, st, p.History.Events()); err != nil {
			log.Warnf("history pump stopped: %v", err)
		}
	}()
	return app, nil
}

// Close stops the history pump, the store and the client.
func (a *App) Close() {
	a.once.Do(func() {
		a.cancel()
		a.wg.Wait()
		a.Store.Close()
		a.Client.Close()
	})
}
