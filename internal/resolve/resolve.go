// Package resolve maps URL paths to page components.
//
// A path resolves through the static known-route table first and the
// backend's urlResolver query second. Every failure becomes a resolution of
// its own (Error, Offline, NotFound, Outdated) so callers always get a result.
package resolve

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bhandras/shellkit/internal/gql"
	"github.com/bhandras/shellkit/internal/ui"
	"github.com/bhandras/shellkit/pkg/logger"
)

const (
	NotFoundComponent = "NotFound"
	ErrorComponent    = "Error"
	OutdatedComponent = "Outdated"

	// ErrorType and OutdatedType are the entity types of synthetic
	// resolutions.
	ErrorType    = "ERROR"
	OutdatedType = "OUTDATED"
)

// ErrMissingURLResolver means the response had no urlResolver field at all.
var ErrMissingURLResolver = errors.New("resolve: urlResolver missing from response")

var resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shellkit",
	Subsystem: "resolve",
	Name:      "resolutions_total",
	Help:      "Path resolutions by source.",
}, []string{"source"})

var log = logger.Named("resolve")

// ResolvedURL is a path's identity before a component is attached. ID is nil
// when no entity id is known.
type ResolvedURL struct {
	URLKey        string `json:"urlKey"`
	ComponentName string `json:"componentName"`
	ID            *int   `json:"id"`
}

// ResolvedComponent is a ResolvedURL with its component. A nil Component
// means not loaded yet or no match.
type ResolvedComponent struct {
	ResolvedURL
	Component ui.Component `json:"-"`
}

// Props are the root component props for r.
func (r ResolvedComponent) Props() ui.Props {
	return ui.Props{ID: r.ID, Pathname: r.URLKey}
}

// Stub is the empty resolution returned when nothing is known about a path.
func Stub(urlKey string) ResolvedComponent {
	zero := 0
	return ResolvedComponent{ResolvedURL: ResolvedURL{URLKey: urlKey, ID: &zero}}
}

// FetchedData is the raw urlResolver outcome for a path.
type FetchedData struct {
	URLKey string
	Result gql.URLResult
}

func fetchedStub(urlKey, typ string) FetchedData {
	zero := 0
	return FetchedData{URLKey: urlKey, Result: gql.URLResult{
		Present: true,
		Entity:  &gql.EntityURL{Type: typ, ID: &zero, Typename: gql.EntityURLTypename},
	}}
}

// ConvertToResolved maps fetched data onto a component name and id.
func ConvertToResolved(d FetchedData) (ResolvedURL, error) {
	if !d.Result.Present {
		return ResolvedURL{}, ErrMissingURLResolver
	}
	if e := d.Result.Entity; e != nil && e.Type != "" {
		return ResolvedURL{URLKey: d.URLKey, ComponentName: EntityToComponentName(e.Type), ID: e.ID}, nil
	}
	return ResolvedURL{URLKey: d.URLKey, ComponentName: NotFoundComponent}, nil
}

// URLClient is the part of the GraphQL client the resolver needs.
type URLClient interface {
	ResolveURL(ctx context.Context, urlKey, query string) (gql.URLResult, error)
	CachedURL(urlKey, query string) (*gql.EntityURL, bool)
}

// FetchFromKnownOrNetwork looks urlKey up in routes and falls back to the
// urlResolver query.
func FetchFromKnownOrNetwork(ctx context.Context, urlKey string, client URLClient, routes []RouteData, query string) (FetchedData, error) {
	if known, ok := KnownRoute(urlKey, routes); ok {
		log.Debugf("known route %s for %s", known.Type, urlKey)
		resolutions.WithLabelValues("known").Inc()
		return FetchedData{URLKey: urlKey, Result: gql.URLResult{Present: true, Entity: &known}}, nil
	}
	res, err := client.ResolveURL(ctx, urlKey, query)
	if err != nil {
		log.Errorf("urlResolver failed for %s: %v", urlKey, err)
		return FetchedData{}, err
	}
	resolutions.WithLabelValues("network").Inc()
	return FetchedData{URLKey: urlKey, Result: res}, nil
}

// Components are the statically injected special pages.
type Components struct {
	Error    ui.Component
	Offline  ui.Component
	NotFound ui.Component
	// Outdated is optional; without it the loader is asked for "Outdated".
	Outdated ui.Component
}

// Params configures a Resolver.
type Params struct {
	KnownRoutes []RouteData
	// Query overrides gql.URLResolverQuery.
	Query      string
	Components Components
	Loader     ui.Loader
	Client     URLClient
}

// Func is the resolver signature used by the navigation orchestrator.
type Func func(ctx context.Context, pathname string, online, outdated bool) ResolvedComponent

// Resolver resolves paths to components.
type Resolver struct {
	p      Params
	tracer trace.Tracer
}

// New builds a Resolver.
func New(p Params) *Resolver {
	return &Resolver{p: p, tracer: otel.Tracer("github.com/bhandras/shellkit/internal/resolve")}
}

// Func returns r.Resolve as a Func.
func (r *Resolver) Func() Func { return r.Resolve }

// Resolve always returns a result. online and outdated are the values current
// when the navigation started.
func (r *Resolver) Resolve(ctx context.Context, pathname string, online, outdated bool) ResolvedComponent {
	ctx, span := r.tracer.Start(ctx, "resolve.Resolve", trace.WithAttributes(
		attribute.String("url.path", pathname),
		attribute.Bool("online", online),
		attribute.Bool("outdated", outdated),
	))
	defer span.End()

	data := r.input(ctx, pathname, outdated)
	resolved, err := ConvertToResolved(data)
	if err != nil {
		log.Warnf("convert %s: %v", pathname, err)
		resolved, _ = ConvertToResolved(fetchedStub(pathname, ErrorType))
	}
	span.SetAttributes(attribute.String("component", resolved.ComponentName))

	return ResolvedComponent{
		ResolvedURL: resolved,
		Component:   r.component(ctx, resolved.ComponentName, online),
	}
}

func (r *Resolver) input(ctx context.Context, pathname string, outdated bool) FetchedData {
	if outdated {
		log.Debugf("codebase is outdated, skipping resolution of %s", pathname)
		resolutions.WithLabelValues("outdated").Inc()
		return fetchedStub(pathname, OutdatedType)
	}
	data, err := FetchFromKnownOrNetwork(ctx, pathname, r.p.Client, r.p.KnownRoutes, r.p.Query)
	if err != nil {
		resolutions.WithLabelValues("error").Inc()
		return fetchedStub(pathname, ErrorType)
	}
	return data
}

func (r *Resolver) component(ctx context.Context, name string, online bool) ui.Component {
	c := r.p.Components
	switch name {
	case ErrorComponent:
		if !online && c.Offline != nil {
			return c.Offline
		}
		return c.Error
	case NotFoundComponent:
		return c.NotFound
	case OutdatedComponent:
		if c.Outdated != nil {
			return c.Outdated
		}
	}
	if r.p.Loader == nil {
		return c.Error
	}
	cmp, err := r.p.Loader(ctx, name)
	if err != nil || cmp == nil {
		log.Errorf("failed to load component %s: %v", name, err)
		return c.Error
	}
	return cmp
}

// ResolveWeak resolves from already known data only: the route table, the
// query cache and the synchronous registry. Anything else yields Stub.
func (r *Resolver) ResolveWeak(pathname string, registry *ui.Registry) ResolvedComponent {
	var entity *gql.EntityURL
	if known, ok := KnownRoute(pathname, r.p.KnownRoutes); ok {
		entity = &known
	} else if r.p.Client != nil {
		entity, _ = r.p.Client.CachedURL(pathname, r.p.Query)
	}
	if entity == nil {
		log.Debugf("weak resolve: nothing cached for %s", pathname)
		return Stub(pathname)
	}

	resolved, err := ConvertToResolved(FetchedData{URLKey: pathname, Result: gql.URLResult{Present: true, Entity: entity}})
	if err != nil {
		return Stub(pathname)
	}
	cmp, ok := registry.Lookup(resolved.ComponentName)
	if !ok {
		log.Debugf("weak resolve: %s is not in the initial bundle", resolved.ComponentName)
		return Stub(pathname)
	}
	return ResolvedComponent{ResolvedURL: resolved, Component: cmp}
}
