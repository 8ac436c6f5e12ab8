package resolve

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/shellkit/internal/gql"
	"github.com/bhandras/shellkit/internal/ui"
)

type fakeClient struct {
	calls  atomic.Int32
	result gql.URLResult
	err    error
	cached map[string]*gql.EntityURL
}

func (f *fakeClient) ResolveURL(_ context.Context, _, _ string) (gql.URLResult, error) {
	f.calls.Add(1)
	return f.result, f.err
}

func (f *fakeClient) CachedURL(urlKey, _ string) (*gql.EntityURL, bool) {
	e, ok := f.cached[urlKey]
	return e, ok
}

var (
	errorPage    = ui.Static("error")
	offlinePage  = ui.Static("offline")
	notFoundPage = ui.Static("not found")
	productPage  = ui.Static("product")
)

func requireRenders(t *testing.T, want, got ui.Component) {
	t.Helper()
	require.NotNil(t, got)
	w, err := ui.RenderToString(context.Background(), want, ui.Props{})
	require.NoError(t, err)
	g, err := ui.RenderToString(context.Background(), got, ui.Props{})
	require.NoError(t, err)
	require.Equal(t, w, g)
}

func newResolver(client URLClient, routes ...RouteData) *Resolver {
	return New(Params{
		KnownRoutes: routes,
		Client:      client,
		Components: Components{
			Error:    errorPage,
			Offline:  offlinePage,
			NotFound: notFoundPage,
		},
		Loader: ui.NewRegistry(map[string]ui.Component{"ProductDetail": productPage}).Loader(),
	})
}

func TestEntityToComponentName(t *testing.T) {
	cases := map[string]string{
		"PRODUCT_DETAIL": "ProductDetail",
		"CMS_PAGE":       "CmsPage",
		"ERROR":          "Error",
		"OUTDATED":       "Outdated",
		"category":       "Category",
	}
	for in, want := range cases {
		require.Equal(t, want, EntityToComponentName(in), in)
	}
}

func TestKnownRouteSkipsNetwork(t *testing.T) {
	client := &fakeClient{}
	r := newResolver(client,
		PredicateRoute(func(p string) bool { return strings.HasSuffix(p, ".html") }, "CMS_PAGE", 3),
		PrefixRoute("/p/", "PRODUCT_DETAIL", 7),
	)

	got := r.Resolve(context.Background(), "/p/shoes", true, false)
	require.Equal(t, "ProductDetail", got.ComponentName)
	require.Equal(t, 7, *got.ID)
	requireRenders(t, productPage, got.Component)
	require.Equal(t, int32(0), client.calls.Load())

	_, ok := KnownRoute("/about.html", r.p.KnownRoutes)
	require.True(t, ok)
}

func TestKnownRouteOrder(t *testing.T) {
	routes := []RouteData{
		PrefixRoute("/p/", "PRODUCT_DETAIL", 7),
		PrefixRoute("", "CMS_PAGE", 1),
		PrefixRoute("/never", "CATEGORY", 2),
	}

	got, ok := KnownRoute("/p/shoes", routes)
	require.True(t, ok)
	require.Equal(t, "PRODUCT_DETAIL", got.Type)

	// The empty prefix catches everything after it.
	for _, path := range []string{"/", "/never", "/about"} {
		got, ok = KnownRoute(path, routes)
		require.True(t, ok, path)
		require.Equal(t, "CMS_PAGE", got.Type, path)
	}

	_, ok = KnownRoute("/about", routes[:1])
	require.False(t, ok)
}

func TestNullEntityIsNotFound(t *testing.T) {
	client := &fakeClient{result: gql.URLResult{Present: true}}
	got := newResolver(client).Resolve(context.Background(), "/nope", true, false)

	require.Equal(t, NotFoundComponent, got.ComponentName)
	require.Nil(t, got.ID)
	requireRenders(t, notFoundPage, got.Component)
	require.Equal(t, "/nope", got.URLKey)
}

func TestNetworkErrorDependsOnOnline(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	r := newResolver(client)

	online := r.Resolve(context.Background(), "/x", true, false)
	require.Equal(t, ErrorComponent, online.ComponentName)
	require.Equal(t, 0, *online.ID)
	requireRenders(t, errorPage, online.Component)

	offline := r.Resolve(context.Background(), "/x", false, false)
	require.Equal(t, ErrorComponent, offline.ComponentName)
	requireRenders(t, offlinePage, offline.Component)
}

func TestMissingFieldIsError(t *testing.T) {
	client := &fakeClient{result: gql.URLResult{}}
	got := newResolver(client).Resolve(context.Background(), "/x", true, false)
	require.Equal(t, ErrorComponent, got.ComponentName)
	requireRenders(t, errorPage, got.Component)
}

func TestOutdatedNeverHitsNetwork(t *testing.T) {
	client := &fakeClient{}
	outdatedPage := ui.Static("reload")
	r := New(Params{
		Client:     client,
		Components: Components{Error: errorPage, Outdated: outdatedPage},
	})

	got := r.Resolve(context.Background(), "/anything", true, true)
	require.Equal(t, OutdatedComponent, got.ComponentName)
	require.Equal(t, 0, *got.ID)
	requireRenders(t, outdatedPage, got.Component)
	require.Equal(t, int32(0), client.calls.Load())
}

func TestLoaderFailureFallsBackToError(t *testing.T) {
	id := 9
	client := &fakeClient{result: gql.URLResult{Present: true, Entity: &gql.EntityURL{Type: "CATEGORY", ID: &id}}}
	got := newResolver(client).Resolve(context.Background(), "/c/bags", true, false)

	require.Equal(t, "Category", got.ComponentName)
	require.Equal(t, 9, *got.ID)
	requireRenders(t, errorPage, got.Component)
}

func TestResolveWeak(t *testing.T) {
	id := 4
	client := &fakeClient{cached: map[string]*gql.EntityURL{
		"/p/bag": {Type: "PRODUCT_DETAIL", ID: &id},
		"/c/all": {Type: "CATEGORY", ID: &id},
	}}
	r := newResolver(client)
	registry := ui.NewRegistry(map[string]ui.Component{"ProductDetail": productPage})

	empty := r.ResolveWeak("/unknown", registry)
	require.Equal(t, 0, *empty.ID)
	require.Nil(t, empty.Component)
	require.Equal(t, "", empty.ComponentName)

	hit := r.ResolveWeak("/p/bag", registry)
	require.Equal(t, "ProductDetail", hit.ComponentName)
	require.Equal(t, 4, *hit.ID)
	requireRenders(t, productPage, hit.Component)

	// Cached, but not in the initial bundle.
	miss := r.ResolveWeak("/c/all", registry)
	require.Nil(t, miss.Component)
	require.Equal(t, "", miss.ComponentName)
	require.Equal(t, int32(0), client.calls.Load())
}

func TestPropsCarryIDAndPath(t *testing.T) {
	id := 1
	rc := ResolvedComponent{ResolvedURL: ResolvedURL{URLKey: "/a", ID: &id}}
	require.Equal(t, ui.Props{ID: &id, Pathname: "/a"}, rc.Props())
}
