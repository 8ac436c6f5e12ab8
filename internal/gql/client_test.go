package gql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	srv   *httptest.Server
	calls atomic.Int32
}

// newBackend serves urlResolver answers keyed by urlKey. A missing key answers
// null.
func newBackend(t *testing.T, answers map[string]string) *backend {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/graphql", r.URL.Path)

		var vars map[string]string
		_ = json.Unmarshal([]byte(r.URL.Query().Get("variables")), &vars)
		switch body, ok := answers[vars["urlKey"]]; {
		case vars["urlKey"] == "/boom":
			_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"resolver exploded","path":["urlResolver"]}]}`))
		case ok:
			_, _ = w.Write([]byte(`{"data":{"urlResolver":` + body + `}}`))
		default:
			_, _ = w.Write([]byte(`{"data":{"urlResolver":null}}`))
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func newClient(t *testing.T, backendURL string, links ...Link) *Client {
	t.Helper()
	c, err := New(Options{Backend: backendURL, Links: links, MaxElapsed: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestResolveURLCachesResponses(t *testing.T) {
	b := newBackend(t, map[string]string{
		"/shoes": `{"id":12,"type":"PRODUCT_DETAIL","__typename":"EntityUrl"}`,
	})
	c := newClient(t, b.srv.URL)
	ctx := context.Background()

	res, err := c.ResolveURL(ctx, "/shoes", "")
	require.NoError(t, err)
	require.True(t, res.Present)
	require.Equal(t, "PRODUCT_DETAIL", res.Entity.Type)
	require.Equal(t, 12, *res.Entity.ID)

	_, err = c.ResolveURL(ctx, "/shoes", "")
	require.NoError(t, err)
	require.Equal(t, int32(1), b.calls.Load())

	cached, ok := c.CachedURL("/shoes", "")
	require.True(t, ok)
	require.Equal(t, "PRODUCT_DETAIL", cached.Type)
}

func TestCollectorNotFoundAndRedirect(t *testing.T) {
	b := newBackend(t, map[string]string{
		"/old": `{"id":0,"type":"REDIRECT","redirect_type":301,"redirect_url":"/new","__typename":"EntityUrl"}`,
	})
	var errs Collector
	c := newClient(t, b.srv.URL, errs.Links()...)
	ctx := context.Background()

	res, err := c.ResolveURL(ctx, "/missing", "")
	require.NoError(t, err)
	require.True(t, res.Present)
	require.Nil(t, res.Entity)

	_, err = c.ResolveURL(ctx, "/old", "")
	require.NoError(t, err)

	got := errs.Errors()
	require.Len(t, got, 2)
	require.Equal(t, Error{Type: NotFound, Pathname: "/missing"}, got[0])

	redirect, ok := errs.Redirect()
	require.True(t, ok)
	require.Equal(t, 301, redirect.Status)
	require.Equal(t, "/new", redirect.URL)
}

func TestCollectorGraphQLAndNetworkErrors(t *testing.T) {
	b := newBackend(t, nil)
	var errs Collector
	c := newClient(t, b.srv.URL, errs.Links()...)
	ctx := context.Background()

	_, err := c.ResolveURL(ctx, "/boom", "")
	require.Error(t, err)

	dead := newClient(t, "http://127.0.0.1:1", errs.Links()...)
	_, err = dead.ResolveURL(ctx, "/anything", "")
	require.Error(t, err)

	got := errs.Errors()
	require.Len(t, got, 2)
	require.Equal(t, GqlError, got[0].Type)
	require.Equal(t, "resolver exploded", got[0].Message)
	require.Equal(t, ResolveURLOperation, got[0].Operation)
	require.Equal(t, Network, got[1].Type)
	require.Error(t, got[1].Err)

	// Failed responses are not cached.
	_, ok := c.ReadQuery(ResolveURLOp("/boom", ""))
	require.False(t, ok)
}

func TestWriteURLsExtractRestore(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")
	id := 5
	require.NoError(t, c.WriteURLs([]URLEntry{{
		URLKey:    "/about-us",
		EntityURL: EntityURL{Type: "CMS_PAGE", ID: &id},
	}}, ""))

	entity, ok := c.CachedURL("/about-us", "")
	require.True(t, ok)
	require.Equal(t, "CMS_PAGE", entity.Type)
	require.Equal(t, EntityURLTypename, entity.Typename)

	state := c.Extract()
	require.Contains(t, state, "CMS_PAGE-5")
	require.Contains(t, state, CacheKey(ResolveURLOp("/about-us", "")))

	other := newClient(t, "http://127.0.0.1:1")
	other.Restore(state)
	restored, ok := other.CachedURL("/about-us", "")
	require.True(t, ok)
	require.Equal(t, 5, *restored.ID)
}
