package navigation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bhandras/shellkit/internal/resolve"
	"github.com/bhandras/shellkit/internal/router"
	"github.com/bhandras/shellkit/internal/runtime"
	"github.com/bhandras/shellkit/internal/store"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedResolver blocks every resolution of a path until it is released.
type gatedResolver struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls []string
}

func newGatedResolver() *gatedResolver {
	return &gatedResolver{gates: make(map[string]chan struct{})}
}

func (g *gatedResolver) gate(path string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[path]
	if !ok {
		ch = make(chan struct{})
		g.gates[path] = ch
	}
	return ch
}

func (g *gatedResolver) release(path string) { close(g.gate(path)) }

func (g *gatedResolver) resolve(ctx context.Context, pathname string, _, _ bool) resolve.ResolvedComponent {
	g.mu.Lock()
	g.calls = append(g.calls, pathname)
	g.mu.Unlock()
	select {
	case <-g.gate(pathname):
	case <-ctx.Done():
	}
	return result(pathname, "Page"+pathname)
}

func (g *gatedResolver) called() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

type recorder struct {
	mu      sync.Mutex
	actions []store.Action
}

func (r *recorder) epic() store.Epic {
	return store.Epic{
		Name: "recorder",
		Run: store.ForEach(func(_ context.Context, a store.Action, _ store.StateReader, _ *store.Deps, _ store.Emitter) error {
			r.mu.Lock()
			r.actions = append(r.actions, a)
			r.mu.Unlock()
			return nil
		}, runtime.SetResolveType, runtime.SetResolvingType, router.ActionResolved),
	}
}

func (r *recorder) all() []store.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Action(nil), r.actions...)
}

func newNavStore(t *testing.T, cfg Config, rec *recorder) *store.Store {
	t.Helper()
	s, err := store.New(store.Options{
		Features: []store.RegisterItem{
			router.Register(),
			{Name: "recorder", Epics: []store.Epic{rec.epic()}},
			runtime.Register(runtime.Options{Epics: []store.Epic{Epic(cfg)}}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func push(t *testing.T, s *store.Store, path string) {
	t.Helper()
	require.NoError(t, s.Dispatch(context.Background(), router.Change(router.HistoryEvent{
		Location: router.ParseLocation(path),
		Action:   router.Push,
	})))
}

func TestLatestNavigationWins(t *testing.T) {
	res := newGatedResolver()
	rec := &recorder{}
	s := newNavStore(t, Config{Resolve: res.resolve, MinDelay: -1}, rec)

	push(t, s, "/a")
	push(t, s, "/b")
	require.Eventually(t, func() bool { return len(res.called()) == 2 }, timeout, tick)

	res.release("/b")
	require.Eventually(t, func() bool {
		return runtime.FromState(s.State()).Resolve.URLKey == "/b"
	}, timeout, tick)

	res.release("/a")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, "/b", runtime.FromState(s.State()).Resolve.URLKey)
	require.False(t, runtime.FromState(s.State()).Resolving)

	for _, a := range rec.all() {
		if a.Type == runtime.SetResolveType {
			require.Equal(t, "/b", a.Payload.(resolve.ResolvedComponent).URLKey)
		}
	}
}

func TestMinDelayFloor(t *testing.T) {
	res := newGatedResolver()
	res.release("/fast")
	rec := &recorder{}
	s := newNavStore(t, Config{Resolve: res.resolve, MinDelay: 150 * time.Millisecond}, rec)

	start := time.Now()
	push(t, s, "/fast")
	require.Eventually(t, func() bool { return runtime.FromState(s.State()).Resolving }, timeout, tick)
	require.Eventually(t, func() bool { return !runtime.FromState(s.State()).Resolving }, timeout, tick)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	require.Equal(t, "Page/fast", runtime.FromState(s.State()).Resolve.ComponentName)

	rs, ok := store.Slice[router.State](s.State(), router.Slice)
	require.True(t, ok)
	require.False(t, rs.Resolving)
}

func TestSameBaseNeverSetsResolving(t *testing.T) {
	res := newGatedResolver()
	res.release("/shop")
	res.release("/shop/bags")
	rec := &recorder{}
	s := newNavStore(t, Config{Resolve: res.resolve, MinDelay: -1}, rec)

	push(t, s, "/shop")
	require.Eventually(t, func() bool { return len(rec.all()) >= 4 }, timeout, tick)
	before := len(rec.all())

	push(t, s, "/shop/bags")
	require.Eventually(t, func() bool {
		return runtime.FromState(s.State()).Resolve.URLKey == "/shop/bags"
	}, timeout, tick)
	require.Eventually(t, func() bool { return len(rec.all()) >= before+2 }, timeout, tick)

	for _, a := range rec.all()[before:] {
		require.NotEqual(t, runtime.SetResolvingType, a.Type)
	}
}

func TestFirstRenderPopIsIgnored(t *testing.T) {
	res := newGatedResolver()
	rec := &recorder{}
	s := newNavStore(t, Config{Resolve: res.resolve}, rec)

	require.NoError(t, s.Dispatch(context.Background(), router.Change(router.HistoryEvent{
		Location:         router.ParseLocation("/start"),
		Action:           router.Pop,
		IsFirstRendering: true,
	})))
	time.Sleep(30 * time.Millisecond)
	require.Empty(t, res.called())
}
