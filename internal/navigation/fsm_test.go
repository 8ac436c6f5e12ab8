package navigation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/bhandras/shellkit/internal/actor"
	"github.com/bhandras/shellkit/internal/resolve"
	"github.com/bhandras/shellkit/internal/router"
	"github.com/bhandras/shellkit/internal/runtime"
	"github.com/bhandras/shellkit/internal/store"
)

var testTimings = timings{minDelay: 300 * time.Millisecond, scrollDuration: 200 * time.Millisecond}

func step(t *testing.T, s navState, in actor.Input) (navState, []actor.Effect) {
	t.Helper()
	return actor.Step(s, in, reducer(DefaultPolicy(), testTimings))
}

func navTo(path string) evNavigate {
	return evNavigate{Location: router.ParseLocation(path), Online: true}
}

func dispatched(effects []actor.Effect) []store.Action {
	var out []store.Action
	for _, eff := range effects {
		if d, ok := eff.(effDispatch); ok {
			out = append(out, d.Actions...)
		}
	}
	return out
}

func resolveEffect(t *testing.T, effects []actor.Effect) effResolve {
	t.Helper()
	for _, eff := range effects {
		if r, ok := eff.(effResolve); ok {
			return r
		}
	}
	t.Fatalf("no resolve effect in %v", effects)
	return effResolve{}
}

func types(actions []store.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Type)
	}
	return out
}

func result(path, name string) resolve.ResolvedComponent {
	return resolve.ResolvedComponent{ResolvedURL: resolve.ResolvedURL{URLKey: path, ComponentName: name}}
}

func TestCrossBaseSequence(t *testing.T) {
	s := navState{prev: router.ParseLocation("/home")}

	ev := navTo("/products/shoes")
	ev.Location.State = map[string]any{"scrollTo": "#main"}
	s, effects := step(t, s, ev)

	want := []store.Action{
		runtime.SetResolving(true),
		runtime.ScrollTo("#main", 200*time.Millisecond),
	}
	if diff := cmp.Diff(want, dispatched(effects)); diff != "" {
		t.Fatalf("dispatched (-want +got):\n%s", diff)
	}
	eff := resolveEffect(t, effects)
	require.Equal(t, uint64(1), eff.Gen)
	require.False(t, eff.SameBase)
	require.Equal(t, "/products/shoes", eff.Pathname)
	require.Equal(t, 300*time.Millisecond, eff.Floor)

	s, effects = step(t, s, evResolved{Gen: 1, Result: result("/products/shoes", "ProductDetail")})
	require.Equal(t, []string{runtime.SetResolveType, runtime.SetResolvingType, router.ActionResolved}, types(dispatched(effects)))
	require.Equal(t, false, dispatched(effects)[1].Payload)
	require.Equal(t, "ProductDetail", s.displayed)
	require.False(t, s.loading)
}

func TestSameBaseNeverFlipsLoading(t *testing.T) {
	s := navState{prev: router.ParseLocation("/products/a"), displayed: "ProductDetail"}

	s, effects := step(t, s, navTo("/products/b"))
	require.Equal(t, []store.Action{runtime.ScrollTo("body", 0)}, dispatched(effects))
	eff := resolveEffect(t, effects)
	require.True(t, eff.SameBase)
	require.Zero(t, eff.Floor)

	// Unchanged component: no redundant SetResolve.
	s, effects = step(t, s, evResolved{Gen: eff.Gen, SameBase: true, Result: result("/products/b", "ProductDetail")})
	require.Equal(t, []string{router.ActionResolved}, types(dispatched(effects)))

	s, effects = step(t, s, navTo("/products/c"))
	_, effects = step(t, s, evResolved{Gen: resolveEffect(t, effects).Gen, SameBase: true, Result: result("/products/c", "Category")})
	require.Equal(t, []string{runtime.SetResolveType, router.ActionResolved}, types(dispatched(effects)))
}

func TestStaleResultIsDiscarded(t *testing.T) {
	s := navState{prev: router.ParseLocation("/")}

	s, effA := step(t, s, navTo("/a"))
	s, effB := step(t, s, navTo("/b"))
	genA, genB := resolveEffect(t, effA).Gen, resolveEffect(t, effB).Gen
	require.Greater(t, genB, genA)
	// Still loading from A: B does not flip the flag again.
	require.Equal(t, []string{runtime.ScrollTopType}, types(dispatched(effB)))

	s, effects := step(t, s, evResolved{Gen: genA, Result: result("/a", "A")})
	require.Empty(t, effects)

	s, effects = step(t, s, evResolved{Gen: genB, Result: result("/b", "B")})
	got := dispatched(effects)
	require.Equal(t, result("/b", "B"), got[0].Payload)
	require.Equal(t, "B", s.displayed)
}

func TestSameBaseSupersedingCrossBaseSettlesLoading(t *testing.T) {
	s := navState{prev: router.ParseLocation("/home")}

	s, _ = step(t, s, navTo("/products/a"))
	require.True(t, s.loading)
	s, effects := step(t, s, navTo("/products/b"))
	require.NotContains(t, types(dispatched(effects)), runtime.SetResolvingType)

	s, effects = step(t, s, evResolved{Gen: resolveEffect(t, effects).Gen, SameBase: true, Result: result("/products/b", "ProductDetail")})
	require.Equal(t, []string{runtime.SetResolveType, runtime.SetResolvingType, router.ActionResolved}, types(dispatched(effects)))
	require.False(t, s.loading)
}

func TestOutdatedReloads(t *testing.T) {
	s := navState{prev: router.ParseLocation("/a"), gen: 4}
	ev := navTo("/b")
	ev.Outdated = true

	s, effects := step(t, s, ev)
	require.Equal(t, []store.Action{router.Resolved(), runtime.Reload()}, dispatched(effects))
	require.Len(t, effects, 1)
	require.Equal(t, uint64(5), s.gen)
}

func TestOutdatedDuringCrossBaseSettlesLoading(t *testing.T) {
	s := navState{prev: router.ParseLocation("/home"), displayed: "Home"}

	s, effects := step(t, s, navTo("/products/1"))
	gen := resolveEffect(t, effects).Gen
	require.True(t, s.loading)

	ev := navTo("/products/2")
	ev.Outdated = true
	s, effects = step(t, s, ev)
	require.Equal(t, []string{runtime.SetResolvingType, router.ActionResolved, runtime.ReloadType}, types(dispatched(effects)))
	require.Equal(t, false, dispatched(effects)[0].Payload)
	require.False(t, s.loading)
	require.False(t, s.inflight)

	_, effects = step(t, s, evResolved{Gen: gen, Result: result("/products/1", "ProductDetail")})
	require.Empty(t, effects)
}

func TestIdenticalPathOnlyResolves(t *testing.T) {
	s := navState{prev: router.ParseLocation("/a?x=1"), gen: 2}

	s, effects := step(t, s, navTo("/a?x=1"))
	require.Equal(t, []store.Action{router.Resolved()}, dispatched(effects))
	require.Equal(t, uint64(2), s.gen)

	_, effects = step(t, s, navTo("/a?x=2"))
	resolveEffect(t, effects)
}

func TestRegisteredBaseScrollsOnly(t *testing.T) {
	s := navState{prev: router.ParseLocation("/account/orders")}
	ev := navTo("/account/profile")
	ev.BaseRegistered = true

	_, effects := step(t, s, ev)
	require.Equal(t, []store.Action{runtime.ScrollTo("body", 0), router.Resolved()}, dispatched(effects))
}

func TestRegisteredBaseResolvesPendingCrossBase(t *testing.T) {
	s, _ := step(t, navState{}, evInit{Location: router.ParseLocation("/home"), Displayed: "Home"})

	s, effects := step(t, s, navTo("/products/1"))
	first := resolveEffect(t, effects)

	s, effects = step(t, s, navToRegistered("/products/2"))
	require.Equal(t, []store.Action{runtime.ScrollTo("body", 0)}, dispatched(effects))
	second := resolveEffect(t, effects)
	require.True(t, second.SameBase)
	require.Equal(t, "/products/2", second.Pathname)

	s, effects = step(t, s, evResolved{Gen: first.Gen, Result: result("/products/1", "ProductDetail")})
	require.Empty(t, effects)

	s, effects = step(t, s, evResolved{Gen: second.Gen, SameBase: true, Result: result("/products/2", "ProductDetail")})
	require.Equal(t, []string{runtime.SetResolveType, runtime.SetResolvingType, router.ActionResolved}, types(dispatched(effects)))
	require.Equal(t, "ProductDetail", s.displayed)
	require.False(t, s.loading)

	// Settled on the group's base: the shortcut applies again.
	_, effects = step(t, s, navToRegistered("/products/3"))
	require.Equal(t, []store.Action{runtime.ScrollTo("body", 0), router.Resolved()}, dispatched(effects))
}

func navToRegistered(path string) evNavigate {
	ev := navTo(path)
	ev.BaseRegistered = true
	return ev
}

func TestQualifies(t *testing.T) {
	require.True(t, Qualifies(router.HistoryEvent{Action: router.Push}))
	require.True(t, Qualifies(router.HistoryEvent{Action: router.Replace}))
	require.True(t, Qualifies(router.HistoryEvent{Action: router.Pop}))
	require.False(t, Qualifies(router.HistoryEvent{Action: router.Pop, IsFirstRendering: true}))
}
