package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bhandras/shellkit/internal/actor/actortest"
	"github.com/bhandras/shellkit/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps a connection opener goroutine per open DB.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	require.Equal(t, 1, n)
}

func TestKVNamespacesAndExpiry(t *testing.T) {
	db := openDB(t)
	clock := actortest.NewFakeClock(time.Unix(1_700_000_000, 0))
	local := NewKV(db, Local, clock)
	cookie := NewKV(db, Cookie, clock)
	ctx := context.Background()

	require.NoError(t, local.Set(ctx, "cart", map[string]int{"items": 2}, time.Time{}))
	require.NoError(t, cookie.Set(ctx, "cart", "token", clock.Now().Add(time.Minute)))

	raw, ok, err := local.Get(ctx, "cart")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"items":2}`, string(raw))

	raw, ok, err = cookie.Get(ctx, "cart")
	require.NoError(t, err)
	require.True(t, ok)
	var token string
	require.NoError(t, json.Unmarshal(raw, &token))
	require.Equal(t, "token", token)

	clock.Advance(2 * time.Minute)
	_, ok, err = cookie.Get(ctx, "cart")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = local.Get(ctx, "cart")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, local.Remove(ctx, "cart"))
	require.NoError(t, local.Remove(ctx, "cart"))
	_, ok, err = local.Get(ctx, "cart")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPurgeExpired(t *testing.T) {
	db := openDB(t)
	clock := actortest.NewFakeClock(time.Unix(1_700_000_000, 0))
	kv := NewKV(db, Local, clock)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "a", 1, clock.Now().Add(time.Second)))
	require.NoError(t, kv.Set(ctx, "b", 2, time.Time{}))
	clock.Advance(time.Hour)

	n, err := kv.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestEpicsAreTheOnlyWriters(t *testing.T) {
	db := openDB(t)
	local := NewKV(db, Local, nil)
	cookie := NewKV(db, Cookie, nil)

	s, err := store.New(store.Options{
		Deps:     &store.Deps{Storage: local, CookieStorage: cookie},
		Features: []store.RegisterItem{Register()},
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	ctx := context.Background()

	require.NoError(t, s.Dispatch(ctx, Set("seen", true, time.Time{})))
	require.NoError(t, s.Dispatch(ctx, SetCookie("session", "abc", time.Now().Add(time.Hour))))

	require.Eventually(t, func() bool {
		_, a, _ := local.Get(ctx, "seen")
		_, b, _ := cookie.Get(ctx, "session")
		return a && b
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Dispatch(ctx, Delete("seen")))
	require.NoError(t, s.Dispatch(ctx, DeleteCookie("session")))

	require.Eventually(t, func() bool {
		_, a, _ := local.Get(ctx, "seen")
		_, b, _ := cookie.Get(ctx, "session")
		return !a && !b
	}, time.Second, 5*time.Millisecond)
}

func TestNoopStorage(t *testing.T) {
	var kv store.KV = Noop{}
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "k", 1, time.Time{}))
	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}
