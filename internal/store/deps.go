package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bhandras/shellkit/internal/actor"
)

// KV is a key/value store with optional expiry. A zero expiry keeps the value
// until it is removed.
type KV interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, value any, expiry time.Time) error
	Remove(ctx context.Context, key string) error
}

// JSONClient is the HTTP surface handed to epics.
type JSONClient interface {
	GetJSON(ctx context.Context, url string, out any) error
	PostJSON(ctx context.Context, url string, body, out any) error
	PutJSON(ctx context.Context, url string, body, out any) error
	DeleteJSON(ctx context.Context, url string, body, out any) error
}

// Window is the host page: scrolling, reloading and connectivity.
type Window interface {
	ScrollTo(selector string, duration time.Duration)
	Reload()
	Online() bool
	// Connectivity reports online/offline transitions. It may be nil.
	Connectivity() <-chan bool
}

// Deps is the capability bag shared read-only by every epic.
type Deps struct {
	HTTP          JSONClient
	Storage       KV
	CookieStorage KV
	Window        Window
	Clock         actor.Clock
	// Env is the build environment (VERSION, DOMAIN, NODE_ENV, ...).
	Env map[string]string
	// Values carries host specific capabilities.
	Values map[string]any
}

func (d *Deps) clock() actor.Clock {
	if d == nil || d.Clock == nil {
		return actor.RealClock{}
	}
	return d.Clock
}

// Now returns the current time from the configured clock.
func (d *Deps) Now() time.Time { return d.clock().Now() }

// After waits on the configured clock.
func (d *Deps) After(dur time.Duration) <-chan time.Time { return d.clock().After(dur) }
