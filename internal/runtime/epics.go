package runtime

import (
	"context"
	"maps"
	"strconv"

	"github.com/bhandras/shellkit/internal/gql"
	"github.com/bhandras/shellkit/internal/router"
	"github.com/bhandras/shellkit/internal/store"
	"github.com/bhandras/shellkit/pkg/logger"
)

var log = logger.Named("runtime")

// URLWriter prefills the url cache.
type URLWriter func(entries []gql.URLEntry) error

// VersionCheck is the message type announcing the deployed version.
const VersionCheck = "VERSION_CHECK"

// VersionMessage is one message from the version channel.
type VersionMessage struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

// VersionSource is the channel announcing newly deployed builds.
type VersionSource interface {
	// Subscribe registers with the channel. The returned channel is closed
	// when ctx ends or the connection is lost.
	Subscribe(ctx context.Context, version string) (<-chan VersionMessage, error)
	// Update asks the channel to check for a new version now.
	Update(ctx context.Context) error
}

// Options configures Register.
type Options struct {
	URLWriter URLWriter
	Versions  VersionSource
	// Epics are added to the feature, typically the navigation handler.
	Epics []store.Epic
}

// Register returns the runtime feature.
func Register(opts Options) store.RegisterItem {
	epics := []store.Epic{
		WriteURLsEpic(opts.URLWriter),
		ScrollTopEpic(),
		VersionEpic(opts.Versions),
		AppEnvEpic(),
		OnlineOfflineEpic(),
		ReloadEpic(),
		LogEpic(),
	}
	return store.RegisterItem{
		Name:     "runtime",
		Epics:    append(epics, opts.Epics...),
		Reducers: map[string]store.Reducer{Slice: Reducer()},
	}
}

// WriteURLsEpic feeds WriteURLs payloads into w.
func WriteURLsEpic(w URLWriter) store.Epic {
	return store.Epic{
		Name: "writeUrls",
		Run: store.ForEach(func(_ context.Context, a store.Action, _ store.StateReader, _ *store.Deps, emit store.Emitter) error {
			entries, ok := a.Payload.([]gql.URLEntry)
			if !ok || w == nil {
				return nil
			}
			if err := w(entries); err != nil {
				log.Errorf("write urls: %v", err)
				emit(Log("An error occurred trying to write urls to the local cache", err.Error()))
			}
			return nil
		}, WriteURLsType),
	}
}

// ScrollTopEpic scrolls the window for every ScrollTop action.
func ScrollTopEpic() store.Epic {
	return store.Epic{
		Name: "scrollTop",
		Run: store.ForEach(func(_ context.Context, a store.Action, _ store.StateReader, deps *store.Deps, _ store.Emitter) error {
			p, ok := a.Payload.(ScrollTop)
			if !ok || deps.Window == nil {
				return nil
			}
			deps.Window.ScrollTo(p.Selector, p.Duration)
			return nil
		}, ScrollTopType),
	}
}

// ReloadEpic reloads the window.
func ReloadEpic() store.Epic {
	return store.Epic{
		Name: "reload",
		Run: store.ForEach(func(_ context.Context, _ store.Action, _ store.StateReader, deps *store.Deps, _ store.Emitter) error {
			if deps.Window != nil {
				deps.Window.Reload()
			}
			return nil
		}, ReloadType),
	}
}

// LogEpic writes Log payloads to the logger.
func LogEpic() store.Epic {
	return store.Epic{
		Name: "log",
		Run: store.ForEach(func(_ context.Context, a store.Action, _ store.StateReader, _ *store.Deps, _ store.Emitter) error {
			log.Warnw("runtime log", "payload", a.Payload)
			return nil
		}, LogType),
	}
}

// AppEnvEpic copies the build environment into the slice once, unless a
// NODE_ENV is already present.
func AppEnvEpic() store.Epic {
	return store.Epic{
		Name: "appEnv",
		Run: func(_ context.Context, _ <-chan store.Action, state store.StateReader, deps *store.Deps, emit store.Emitter) error {
			if deps.Env == nil {
				return nil
			}
			if FromState(state.State()).Env[EnvNodeEnv] != "" {
				return nil
			}
			env := Env(maps.Clone(deps.Env))
			log.Debugf("new env incoming: %v", env)
			emit(SetEnv(env))
			return nil
		},
	}
}

// OnlineOfflineEpic reports the current connectivity and every transition.
func OnlineOfflineEpic() store.Epic {
	return store.Epic{
		Name: "onlineOffline",
		Run: func(ctx context.Context, actions <-chan store.Action, _ store.StateReader, deps *store.Deps, emit store.Emitter) error {
			win := deps.Window
			if win == nil {
				return nil
			}
			emit(SetOnline(win.Online()))
			changes := win.Connectivity()
			for {
				select {
				case <-ctx.Done():
					return nil
				case _, ok := <-actions:
					if !ok {
						return nil
					}
				case online, ok := <-changes:
					if !ok {
						changes = nil
						continue
					}
					emit(SetOnline(online))
				}
			}
		},
	}
}

// VersionEpic subscribes to the version channel every time the environment
// is set. A subscription failure is logged and otherwise ignored. While
// subscribed, every navigation polls the channel.
func VersionEpic(src VersionSource) store.Epic {
	return store.Epic{
		Name: "versionWatcher",
		Run: func(ctx context.Context, actions <-chan store.Action, state store.StateReader, _ *store.Deps, emit store.Emitter) error {
			if src == nil {
				return nil
			}
			var (
				msgs    <-chan VersionMessage
				version string
				cancel  context.CancelFunc = func() {}
			)
			defer func() { cancel() }()

			for {
				select {
				case <-ctx.Done():
					return nil

				case a, ok := <-actions:
					if !ok {
						return nil
					}
					switch a.Type {
					case SetEnvType:
						cancel()
						msgs = nil
						env := FromState(state.State()).Env
						if !enabled(env[EnvServiceWorker]) {
							log.Debugf("version channel disabled")
							continue
						}
						version = env[EnvVersion]
						if version == "" {
							version = "__development__"
						}
						var subCtx context.Context
						subCtx, cancel = context.WithCancel(ctx)
						ch, err := src.Subscribe(subCtx, version)
						if err != nil {
							log.Warnf("version channel registration failed: %v", err)
							continue
						}
						msgs = ch

					case router.ActionChange:
						if msgs == nil {
							continue
						}
						if err := src.Update(ctx); err != nil {
							log.Debugf("version update check: %v", err)
						}
					}

				case m, ok := <-msgs:
					if !ok {
						msgs = nil
						continue
					}
					if m.Type == VersionCheck && m.Version != version {
						log.Infof("running %s but %s is deployed", version, m.Version)
						emit(SetOutdated())
					}
				}
			}
		},
	}
}

func enabled(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
