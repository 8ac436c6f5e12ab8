package store

// Action is a string-tagged message with an arbitrary payload.
type Action struct {
	Type    string
	Payload any
}

const (
	// ActionInject is fed to freshly injected reducers so they can return
	// their initial value. It never reaches epics.
	ActionInject = "@@store/INJECT"

	// LogType is the action epics use to report failures. The runtime
	// feature logs its payload.
	LogType = "Runtime/Log"
)

// Reducer computes the next value of one slice. A nil state means the slice
// does not exist yet and the reducer must return its initial value.
type Reducer func(state any, action Action) any

// SliceReducer adapts a typed reducer. Whenever the stored value is missing or
// of another type, initial is used in its place.
func SliceReducer[S any](initial S, fn func(state S, action Action) S) Reducer {
	return func(state any, action Action) any {
		s, ok := state.(S)
		if !ok {
			s = initial
		}
		return fn(s, action)
	}
}

// State is an immutable snapshot of every slice keyed by slice name. Callers
// must not modify it.
type State map[string]any

// Slice returns the slice stored under key, typed as S.
func Slice[S any](st State, key string) (S, bool) {
	v, ok := st[key].(S)
	return v, ok
}

// EnvSource is implemented by slices that carry the runtime environment. The
// store uses it to gate epics by NODE_ENV.
type EnvSource interface {
	NodeEnv() string
}

// RegisterItem is the unit of feature registration. Name is globally unique.
type RegisterItem struct {
	Name     string
	Epics    []Epic
	Reducers map[string]Reducer
}
