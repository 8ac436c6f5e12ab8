// Package storage is the storage feature: a sqlite backed key/value store
// with expiry, written to only by its epics in response to Storage actions.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bhandras/shellkit/internal/store"
	"github.com/bhandras/shellkit/pkg/logger"
)

const (
	SetType          = "Storage/Set"
	DeleteType       = "Storage/Delete"
	SetCookieType    = "Storage/SetCookie"
	DeleteCookieType = "Storage/DeleteCookie"
)

// Entry is the payload of SetType and SetCookieType. A zero Expiry keeps the
// entry until deleted.
type Entry struct {
	Key    string    `json:"key"`
	Value  any       `json:"value"`
	Expiry time.Time `json:"expiry"`
}

func Set(key string, value any, expiry time.Time) store.Action {
	return store.Action{Type: SetType, Payload: Entry{Key: key, Value: value, Expiry: expiry}}
}

func Delete(key string) store.Action {
	return store.Action{Type: DeleteType, Payload: key}
}

func SetCookie(key string, value any, expiry time.Time) store.Action {
	return store.Action{Type: SetCookieType, Payload: Entry{Key: key, Value: value, Expiry: expiry}}
}

func DeleteCookie(key string) store.Action {
	return store.Action{Type: DeleteCookieType, Payload: key}
}

// Register returns the storage feature. It has no state.
func Register() store.RegisterItem {
	return store.RegisterItem{
		Name: "storage",
		Epics: []store.Epic{
			setEpic("storageSet", SetType, localKV),
			deleteEpic("storageDelete", DeleteType, localKV),
			setEpic("storageSetCookie", SetCookieType, cookieKV),
			deleteEpic("storageDeleteCookie", DeleteCookieType, cookieKV),
		},
		Reducers: map[string]store.Reducer{},
	}
}

func localKV(d *store.Deps) store.KV  { return d.Storage }
func cookieKV(d *store.Deps) store.KV { return d.CookieStorage }

func setEpic(name, typ string, pick func(*store.Deps) store.KV) store.Epic {
	return store.Epic{
		Name: name,
		Run: store.ForEach(func(ctx context.Context, a store.Action, _ store.StateReader, deps *store.Deps, _ store.Emitter) error {
			e, ok := a.Payload.(Entry)
			if !ok {
				return fmt.Errorf("storage: bad %s payload %T", typ, a.Payload)
			}
			kv := pick(deps)
			if kv == nil {
				logger.Debugf("storage: %s without a backend, dropping %s", typ, e.Key)
				return nil
			}
			return kv.Set(ctx, e.Key, e.Value, e.Expiry)
		}, typ),
	}
}

func deleteEpic(name, typ string, pick func(*store.Deps) store.KV) store.Epic {
	return store.Epic{
		Name: name,
		Run: store.ForEach(func(ctx context.Context, a store.Action, _ store.StateReader, deps *store.Deps, _ store.Emitter) error {
			key, ok := a.Payload.(string)
			if !ok {
				return fmt.Errorf("storage: bad %s payload %T", typ, a.Payload)
			}
			kv := pick(deps)
			if kv == nil {
				return nil
			}
			return kv.Remove(ctx, key)
		}, typ),
	}
}
