package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bhandras/shellkit/internal/actor"
)

const (
	// Local is the namespace behind Deps.Storage.
	Local = "local"
	// Cookie is the namespace behind Deps.CookieStorage.
	Cookie = "cookie"
)

// KV is one namespace of the database. Expired entries read as missing and
// are removed lazily.
type KV struct {
	db        *DB
	namespace string
	clock     actor.Clock
}

// NewKV returns the namespace ns of db. A nil clock uses wall time.
func NewKV(db *DB, ns string, clock actor.Clock) *KV {
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &KV{db: db, namespace: ns, clock: clock}
}

// Get returns the raw JSON stored under key.
func (kv *KV) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var (
		value   string
		expires sql.NullInt64
	)
	err := kv.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv WHERE namespace = ? AND key = ?",
		kv.namespace, key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get %s/%s: %w", kv.namespace, key, err)
	}
	if expires.Valid && expires.Int64 <= kv.clock.Now().UnixMilli() {
		if err := kv.Remove(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return json.RawMessage(value), true, nil
}

// Set stores value as JSON. A zero expiry never expires.
func (kv *KV) Set(ctx context.Context, key string, value any, expiry time.Time) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: encode %s/%s: %w", kv.namespace, key, err)
	}
	var expires sql.NullInt64
	if !expiry.IsZero() {
		expires = sql.NullInt64{Int64: expiry.UnixMilli(), Valid: true}
	}
	_, err = kv.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, kv.namespace, key, string(raw), expires)
	if err != nil {
		return fmt.Errorf("storage: set %s/%s: %w", kv.namespace, key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (kv *KV) Remove(ctx context.Context, key string) error {
	_, err := kv.db.ExecContext(ctx, "DELETE FROM kv WHERE namespace = ? AND key = ?", kv.namespace, key)
	if err != nil {
		return fmt.Errorf("storage: remove %s/%s: %w", kv.namespace, key, err)
	}
	return nil
}

// PurgeExpired removes every expired entry of the namespace.
func (kv *KV) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := kv.db.ExecContext(ctx,
		"DELETE FROM kv WHERE namespace = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		kv.namespace, kv.clock.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: purge %s: %w", kv.namespace, err)
	}
	return res.RowsAffected()
}

// Noop discards writes and never finds anything. Server-side stores use it.
type Noop struct{}

func (Noop) Get(context.Context, string) (json.RawMessage, bool, error) { return nil, false, nil }

func (Noop) Set(context.Context, string, any, time.Time) error { return nil }

func (Noop) Remove(context.Context, string) error { return nil }
