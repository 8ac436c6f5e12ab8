package ajax

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.Header.Get("X-Store"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"qty": 2})
	}))
	defer srv.Close()

	c := New(http.Header{"X-Store": []string{"abc"}})
	c.MaxElapsed = 2 * time.Second

	var out struct{ Qty int }
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	require.Equal(t, 2, out.Qty)
	require.Equal(t, int32(2), calls.Load())
}

func TestPostJSONDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"missing"}`))
	}))
	defer srv.Close()

	err := New(nil).PostJSON(context.Background(), srv.URL, map[string]string{"sku": "x"}, nil)

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, http.StatusNotFound, serr.Status)
	require.Contains(t, serr.Body, "missing")
	require.Equal(t, int32(1), calls.Load())
}

func TestGetJSONClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := New(nil).GetJSON(context.Background(), srv.URL, nil)
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, int32(1), calls.Load())
}
