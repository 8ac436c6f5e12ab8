package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/bhandras/shellkit/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDAndLogging(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(io.Discard) })

	r := gin.New()
	r.Use(RequestID(), LoggingMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		id, ok := GetRequestID(c)
		require.True(t, ok)
		c.String(http.StatusOK, id)
	})

	w := do(r, httptest.NewRequest(http.MethodGet, "/ping?x=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(RequestIDHeader)
	require.Len(t, id, 36)
	require.Equal(t, id, w.Body.String())
	require.Contains(t, buf.String(), "[GET] /ping?x=1 - 200")
	require.Contains(t, buf.String(), id)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = do(r, req)
	require.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	require.Error(t, err)

	r := gin.New()
	r.Use(m.Handler())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.NoRoute(func(c *gin.Context) { c.String(http.StatusOK, "page") })

	do(r, httptest.NewRequest(http.MethodGet, "/items/1", nil))
	do(r, httptest.NewRequest(http.MethodGet, "/items/2", nil))
	do(r, httptest.NewRequest(http.MethodGet, "/shoes", nil))

	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/items/:id", "204")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "ssr", "200")))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		return do(r, req).Code
	}

	require.Equal(t, http.StatusOK, from("192.0.2.1:1000"))
	require.Equal(t, http.StatusOK, from("192.0.2.1:1001"))
	require.Equal(t, http.StatusTooManyRequests, from("192.0.2.1:1002"))
	require.Equal(t, http.StatusOK, from("192.0.2.2:1000"))

	now = now.Add(time.Minute)
	from("192.0.2.2:1000")
	require.Equal(t, 1, rl.Forget(30*time.Second))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://shop.test"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://shop.test")
	w := do(r, req)
	require.Equal(t, "https://shop.test", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.test")
	require.Equal(t, http.StatusForbidden, do(r, req).Code)
}
