// Package gql is a small GraphQL client with a normalized query cache.
//
// Queries are sent as GET requests to {backend}/graphql. Successful responses
// are cached by operation and variables so they can be read back
// synchronously, extracted into the SSR document and restored on the client.
package gql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/bhandras/shellkit/internal/ajax"
	"github.com/bhandras/shellkit/pkg/logger"
)

// ErrNoData is returned when a response carries neither data nor errors.
var ErrNoData = errors.New("gql: response has no data")

const defaultCacheSize = 4096

// Operation is one GraphQL request.
type Operation struct {
	Name      string
	Query     string
	Variables map[string]any
}

// ErrorLocation points into the query document.
type ErrorLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// GraphQLError is an entry of the response "errors" list.
type GraphQLError struct {
	Message   string          `json:"message"`
	Locations []ErrorLocation `json:"locations,omitempty"`
	Path      []any           `json:"path,omitempty"`
}

// Response is a decoded GraphQL response.
type Response struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// Get reads a gjson path inside data.
func (r *Response) Get(path string) gjson.Result {
	if r == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Data, path)
}

// Link observes every completed operation. err is set for transport
// failures; GraphQL errors arrive in resp.Errors.
type Link func(op Operation, resp *Response, err error)

// Options configures New.
type Options struct {
	// Backend is the origin serving /graphql.
	Backend string
	// Header is sent with every request (cookies for SSR).
	Header http.Header
	Links  []Link
	HTTP   *http.Client
	// CacheSize bounds the number of cached operations.
	CacheSize int64
	// MaxElapsed bounds retries of a single query.
	MaxElapsed time.Duration
}

// Client executes queries and owns the cache.
type Client struct {
	endpoint string
	http     *ajax.Client
	links    []Link
	cache    *theine.Cache[string, []byte]
	group    singleflight.Group
	tracer   trace.Tracer
}

// New builds a client.
func New(opts Options) (*Client, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := theine.NewBuilder[string, []byte](size).Build()
	if err != nil {
		return nil, fmt.Errorf("gql: build cache: %w", err)
	}
	hc := ajax.New(opts.Header)
	if opts.HTTP != nil {
		hc.HTTP = opts.HTTP
	}
	if opts.MaxElapsed > 0 {
		hc.MaxElapsed = opts.MaxElapsed
	}
	return &Client{
		endpoint: strings.TrimSuffix(opts.Backend, "/") + "/graphql",
		http:     hc,
		links:    opts.Links,
		cache:    cache,
		tracer:   otel.Tracer("github.com/bhandras/shellkit/internal/gql"),
	}, nil
}

// Close releases the cache.
func (c *Client) Close() {
	c.cache.Close()
}

// CacheKey identifies an operation in the cache.
func CacheKey(op Operation) string {
	vars, _ := json.Marshal(op.Variables)
	return op.Name + ":" + string(vars)
}

// Query returns the cached response for op or fetches it. Concurrent
// identical queries share one request.
func (c *Client) Query(ctx context.Context, op Operation) (*Response, error) {
	if resp, ok := c.ReadQuery(op); ok {
		return resp, nil
	}

	key := CacheKey(op)
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.fetch(ctx, op)
	})
	if shared {
		logger.Tracef("gql: shared in-flight %s", op.Name)
	}
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

func (c *Client) fetch(ctx context.Context, op Operation) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "gql.Query", trace.WithAttributes(
		attribute.String("graphql.operation.name", op.Name),
	))
	defer span.End()

	resp, err := c.send(ctx, op)
	for _, link := range c.links {
		link(op, resp, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(resp.Errors) > 0 {
		span.SetStatus(codes.Error, resp.Errors[0].Message)
		return resp, nil
	}
	c.cache.Set(CacheKey(op), resp.Data, 1)
	return resp, nil
}

func (c *Client) send(ctx context.Context, op Operation) (*Response, error) {
	q := url.Values{}
	q.Set("query", op.Query)
	if op.Name != "" {
		q.Set("operationName", op.Name)
	}
	if len(op.Variables) > 0 {
		vars, err := json.Marshal(op.Variables)
		if err != nil {
			return nil, fmt.Errorf("gql: encode variables: %w", err)
		}
		q.Set("variables", string(vars))
	}

	var resp Response
	if err := c.http.GetJSON(ctx, c.endpoint+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("gql: %s: %w", op.Name, err)
	}
	if len(resp.Data) == 0 && len(resp.Errors) == 0 {
		return nil, fmt.Errorf("gql: %s: %w", op.Name, ErrNoData)
	}
	return &resp, nil
}

// ReadQuery returns op's cached response without touching the network.
func (c *Client) ReadQuery(op Operation) (*Response, bool) {
	data, ok := c.cache.Get(CacheKey(op))
	if !ok {
		return nil, false
	}
	return &Response{Data: data}, true
}

// WriteQuery stores data as the response of op.
func (c *Client) WriteQuery(op Operation, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("gql: write %s: %w", op.Name, err)
	}
	c.cache.Set(CacheKey(op), raw, 1)
	return nil
}

// Extract snapshots the cache for embedding in the HTML document. Entity
// URLs are additionally listed under their TYPE-id key.
func (c *Client) Extract() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	c.cache.Range(func(key string, value []byte) bool {
		out[key] = json.RawMessage(value)
		entity := gjson.GetBytes(value, "urlResolver")
		if entity.Get("__typename").String() == EntityURLTypename {
			out[entityKey(entity)] = json.RawMessage(entity.Raw)
		}
		return true
	})
	return out
}

// Restore loads a snapshot produced by Extract. Entity keys are skipped.
func (c *Client) Restore(state map[string]json.RawMessage) {
	for key, value := range state {
		if !strings.Contains(key, ":") {
			continue
		}
		c.cache.Set(key, []byte(value), 1)
	}
}

func entityKey(entity gjson.Result) string {
	id := entity.Get("id")
	if !id.Exists() || id.Type == gjson.Null {
		return entity.Get("type").String() + "-null"
	}
	return entity.Get("type").String() + "-" + id.Raw
}
