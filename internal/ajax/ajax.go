// Package ajax is the JSON-over-HTTP client handed to epics.
package ajax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bhandras/shellkit/internal/store"
	"github.com/bhandras/shellkit/pkg/logger"
)

const defaultMaxElapsed = 3 * time.Second

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
}

// Client performs JSON requests. GET requests are retried with exponential
// backoff on transport errors and 5xx responses.
type Client struct {
	HTTP       *http.Client
	Header     http.Header
	MaxElapsed time.Duration
}

var _ store.JSONClient = (*Client)(nil)

// New returns a client using http.DefaultClient.
func New(header http.Header) *Client {
	return &Client{HTTP: http.DefaultClient, Header: header, MaxElapsed: defaultMaxElapsed}
}

// GetJSON implements store.JSONClient.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out, true)
}

// PostJSON implements store.JSONClient.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	return c.do(ctx, http.MethodPost, url, body, out, false)
}

// PutJSON implements store.JSONClient.
func (c *Client) PutJSON(ctx context.Context, url string, body, out any) error {
	return c.do(ctx, http.MethodPut, url, body, out, false)
}

// DeleteJSON implements store.JSONClient.
func (c *Client) DeleteJSON(ctx context.Context, url string, body, out any) error {
	return c.do(ctx, http.MethodDelete, url, body, out, false)
}

func (c *Client) do(ctx context.Context, method, url string, body, out any, retry bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, url, err)
		}
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, vs := range c.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		logger.Tracef("ajax: %s %s", method, url)
		resp, err := c.client().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			serr := &StatusError{Method: method, URL: url, Status: resp.StatusCode, Body: string(raw)}
			if resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s %s: decode: %w", method, url, err))
		}
		return nil
	}

	if !retry {
		err := attempt()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.MaxElapsed
	if policy.MaxElapsedTime <= 0 {
		policy.MaxElapsedTime = defaultMaxElapsed
	}
	return backoff.Retry(attempt, backoff.WithContext(policy, ctx))
}

func (c *Client) client() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}
