package versionws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bhandras/shellkit/internal/runtime"
)

// ErrNotSubscribed is returned by Update before Subscribe succeeded.
var ErrNotSubscribed = errors.New("versionws: not subscribed")

// Source dials the version endpoint. It implements runtime.VersionSource.
type Source struct {
	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *conn
}

var _ runtime.VersionSource = (*Source)(nil)

// NewSource returns a source for the ws:// or wss:// url. A nil dialer uses
// websocket.DefaultDialer.
func NewSource(url string, dialer *websocket.Dialer) *Source {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Source{url: url, dialer: dialer}
}

// Subscribe dials the endpoint and registers version. Messages flow until ctx
// ends or the connection drops; then the channel is closed. A new Subscribe
// replaces the previous connection.
func (s *Source) Subscribe(ctx context.Context, version string) (<-chan runtime.VersionMessage, error) {
	ws, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("versionws: dial: %w", err)
	}
	c := &conn{ws: ws}
	if err := c.send(Message{Type: TypeRegister, Version: version}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("versionws: register: %w", err)
	}

	s.mu.Lock()
	prev := s.conn
	s.conn = c
	s.mu.Unlock()
	if prev != nil {
		_ = prev.ws.Close()
	}

	out := make(chan runtime.VersionMessage)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer s.release(c)
		for {
			var m runtime.VersionMessage
			if err := ws.ReadJSON(&m); err != nil {
				log.Debugf("version channel closed: %v", err)
				return
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Source) release(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == c {
		s.conn = nil
	}
	_ = c.ws.Close()
}

// Update asks the server to push the current version.
func (s *Source) Update(ctx context.Context) error {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return ErrNotSubscribed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.send(Message{Type: TypeUpdate})
}
