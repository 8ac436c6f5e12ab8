// Package versionws announces the deployed build over a websocket so open
// tabs learn when they run stale code.
//
// The server pushes {"type":"VERSION_CHECK","version":...} on connect, on
// every UPDATE request from the client and whenever SetVersion changes the
// deployed version.
package versionws

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bhandras/shellkit/internal/runtime"
	"github.com/bhandras/shellkit/pkg/logger"
)

// Path is where the serve command mounts the endpoint.
const Path = "/__version"

// Client to server message types.
const (
	TypeRegister = "REGISTER"
	TypeUpdate   = "UPDATE"
)

var log = logger.Named("versionws")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope in both directions.
type Message struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
}

type conn struct {
	ws *websocket.Conn
	// gorilla allows a single concurrent writer.
	mu sync.Mutex
}

func (c *conn) send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(m)
}

// Server tracks connected tabs.
type Server struct {
	mu      sync.RWMutex
	version string
	clients map[*conn]struct{}
}

// NewServer returns a server announcing version.
func NewServer(version string) *Server {
	return &Server{
		version: version,
		clients: make(map[*conn]struct{}),
	}
}

// Version returns the announced version.
func (s *Server) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Server) check() Message {
	return Message{Type: runtime.VersionCheck, Version: s.Version()}
}

// Handle upgrades the request and serves the connection until it closes.
func (s *Server) Handle(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("upgrade failed: %v", err)
		return
	}
	cl := &conn{ws: ws}

	s.mu.Lock()
	s.clients[cl] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, cl)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	if err := cl.send(s.check()); err != nil {
		log.Debugf("initial version push: %v", err)
		return
	}

	for {
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("connection closed: %v", err)
			}
			return
		}
		switch m.Type {
		case TypeRegister:
			log.Debugf("tab registered running %s", m.Version)
		case TypeUpdate:
			if err := cl.send(s.check()); err != nil {
				log.Debugf("version push: %v", err)
				return
			}
		default:
			log.Debugf("unknown message type %q", m.Type)
		}
	}
}

// SetVersion changes the announced version and pushes it to every tab.
func (s *Server) SetVersion(v string) {
	s.mu.Lock()
	changed := s.version != v
	s.version = v
	clients := make([]*conn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	msg := Message{Type: runtime.VersionCheck, Version: v}
	for _, c := range clients {
		if err := c.send(msg); err != nil {
			log.Debugf("broadcast: %v", err)
		}
	}
}

// Clients returns the number of connected tabs.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every tab.
func (s *Server) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		_ = c.ws.Close()
	}
}
