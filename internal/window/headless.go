// Package window provides a headless store.Window for hosts without a
// browser page, and for tests.
package window

import (
	"sync"
	"time"
)

// Scroll is one recorded ScrollTo call.
type Scroll struct {
	Selector string
	Duration time.Duration
}

// Headless records window calls and lets the host drive connectivity.
type Headless struct {
	mu      sync.Mutex
	online  bool
	scrolls []Scroll
	reloads int
	changes chan bool
}

// NewHeadless returns a window that starts online.
func NewHeadless() *Headless {
	return &Headless{online: true, changes: make(chan bool, 16)}
}

// ScrollTo implements store.Window.
func (h *Headless) ScrollTo(selector string, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scrolls = append(h.scrolls, Scroll{Selector: selector, Duration: d})
}

// Reload implements store.Window.
func (h *Headless) Reload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads++
}

// Online implements store.Window.
func (h *Headless) Online() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online
}

// Connectivity implements store.Window.
func (h *Headless) Connectivity() <-chan bool { return h.changes }

// SetOnline records a connectivity change and announces it. Announcements are
// dropped when nobody keeps up with them.
func (h *Headless) SetOnline(online bool) {
	h.mu.Lock()
	h.online = online
	h.mu.Unlock()
	select {
	case h.changes <- online:
	default:
	}
}

// Scrolls returns every recorded scroll.
func (h *Headless) Scrolls() []Scroll {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Scroll(nil), h.scrolls...)
}

// Reloads is the number of Reload calls.
func (h *Headless) Reloads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reloads
}
