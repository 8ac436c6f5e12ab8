package router

import (
	"context"
	"sync"

	"github.com/bhandras/shellkit/internal/store"
)

// MemoryHistory is an in-process History. Every transition is published on
// Events.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []Location
	index   int
	events  chan HistoryEvent
}

// NewMemoryHistory starts at initial. The first event it publishes is a POP
// flagged as the first rendering.
func NewMemoryHistory(initial string) *MemoryHistory {
	h := &MemoryHistory{
		entries: []Location{ParseLocation(initial)},
		events:  make(chan HistoryEvent, 64),
	}
	h.events <- HistoryEvent{Location: h.entries[0], Action: Pop, IsFirstRendering: true}
	return h
}

// Events carries history transitions.
func (h *MemoryHistory) Events() <-chan HistoryEvent { return h.events }

// Location is the current entry.
func (h *MemoryHistory) Location() Location {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

// Push implements History.
func (h *MemoryHistory) Push(path string, state map[string]any) error {
	loc := ParseLocation(path)
	loc.State = state
	h.mu.Lock()
	h.entries = append(h.entries[:h.index+1], loc)
	h.index = len(h.entries) - 1
	h.mu.Unlock()
	h.events <- HistoryEvent{Location: loc, Action: Push}
	return nil
}

// Replace implements History.
func (h *MemoryHistory) Replace(path string, state map[string]any) error {
	loc := ParseLocation(path)
	loc.State = state
	h.mu.Lock()
	h.entries[h.index] = loc
	h.mu.Unlock()
	h.events <- HistoryEvent{Location: loc, Action: Replace}
	return nil
}

// Back moves one entry back, like the browser back button. It reports false
// at the start of the history.
func (h *MemoryHistory) Back() bool {
	h.mu.Lock()
	if h.index == 0 {
		h.mu.Unlock()
		return false
	}
	h.index--
	loc := h.entries[h.index]
	h.mu.Unlock()
	h.events <- HistoryEvent{Location: loc, Action: Pop}
	return true
}

// Pump dispatches every event from events as ActionChange until ctx ends or
// events is closed.
func Pump(ctx context.Context, s *store.Store, events <-chan HistoryEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.Dispatch(ctx, Change(ev)); err != nil {
				return err
			}
		}
	}
}
