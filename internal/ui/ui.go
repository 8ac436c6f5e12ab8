// Package ui defines the narrow contract between the runtime and page
// components. The runtime never looks inside a component; it only resolves
// one by name and asks it to render.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Props are handed to every root component.
type Props struct {
	ID       *int
	Pathname string
}

// Component renders markup for one resolved page.
type Component interface {
	Render(ctx context.Context, w io.Writer, props Props) error
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(ctx context.Context, w io.Writer, props Props) error

// Render implements Component.
func (f ComponentFunc) Render(ctx context.Context, w io.Writer, props Props) error {
	return f(ctx, w, props)
}

// Static renders fixed markup.
func Static(html string) Component {
	return ComponentFunc(func(_ context.Context, w io.Writer, _ Props) error {
		_, err := io.WriteString(w, html)
		return err
	})
}

// RenderToString renders c into a string.
func RenderToString(ctx context.Context, c Component, props Props) (string, error) {
	if c == nil {
		return "", fmt.Errorf("render: nil component")
	}
	var b strings.Builder
	if err := c.Render(ctx, &b, props); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Loader loads the implementation of a named component, possibly over the
// network.
type Loader func(ctx context.Context, name string) (Component, error)

// Registry is the build-time table of components already present in the
// initial bundle. Lookups never wait.
type Registry struct {
	mu    sync.RWMutex
	table map[string]Component
}

// NewRegistry returns a registry seeded with table.
func NewRegistry(table map[string]Component) *Registry {
	r := &Registry{table: make(map[string]Component, len(table))}
	for name, c := range table {
		r.table[name] = c
	}
	return r
}

// Add records c under name.
func (r *Registry) Add(name string, c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[name] = c
}

// Lookup returns the component registered under name.
func (r *Registry) Lookup(name string) (Component, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.table[name]
	return c, ok
}

// Loader exposes the registry as a Loader.
func (r *Registry) Loader() Loader {
	return func(_ context.Context, name string) (Component, error) {
		if c, ok := r.Lookup(name); ok {
			return c, nil
		}
		return nil, fmt.Errorf("component %q is not registered", name)
	}
}
