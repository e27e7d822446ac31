package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Connection describes how to reach one backend deployment.
type Connection struct {
	Name         string
	URL          string
	FctWorkerURL string
	Token        string
}

// BearerToken returns the connection token with surrounding whitespace removed.
// Tokens mounted from secrets frequently carry a trailing newline.
func (c Connection) BearerToken() string {
	return strings.TrimSpace(c.Token)
}

type Registry struct {
	connections map[string]Connection
	names       []string
}

// New builds a registry from the given connections. Names must be non-empty
// and unique. A connection without a function worker URL falls back to its
// main URL.
func New(connections []Connection) (*Registry, error) {
	r := &Registry{
		connections: make(map[string]Connection, len(connections)),
		names:       make([]string, 0, len(connections)),
	}

	for _, c := range connections {
		if c.Name == "" {
			return nil, fmt.Errorf("connection with url %q has no name", c.URL)
		}
		if _, exists := r.connections[c.Name]; exists {
			return nil, fmt.Errorf("duplicate connection name %q", c.Name)
		}
		if c.FctWorkerURL == "" {
			c.FctWorkerURL = c.URL
		}

		r.connections[c.Name] = c
		r.names = append(r.names, c.Name)
	}

	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the connection registered under name. Matching is exact
// and case-sensitive.
func (r *Registry) Lookup(name string) (Connection, bool) {
	c, ok := r.connections[name]
	return c, ok
}

// Names returns the registered connection names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// All returns a copy of every registered connection, sorted by name.
func (r *Registry) All() []Connection {
	all := make([]Connection, 0, len(r.names))
	for _, name := range r.names {
		all = append(all, r.connections[name])
	}
	return all
}

func (r *Registry) Len() int {
	return len(r.connections)
}
