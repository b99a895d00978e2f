package topic

import (
	"fmt"
	"sort"
)

// Kind selects which sink terminates a topic.
type Kind string

const (
	Forward Kind = "forward"
	Store   Kind = "store"
)

// ParseKind validates a configured sink kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Forward, Store:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown sink kind %q (want %q or %q)", s, Forward, Store)
}

// Destination is the immutable routing decision for one topic.
// Target is an HTTP path segment for Forward and a collection name for Store.
type Destination struct {
	Topic  Topic
	Kind   Kind
	Target string
}

func destinationFor(t Topic, k Kind) Destination {
	d := Destination{Topic: t, Kind: k}
	if k == Store {
		d.Target = t.Collection()
	} else {
		d.Target = t.Endpoint()
	}
	return d
}

// Registry maps broker topic names to destinations. It is built once at
// startup and is read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	routes   map[string]Destination
	fallback Destination
}

// NewRegistry routes every known topic to defaultKind unless overrides names
// a different kind for it. Overrides are keyed by broker topic name.
func NewRegistry(defaultKind Kind, overrides map[string]Kind) (*Registry, error) {
	if _, err := ParseKind(string(defaultKind)); err != nil {
		return nil, err
	}
	for name, k := range overrides {
		if Parse(name) == Unknown {
			return nil, fmt.Errorf("override for unknown topic %q", name)
		}
		if _, err := ParseKind(string(k)); err != nil {
			return nil, fmt.Errorf("override for topic %q: %w", name, err)
		}
	}

	r := &Registry{
		routes:   make(map[string]Destination, len(known)),
		fallback: destinationFor(Unknown, defaultKind),
	}
	for _, t := range known {
		k := defaultKind
		if o, ok := overrides[t.String()]; ok {
			k = o
		}
		r.routes[t.String()] = destinationFor(t, k)
	}
	return r, nil
}

// Resolve returns the destination for a topic name. When the name is not
// registered it returns the fallback destination and false.
func (r *Registry) Resolve(name string) (Destination, bool) {
	d, ok := r.routes[name]
	if !ok {
		return r.fallback, false
	}
	return d, true
}

// Names returns every registered topic name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.routes))
	for n := range r.routes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Kinds reports which sink kinds at least one route (or the fallback) uses.
func (r *Registry) Kinds() map[Kind]bool {
	out := map[Kind]bool{r.fallback.Kind: true}
	for _, d := range r.routes {
		out[d.Kind] = true
	}
	return out
}
