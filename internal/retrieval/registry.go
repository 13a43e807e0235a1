package retrieval

import (
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

// Kind groups methods the way callers select them.
type Kind string

const (
	Syntactic Kind = "syntactic"
	Semantic  Kind = "semantic"
)

type entry struct {
	provider Provider
	kind     Kind
}

// Registry maps method names to providers. Adding a method means registering
// a provider under its name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]entry)}
}

// Register adds p under p.Name(). Registering a name twice replaces the
// earlier provider.
func (r *Registry) Register(kind Kind, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = entry{provider: p, kind: kind}
}

func (r *Registry) Lookup(method string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.providers[method]
	if !ok {
		return nil, apperrors.BadRequest(apperrors.ErrUnknownMethod, "%q is not registered", method)
	}
	return e.provider, nil
}

// Resolve looks up every method, failing on the first unknown name.
func (r *Registry) Resolve(methods []string) ([]Provider, error) {
	out := make([]Provider, 0, len(methods))
	for _, m := range methods {
		p, err := r.Lookup(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Methods lists registered method names of the given kind, sorted. An empty
// kind lists all of them.
func (r *Registry) Methods(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, e := range r.providers {
		if kind == "" || e.kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
