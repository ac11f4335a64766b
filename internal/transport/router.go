package transport

import (
	"context"
	"sort"
	"sync"

	"autosync/internal/pathutil"
)

type route struct {
	root      string
	transport Transport
}

// Router sends each path to the transport registered for the deepest root
// that contains it.
type Router struct {
	mu     sync.RWMutex
	routes []route
}

func NewRouter() *Router {
	return &Router{}
}

// Set registers or replaces the transport for root.
func (r *Router) Set(root string, transport Transport) {
	root = pathutil.Canonical(root)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.routes {
		if r.routes[i].root == root {
			r.routes[i].transport = transport
			return
		}
	}
	r.routes = append(r.routes, route{root: root, transport: transport})
	sort.SliceStable(r.routes, func(i, j int) bool {
		return len(r.routes[i].root) > len(r.routes[j].root)
	})
}

func (r *Router) Delete(root string) {
	root = pathutil.Canonical(root)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.routes {
		if r.routes[i].root == root {
			r.routes = append(r.routes[:i], r.routes[i+1:]...)
			return
		}
	}
}

func (r *Router) Roots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roots := make([]string, 0, len(r.routes))
	for _, route := range r.routes {
		roots = append(roots, route.root)
	}
	sort.Strings(roots)
	return roots
}

// Lookup returns the transport for path.
func (r *Router) Lookup(path string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, route := range r.routes {
		if pathutil.Within(route.root, path) {
			return route.transport, true
		}
	}
	return nil, false
}

func (r *Router) Upload(ctx context.Context, path string) error {
	transport, ok := r.Lookup(path)
	if !ok {
		return NewError("", "upload", path, ErrNoRoute)
	}
	return transport.Upload(ctx, path)
}

func (r *Router) Remove(ctx context.Context, path string) error {
	transport, ok := r.Lookup(path)
	if !ok {
		return NewError("", "remove", path, ErrNoRoute)
	}
	return transport.Remove(ctx, path)
}
