package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

// Handler processes one decoded payload and returns an outcome code.
// Zero means success; any other value asks for a delayed retry.
// A returned error is treated as a handler fault.
type Handler interface {
	Handle(ctx context.Context, payload domain.Payload) (int, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, payload domain.Payload) (int, error)

// Handle calls f(ctx, payload)
func (f HandlerFunc) Handle(ctx context.Context, payload domain.Payload) (int, error) {
	return f(ctx, payload)
}

// HandlerRef is either a handler supplied directly or the name of a handler
// registered with a Registry
type HandlerRef struct {
	name    string
	handler Handler
}

// Direct references h itself
func Direct(h Handler) HandlerRef {
	return HandlerRef{handler: h}
}

// Named references a handler registered under name
func Named(name string) HandlerRef {
	return HandlerRef{name: name}
}

// String returns the handler name, or "direct" for directly supplied handlers
func (r HandlerRef) String() string {
	if r.handler != nil {
		return "direct"
	}
	return r.name
}

// Registry maps handler names to handlers and queues to their bound handler.
// Named references are resolved once, when a queue is bound.
type Registry struct {
	mu       sync.RWMutex
	named    map[string]Handler
	bindings map[string]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		named:    make(map[string]Handler),
		bindings: make(map[string]Handler),
	}
}

// Register makes h available under name for Named references
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return &domain.ConfigurationError{Reason: "handler name is required"}
	}
	if h == nil {
		return &domain.ConfigurationError{Reason: fmt.Sprintf("handler %q is nil", name)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.named[name]; exists {
		return &domain.ConfigurationError{Reason: fmt.Sprintf("handler %q already registered", name)}
	}
	r.named[name] = h
	return nil
}

// Bind associates queue with the handler ref resolves to. A queue can be bound once.
func (r *Registry) Bind(queue string, ref HandlerRef) error {
	if queue == "" {
		return &domain.ConfigurationError{Reason: "queue name is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bindings[queue]; exists {
		return &domain.ConfigurationError{Queue: queue, Reason: "queue already bound"}
	}

	h := ref.handler
	if h == nil {
		if ref.name == "" {
			return &domain.ConfigurationError{Queue: queue, Reason: "empty handler reference"}
		}
		named, ok := r.named[ref.name]
		if !ok {
			return &domain.ConfigurationError{
				Queue: queue,
				Err:   fmt.Errorf("%w: %s", domain.ErrUnknownHandler, ref.name),
			}
		}
		h = named
	}

	r.bindings[queue] = h
	return nil
}

// Resolve returns the handler bound to queue
func (r *Registry) Resolve(queue string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.bindings[queue]
	if !ok {
		return nil, &domain.ConfigurationError{Queue: queue, Err: domain.ErrQueueNotBound}
	}
	return h, nil
}

// Queues returns the bound queue names in sorted order
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	queues := make([]string, 0, len(r.bindings))
	for q := range r.bindings {
		queues = append(queues, q)
	}
	sort.Strings(queues)
	return queues
}
