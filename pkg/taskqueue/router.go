package taskqueue

import (
	"context"
	"sort"
	"sync"
)

// Router dispatches by topic. A task with an unregistered topic fails
// permanently.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Dispatcher
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]Dispatcher)}
}

func (r *Router) Handle(topic string, d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = d
}

func (r *Router) HandleFunc(topic string, fn func(ctx context.Context, task Task) error) {
	r.Handle(topic, DispatcherFunc(fn))
}

func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Router) Dispatch(ctx context.Context, task Task) error {
	r.mu.RLock()
	d, ok := r.handlers[task.Topic]
	r.mu.RUnlock()
	if !ok {
		return Permanent(ErrUnknownTopic.Wrap(nil, "%q", task.Topic))
	}
	return d.Dispatch(ctx, task)
}
