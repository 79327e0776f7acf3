package jobx

import (
	"context"
	"sort"
	"sync"
)

// Handler executes one job type.
type Handler interface {
	Execute(ctx context.Context, job *Job) Outcome
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) Outcome

func (f HandlerFunc) Execute(ctx context.Context, job *Job) Outcome {
	return f(ctx, job)
}

// Registry maps job types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for jobType.
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// RegisterFunc is Register for plain functions.
func (r *Registry) RegisterFunc(jobType string, fn func(ctx context.Context, job *Job) Outcome) {
	r.Register(jobType, HandlerFunc(fn))
}

func (r *Registry) Lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types lists registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute runs the handler for job.Type. Unknown types and panics come back as
// failed outcomes so they go through the normal retry policy.
func (r *Registry) Execute(ctx context.Context, job *Job) (out Outcome) {
	h, ok := r.Lookup(job.Type)
	if !ok {
		return Failedf("unknown job type: %s", job.Type)
	}

	defer func() {
		if p := recover(); p != nil {
			out = Failedf("handler panic: %v", p)
		}
	}()
	return h.Execute(ctx, job)
}
