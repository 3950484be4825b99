package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Handler runs one analysis session to a terminal state.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

var ErrNoHandler = errors.New("no analysis handler registered")

// Registry maps a handler type to the pipeline that runs sessions of that
// type. Registration happens once at wiring time.
type Registry struct {
	mu    sync.RWMutex
	byTyp map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{byTyp: map[string]Handler{}}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return errors.New("register: nil analysis handler")
	}
	typ := h.Type()
	if typ == "" {
		return errors.New("register: analysis handler has no type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byTyp[typ]; dup {
		return fmt.Errorf("register: %q already registered", typ)
	}
	r.byTyp[typ] = h
	return nil
}

// Resolve returns the handler for typ, or an error wrapping ErrNoHandler.
func (r *Registry) Resolve(typ string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.byTyp[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: type=%q", ErrNoHandler, typ)
	}
	return h, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byTyp))
	for typ := range r.byTyp {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
