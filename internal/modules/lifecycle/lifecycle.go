// Package lifecycle tells the services that own content whether an item may
// be shown. Content refs are tagged by kind and each kind has its own
// handler in a Registry.
package lifecycle

import (
	"context"
	"sync"

	"github.com/mx-space/sentinel/internal/models"
	"github.com/mx-space/sentinel/internal/pkg/apperr"
)

type State string

const (
	StatePublishable State = "publishable"
	StateWithdrawn   State = "withdrawn"
)

// Publisher receives visibility changes for content of one kind.
type Publisher interface {
	Publishable(ctx context.Context, ref models.ContentRef) error
	Withdrawn(ctx context.Context, ref models.ContentRef, reason string) error
}

// Funcs adapts two functions to a Publisher. Nil functions do nothing.
type Funcs struct {
	OnPublishable func(ctx context.Context, ref models.ContentRef) error
	OnWithdrawn   func(ctx context.Context, ref models.ContentRef, reason string) error
}

func (f Funcs) Publishable(ctx context.Context, ref models.ContentRef) error {
	if f.OnPublishable == nil {
		return nil
	}
	return f.OnPublishable(ctx, ref)
}

func (f Funcs) Withdrawn(ctx context.Context, ref models.ContentRef, reason string) error {
	if f.OnWithdrawn == nil {
		return nil
	}
	return f.OnWithdrawn(ctx, ref, reason)
}

// Registry dispatches on ContentRef.Kind. It is itself a Publisher.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.ContentKind]Publisher
	fallback Publisher
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.ContentKind]Publisher)}
}

// Register installs p for kind, replacing any previous handler.
func (r *Registry) Register(kind models.ContentKind, p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = p
}

// SetFallback installs the handler used for kinds without their own.
func (r *Registry) SetFallback(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

func (r *Registry) lookup(kind models.ContentKind) (Publisher, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown content kind %q", kind)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.handlers[kind]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, apperr.NotFound("no lifecycle handler for %s", kind)
}

func (r *Registry) Publishable(ctx context.Context, ref models.ContentRef) error {
	p, err := r.lookup(ref.Kind)
	if err != nil {
		return err
	}
	return p.Publishable(ctx, ref)
}

func (r *Registry) Withdrawn(ctx context.Context, ref models.ContentRef, reason string) error {
	p, err := r.lookup(ref.Kind)
	if err != nil {
		return err
	}
	return p.Withdrawn(ctx, ref, reason)
}
