package directory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"memberdir/internal/middleware"
	"memberdir/internal/observability"
	"memberdir/internal/session"

	"github.com/google/uuid"
)

// Change announces a confirmed profile mutation to every other view.
// Origin is the mutating session; Instance is the server that published it.
type Change struct {
	Kind     MutationKind `json:"kind"`
	UserID   uuid.UUID    `json:"user_id"`
	Origin   string       `json:"origin,omitempty"`
	Instance string       `json:"instance,omitempty"`
}

// Registry maps session ids to their controllers. It follows the session
// broker: signed_in creates and loads a view, signed_out drops it.
type Registry struct {
	store       Store
	loadTimeout time.Duration
	reconciler  func(session.Identity) Reconciler
	forward     func(sessionID string, userID uuid.UUID, e Event)
	publish     func(ctx context.Context, c Change)

	mu    sync.RWMutex
	views map[string]*entry

	unsubscribe func()
}

type entry struct {
	ctrl        *Controller
	unsubscribe func()
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithReconcilerFactory picks the reconcile policy per member.
func WithReconcilerFactory(fn func(session.Identity) Reconciler) RegistryOption {
	return func(r *Registry) { r.reconciler = fn }
}

// WithEventForwarder receives every controller event, tagged with the
// session and its owner.
func WithEventForwarder(fn func(sessionID string, userID uuid.UUID, e Event)) RegistryOption {
	return func(r *Registry) { r.forward = fn }
}

// WithChangePublisher is called after each confirmed mutation so other
// instances can refresh their views.
func WithChangePublisher(fn func(ctx context.Context, c Change)) RegistryOption {
	return func(r *Registry) { r.publish = fn }
}

// WithLoadTimeout bounds the initial load issued on sign-in.
func WithLoadTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.loadTimeout = d }
}

// NewRegistry creates an empty registry.
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:       store,
		loadTimeout: 5 * time.Second,
		views:       make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach subscribes the registry to b. Calling it twice replaces the
// previous subscription.
func (r *Registry) Attach(b *session.Broker) {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.unsubscribe = b.Subscribe(r.handleSessionEvent)
}

// Close detaches from the broker and drops every view.
func (r *Registry) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range views {
		e.unsubscribe()
	}
	observability.ActiveViews.Sub(float64(len(views)))
}

func (r *Registry) handleSessionEvent(e session.Event) {
	if e.Session == nil {
		return
	}
	switch e.Kind {
	case session.SignedIn:
		ctx, cancel := context.WithTimeout(context.Background(), r.loadTimeout)
		defer cancel()
		r.Ensure(ctx, e.Session)
	case session.SignedOut:
		r.Drop(e.Session.ID)
	case session.TokenRefreshed:
		// The session id survives a refresh so the existing view stays.
	}
}

// Get returns the controller for sessionID.
func (r *Registry) Get(sessionID string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.views[sessionID]
	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Ensure returns the controller for s, creating and loading one if this
// instance has not seen the session yet.
func (r *Registry) Ensure(ctx context.Context, s *session.Session) *Controller {
	if ctrl, ok := r.Get(s.ID); ok {
		return ctrl
	}

	var opts []ControllerOption
	if r.reconciler != nil {
		opts = append(opts, WithReconciler(r.reconciler(s.Identity)))
	}
	ctrl := NewController(r.store, s.Identity, opts...)

	r.mu.Lock()
	if existing, ok := r.views[s.ID]; ok {
		r.mu.Unlock()
		return existing.ctrl
	}
	sessionID := s.ID
	unsubscribe := ctrl.Subscribe(func(e Event) { r.onControllerEvent(sessionID, ctrl, e) })
	r.views[s.ID] = &entry{ctrl: ctrl, unsubscribe: unsubscribe}
	r.mu.Unlock()

	observability.ActiveViews.Inc()
	ctrl.Load(ctx)
	return ctrl
}

// Drop discards the view for sessionID.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	e, ok := r.views[sessionID]
	delete(r.views, sessionID)
	r.mu.Unlock()
	if !ok {
		return
	}
	e.unsubscribe()
	observability.ActiveViews.Dec()
}

// Len returns the number of live views.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// HandleChange reloads every view except the one that made the change.
func (r *Registry) HandleChange(ctx context.Context, c Change) {
	r.mu.RLock()
	targets := make([]*Controller, 0, len(r.views))
	for id, e := range r.views {
		if id == c.Origin {
			continue
		}
		targets = append(targets, e.ctrl)
	}
	r.mu.RUnlock()

	for _, ctrl := range targets {
		ctrl.Load(ctx)
	}
	if len(targets) > 0 {
		middleware.Logger.DebugContext(ctx, "reloaded views after directory change",
			slog.String("kind", string(c.Kind)),
			slog.Int("views", len(targets)))
	}
}

func (r *Registry) onControllerEvent(sessionID string, ctrl *Controller, e Event) {
	if r.forward != nil {
		r.forward(sessionID, ctrl.Identity().ID, e)
	}
	if e.Type == EventMutationConfirmed && r.publish != nil {
		r.publish(context.Background(), Change{Kind: e.Mutation, UserID: e.UserID, Origin: sessionID})
	}
}
