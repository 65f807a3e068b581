package directory

import (
	"context"
	"errors"
	"time"

	"memberdir/internal/models"
	"memberdir/internal/observability"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// MutationKind names a profile mutation.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Expectation is what a reload has to show for a mutation to be visible.
type Expectation struct {
	Kind      MutationKind
	UserID    uuid.UUID
	UpdatedAt time.Time
}

// VisibleIn reports whether profiles reflects the mutation.
func (e Expectation) VisibleIn(profiles []models.Profile) bool {
	for i := range profiles {
		if profiles[i].UserID != e.UserID {
			continue
		}
		switch e.Kind {
		case MutationDelete:
			return false
		case MutationUpdate:
			return !profiles[i].UpdatedAt.Before(e.UpdatedAt)
		default:
			return true
		}
	}
	return e.Kind == MutationDelete
}

// ReloadFunc refetches the source list and returns what was loaded.
type ReloadFunc func(ctx context.Context) ReadResult[[]models.Profile]

// Reconciler decides how to reload after a successful mutation.
type Reconciler interface {
	Name() string
	Reconcile(ctx context.Context, exp Expectation, reload ReloadFunc) error
}

// ErrNotVisible is returned when a poll gives up before the mutation shows.
var ErrNotVisible = errors.New("mutation not yet visible")

// Reconcile modes accepted by NewReconciler.
const (
	ReconcileDelay = "delay"
	ReconcilePoll  = "poll"
)

// NewReconciler builds the policy named by mode, falling back to FixedDelay.
func NewReconciler(mode string, delay time.Duration, maxAttempts int) Reconciler {
	if mode == ReconcilePoll {
		if maxAttempts <= 0 {
			maxAttempts = 5
		}
		return PollUntilVisible{Interval: delay, MaxAttempts: uint(maxAttempts)}
	}
	return FixedDelay{Delay: delay}
}

// FixedDelay waits Delay and reloads once. The delay papers over
// read-after-write lag; nothing checks that the write is visible.
type FixedDelay struct {
	Delay time.Duration
}

func (FixedDelay) Name() string { return ReconcileDelay }

func (f FixedDelay) Reconcile(ctx context.Context, exp Expectation, reload ReloadFunc) error {
	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	res := reload(ctx)
	observability.ReconcileAttempts.WithLabelValues(ReconcileDelay, outcome(res, exp)).Inc()
	return nil
}

// PollUntilVisible reloads every Interval until the mutation is observable
// or MaxAttempts reloads have been made.
type PollUntilVisible struct {
	Interval    time.Duration
	MaxAttempts uint
}

func (PollUntilVisible) Name() string { return ReconcilePoll }

func (p PollUntilVisible) Reconcile(ctx context.Context, exp Expectation, reload ReloadFunc) error {
	tries := p.MaxAttempts
	if tries == 0 {
		tries = 1
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		res := reload(ctx)
		result := outcome(res, exp)
		observability.ReconcileAttempts.WithLabelValues(ReconcilePoll, result).Inc()
		if result == "visible" {
			return struct{}{}, nil
		}
		return struct{}{}, ErrNotVisible
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Interval)),
		backoff.WithMaxTries(tries),
	)
	return err
}

func outcome(res ReadResult[[]models.Profile], exp Expectation) string {
	switch {
	case !res.OK():
		return "read_failed"
	case exp.VisibleIn(res.Value()):
		return "visible"
	default:
		return "stale"
	}
}
