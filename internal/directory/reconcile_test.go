package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"memberdir/internal/models"
	"memberdir/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectation_VisibleIn(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	stamp := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	row := models.Profile{UserID: id, UpdatedAt: stamp}
	other := models.Profile{UserID: uuid.New()}

	tests := []struct {
		name     string
		exp      Expectation
		profiles []models.Profile
		want     bool
	}{
		{"create present", Expectation{Kind: MutationCreate, UserID: id}, []models.Profile{other, row}, true},
		{"create absent", Expectation{Kind: MutationCreate, UserID: id}, []models.Profile{other}, false},
		{"delete absent", Expectation{Kind: MutationDelete, UserID: id}, []models.Profile{other}, true},
		{"delete still present", Expectation{Kind: MutationDelete, UserID: id}, []models.Profile{row}, false},
		{"update caught up", Expectation{Kind: MutationUpdate, UserID: id, UpdatedAt: stamp}, []models.Profile{row}, true},
		{"update stale", Expectation{Kind: MutationUpdate, UserID: id, UpdatedAt: stamp.Add(time.Second)}, []models.Profile{row}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.exp.VisibleIn(tt.profiles))
		})
	}
}

// scriptedReload returns the results in order, repeating the last one.
func scriptedReload(results ...ReadResult[[]models.Profile]) (ReloadFunc, *int) {
	calls := 0
	return func(context.Context) ReadResult[[]models.Profile] {
		i := min(calls, len(results)-1)
		calls++
		return results[i]
	}, &calls
}

func TestFixedDelay_ReloadsOnceAfterDelay(t *testing.T) {
	t.Parallel()
	reload, calls := scriptedReload(ReadOK([]models.Profile{}))

	start := time.Now()
	err := FixedDelay{Delay: 20 * time.Millisecond}.Reconcile(context.Background(), Expectation{Kind: MutationCreate, UserID: uuid.New()}, reload)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFixedDelay_HonoursCancellation(t *testing.T) {
	t.Parallel()
	reload, calls := scriptedReload(ReadOK([]models.Profile{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := FixedDelay{Delay: time.Hour}.Reconcile(ctx, Expectation{}, reload)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, *calls)
}

func TestPollUntilVisible_StopsWhenVisible(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	stale := ReadOK([]models.Profile{})
	failed := ReadFailed(errors.New("timeout"), []models.Profile{})
	visible := ReadOK([]models.Profile{{UserID: id}})
	reload, calls := scriptedReload(stale, failed, visible, stale)

	err := PollUntilVisible{Interval: time.Millisecond, MaxAttempts: 5}.
		Reconcile(context.Background(), Expectation{Kind: MutationCreate, UserID: id}, reload)
	require.NoError(t, err)
	assert.Equal(t, 3, *calls)
}

func TestPollUntilVisible_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	reload, calls := scriptedReload(ReadOK([]models.Profile{}))

	err := PollUntilVisible{Interval: time.Millisecond, MaxAttempts: 3}.
		Reconcile(context.Background(), Expectation{Kind: MutationCreate, UserID: uuid.New()}, reload)
	assert.ErrorIs(t, err, ErrNotVisible)
	assert.Equal(t, 3, *calls)
}

func TestNewReconciler(t *testing.T) {
	t.Parallel()

	r := NewReconciler(ReconcilePoll, 50*time.Millisecond, 0)
	poll, ok := r.(PollUntilVisible)
	require.True(t, ok)
	assert.Equal(t, uint(5), poll.MaxAttempts)
	assert.Equal(t, ReconcilePoll, r.Name())

	r = NewReconciler("whatever", 100*time.Millisecond, 3)
	assert.Equal(t, FixedDelay{Delay: 100 * time.Millisecond}, r)
	assert.Equal(t, ReconcileDelay, r.Name())
}

func TestController_PollReconcileWaitsForUpdatedRow(t *testing.T) {
	t.Parallel()
	me := uuid.New()
	stamp := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	old := ownProfile(me)
	old.UpdatedAt = stamp.Add(-time.Hour)
	fresh := old.Clone()
	fresh.UpdatedAt = stamp
	fresh.DisplayName = "Ann B"

	stub := newStoreStub()
	fetches := 0
	stub.fetchProfilesFn = func(context.Context) ReadResult[[]models.Profile] {
		fetches++
		if fetches < 4 {
			return ReadOK([]models.Profile{old.Clone()})
		}
		return ReadOK([]models.Profile{fresh.Clone()})
	}
	stub.updateFn = func(context.Context, uuid.UUID, ProfileUpdate) (*models.Profile, error) {
		p := fresh.Clone()
		return &p, nil
	}

	c := NewController(stub, session.Identity{ID: me}, WithReconciler(PollUntilVisible{Interval: time.Millisecond, MaxAttempts: 10}))
	c.Load(context.Background())
	_, err := c.OpenEditForm(me)
	require.NoError(t, err)

	res := c.Submit(context.Background(), ProfileForm{DisplayName: "Ann B", ContactMethod: models.ContactSlack})
	require.NoError(t, res.Err)
	assert.Equal(t, 4, fetches)
	assert.Equal(t, []string{"Ann B"}, names(c.View().Profiles))
}
