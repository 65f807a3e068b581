package directory

import (
	"context"
	"sync"
	"testing"

	"memberdir/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(id string) *session.Session {
	return &session.Session{ID: id, Identity: session.Identity{ID: uuid.New(), Email: id + "@example.com"}}
}

func TestRegistry_FollowsSessionBroker(t *testing.T) {
	t.Parallel()
	stub := newStoreStub(annAndBo()...)
	broker := session.NewBroker()
	r := NewRegistry(stub)
	r.Attach(broker)
	defer r.Close()

	s := testSession("sess-a")
	broker.Publish(session.Event{Kind: session.SignedIn, Session: s})

	ctrl, ok := r.Get("sess-a")
	require.True(t, ok)
	assert.True(t, ctrl.View().Loaded)
	assert.Len(t, ctrl.View().Profiles, 2)
	assert.Equal(t, 1, r.Len())

	broker.Publish(session.Event{Kind: session.TokenRefreshed, Session: s})
	same, ok := r.Get("sess-a")
	require.True(t, ok)
	assert.Same(t, ctrl, same)

	broker.Publish(session.Event{Kind: session.SignedOut, Session: s})
	_, ok = r.Get("sess-a")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistry_EnsureIsIdempotent(t *testing.T) {
	t.Parallel()
	stub := newStoreStub()
	r := NewRegistry(stub)
	defer r.Close()

	s := testSession("sess-b")
	first := r.Ensure(context.Background(), s)
	second := r.Ensure(context.Background(), s)
	assert.Same(t, first, second)
	assert.Len(t, stub.Calls(), 2, "only the first Ensure loads")
}

func TestRegistry_ForwardsEventsAndPublishesChanges(t *testing.T) {
	t.Parallel()
	stub := newStoreStub()

	var (
		mu        sync.Mutex
		forwarded []EventType
		changes   []Change
	)
	r := NewRegistry(stub,
		WithReconcilerFactory(func(session.Identity) Reconciler { return noDelay }),
		WithEventForwarder(func(_ string, _ uuid.UUID, e Event) {
			mu.Lock()
			forwarded = append(forwarded, e.Type)
			mu.Unlock()
		}),
		WithChangePublisher(func(_ context.Context, c Change) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		}),
	)
	defer r.Close()

	s := testSession("sess-c")
	ctrl := r.Ensure(context.Background(), s)
	ctrl.OpenCreateForm()
	res := ctrl.Submit(context.Background(), ProfileForm{DisplayName: "Cy", ContactMethod: "email"})
	require.NoError(t, res.Err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, forwarded, EventFormClosed)
	assert.Contains(t, forwarded, EventMutationConfirmed)
	require.Len(t, changes, 1)
	assert.Equal(t, Change{Kind: MutationCreate, UserID: s.Identity.ID, Origin: "sess-c"}, changes[0])
}

func TestRegistry_HandleChangeSkipsOrigin(t *testing.T) {
	t.Parallel()
	originStore := newStoreStub()
	r := NewRegistry(originStore)
	defer r.Close()

	r.Ensure(context.Background(), testSession("origin"))
	r.Ensure(context.Background(), testSession("other"))
	before := len(originStore.Calls())

	r.HandleChange(context.Background(), Change{Kind: MutationDelete, Origin: "origin"})

	// One reload (profiles + skills) for the other session only.
	assert.Equal(t, before+2, len(originStore.Calls()))
}

func TestRegistry_CloseDropsViews(t *testing.T) {
	t.Parallel()
	broker := session.NewBroker()
	r := NewRegistry(newStoreStub())
	r.Attach(broker)

	r.Ensure(context.Background(), testSession("x"))
	r.Close()

	assert.Zero(t, r.Len())
	assert.Zero(t, broker.Len())
}
