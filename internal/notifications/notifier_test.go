package notifications

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilRedisWithoutSubscriberIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	env, err := NewEnvelope("form.closed", nil)
	require.NoError(t, err)
	assert.NoError(t, n.PublishDirectory(context.Background(), uuid.New(), env))
}

func TestChannels(t *testing.T) {
	t.Parallel()
	id := uuid.MustParse("8f14e45f-ceea-467a-9af0-3c2a1b5d7e10")

	assert.Equal(t, "directory:user:8f14e45f-ceea-467a-9af0-3c2a1b5d7e10", DirectoryUserChannel(id))
	assert.Equal(t, "session:user:8f14e45f-ceea-467a-9af0-3c2a1b5d7e10", SessionUserChannel(id))

	tests := []struct {
		channel string
		want    uuid.UUID
		ok      bool
	}{
		{DirectoryUserChannel(id), id, true},
		{SessionUserChannel(id), id, true},
		{"directory:user:42", uuid.Nil, false},
		{ChangesChannel, uuid.Nil, false},
	}
	for _, tt := range tests {
		got, ok := UserFromChannel(tt.channel)
		assert.Equal(t, tt.ok, ok, tt.channel)
		assert.Equal(t, tt.want, got, tt.channel)
	}
}

func TestNotifier_RedisRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	hub := NewHub()
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes int32
	require.NoError(t, hub.StartWiring(ctx, n, func([]byte) { atomic.AddInt32(&changes, 1) }))

	id := uuid.New()
	c, err := hub.Register(id, "s1", nil)
	require.NoError(t, err)

	env, err := NewEnvelope("session.changed", map[string]string{"kind": "signed_out"})
	require.NoError(t, err)
	require.NoError(t, n.PublishSession(ctx, id, env))
	require.NoError(t, n.PublishChange(ctx, []byte(`{}`)))

	select {
	case msg := <-c.Send:
		assert.JSONEq(t, `{"type":"session.changed","payload":{"kind":"signed_out"}}`, string(msg))
	case <-time.After(testEventuallyTimeout):
		t.Fatal("no message delivered")
	}
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&changes) == 1
	}, testEventuallyTimeout, testPollInterval)

	_ = hub.Shutdown(context.Background())
}

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())

	payloads := make(chan string, 2)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(_ string, payload string) {
		payloads <- payload
	}))
	require.NoError(t, n.PublishChange(context.Background(), []byte("before-cancel")))
	assert.Equal(t, "before-cancel", <-payloads)

	cancel()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, n.PublishChange(context.Background(), []byte("after-cancel")))
	assert.Never(t, func() bool {
		select {
		case payload := <-payloads:
			return payload == "after-cancel"
		default:
			return false
		}
	}, 200*time.Millisecond, testPollInterval)
}
