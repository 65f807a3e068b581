package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"memberdir/internal/directory"
	"memberdir/internal/notifications"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, typ string, payload any) []byte {
	t.Helper()
	env, err := notifications.NewEnvelope(typ, payload)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

// fakeServer issues one ticket for "good-token" and plays frames to the
// socket that redeems it.
func fakeServer(t *testing.T, frames [][]byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws/ticket", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ticket": "t-1", "expires_in": 30})
	})
	mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ticket") != "t-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.Close() }()
		for _, f := range frames {
			if err := c.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		}
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		// Wait for the client's close reply.
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, _ = c.ReadMessage()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_PrintsEventsUntilClosed(t *testing.T) {
	userID := uuid.New()
	frames := [][]byte{
		frame(t, string(directory.EventViewUpdated), directory.Event{
			Type: directory.EventViewUpdated,
			View: &directory.View{Total: 3, Version: 2, Loaded: true},
		}),
		frame(t, string(directory.EventMutationConfirmed), directory.Event{
			Type:     directory.EventMutationConfirmed,
			Mutation: directory.MutationDelete,
			UserID:   userID,
		}),
		frame(t, "session.changed", map[string]string{"kind": "signed_out", "session_id": "s-9"}),
	}
	srv := fakeServer(t, frames)

	var out bytes.Buffer
	w := &watcher{server: srv.URL, token: "good-token", only: parseTypes(""), out: &out}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.run(ctx))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "view.updated v2 profiles=3")
	assert.Contains(t, lines[1], "mutation.confirmed mutation=delete user="+userID.String())
	assert.Contains(t, lines[2], "session.changed kind=signed_out session=s-9")
}

func TestRun_TypeFilter(t *testing.T) {
	frames := [][]byte{
		frame(t, string(directory.EventViewUpdated), directory.Event{Type: directory.EventViewUpdated, View: &directory.View{}}),
		frame(t, string(directory.EventFormClosed), directory.Event{Type: directory.EventFormClosed}),
	}
	srv := fakeServer(t, frames)

	var out bytes.Buffer
	w := &watcher{server: srv.URL, token: "good-token", only: parseTypes("form.closed"), out: &out}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.run(ctx))

	assert.NotContains(t, out.String(), "view.updated")
	assert.Contains(t, out.String(), "form.closed")
}

func TestRun_RejectedToken(t *testing.T) {
	srv := fakeServer(t, nil)

	w := &watcher{server: srv.URL, token: "bad", out: &bytes.Buffer{}}
	err := w.run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:8375", "ws://localhost:8375/api/ws?ticket=abc"},
		{"https://dir.example.com/", "wss://dir.example.com/api/ws?ticket=abc"},
		{"https://example.com/members", "wss://example.com/members/api/ws?ticket=abc"},
	}
	for _, tt := range tests {
		w := &watcher{server: strings.TrimRight(tt.server, "/")}
		got, err := w.socketURL("abc")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestDescribe(t *testing.T) {
	line, typ := describe([]byte("not json"))
	assert.Equal(t, "", typ)
	assert.Equal(t, "raw not json", line)

	failed := frame(t, string(directory.EventMutationFailed), map[string]any{
		"type":     "mutation.failed",
		"mutation": "update",
		"error":    map[string]string{"error": "permission denied", "code": "42501"},
	})
	line, typ = describe(failed)
	assert.Equal(t, "mutation.failed", typ)
	assert.Equal(t, `mutation.failed mutation=update error="permission denied"`, line)

	line, typ = describe(frame(t, "custom.kind", map[string]int{"n": 1}))
	assert.Equal(t, "custom.kind", typ)
	assert.Equal(t, `custom.kind {"n":1}`, line)
}
