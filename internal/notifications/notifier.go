// Package notifications fans directory and session events out to WebSocket
// clients, across instances through Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"memberdir/internal/middleware"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channel names.
const (
	DirectoryUserPrefix = "directory:user:"
	SessionUserPrefix   = "session:user:"
	ChangesChannel      = "directory:changes"
)

// Envelope is the JSON frame written to clients. SessionID, when set,
// restricts delivery to that session's connections.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload under type t.
func NewEnvelope(t string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// Notifier publishes envelopes. With no Redis client it hands messages
// straight to the local subscriber instead.
type Notifier struct {
	rdb *redis.Client

	mu    sync.RWMutex
	local func(channel, payload string)
}

// NewNotifier creates a Notifier over rdb, which may be nil.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishDirectory sends an envelope to every connection of userID.
func (n *Notifier) PublishDirectory(ctx context.Context, userID uuid.UUID, env Envelope) error {
	return n.publishJSON(ctx, DirectoryUserChannel(userID), env)
}

// PublishSession sends a session envelope to every connection of userID.
func (n *Notifier) PublishSession(ctx context.Context, userID uuid.UUID, env Envelope) error {
	return n.publishJSON(ctx, SessionUserChannel(userID), env)
}

// PublishChange announces a confirmed directory mutation to every instance.
func (n *Notifier) PublishChange(ctx context.Context, payload []byte) error {
	return n.publish(ctx, ChangesChannel, string(payload))
}

func (n *Notifier) publishJSON(ctx context.Context, channel string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return n.publish(ctx, channel, string(data))
}

func (n *Notifier) publish(ctx context.Context, channel, payload string) error {
	if n.rdb == nil {
		n.mu.RLock()
		local := n.local
		n.mu.RUnlock()
		if local != nil {
			dispatch(local, channel, payload)
		}
		return nil
	}
	return n.rdb.Publish(ctx, channel, payload).Err()
}

// StartPatternSubscriber subscribes to the user and change channels and calls
// onMessage for each message until ctx is done. The subscription is
// confirmed before it returns.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		n.mu.Lock()
		n.local = onMessage
		n.mu.Unlock()
		go func() {
			<-ctx.Done()
			n.mu.Lock()
			n.local = nil
			n.mu.Unlock()
		}()
		return nil
	}

	sub := n.rdb.PSubscribe(ctx, DirectoryUserPrefix+"*", SessionUserPrefix+"*", ChangesChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				dispatch(onMessage, msg.Channel, msg.Payload)
			}
		}
	}()

	return nil
}

func dispatch(fn func(string, string), channel, payload string) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("panic in notification subscriber",
				slog.Any("panic", r),
				slog.String("channel", channel),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	fn(channel, payload)
}

// DirectoryUserChannel derives the directory channel for a user.
func DirectoryUserChannel(userID uuid.UUID) string {
	return DirectoryUserPrefix + userID.String()
}

// SessionUserChannel derives the session channel for a user.
func SessionUserChannel(userID uuid.UUID) string {
	return SessionUserPrefix + userID.String()
}

// UserFromChannel extracts the user id from a per-user channel.
func UserFromChannel(channel string) (uuid.UUID, bool) {
	for _, prefix := range []string{DirectoryUserPrefix, SessionUserPrefix} {
		if rest, ok := strings.CutPrefix(channel, prefix); ok {
			id, err := uuid.Parse(rest)
			return id, err == nil
		}
	}
	return uuid.Nil, false
}
