package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"memberdir/internal/directory"
	"memberdir/internal/middleware"
	"memberdir/internal/notifications"
	"memberdir/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// EventSessionChanged carries sign-in, sign-out and refresh transitions to
// the member's sockets.
const EventSessionChanged = "session.changed"

// WebsocketHandler handles GET /api/ws
// @Summary Realtime directory events
// @Description Streams view.updated, form.closed, mutation.failed and session.changed for the caller's session
// @Tags realtime
// @Security BearerAuth
// @Param ticket query string false "Single-use ticket from /ws/ticket"
// @Router /ws [get]
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sess, ok := conn.Locals("session").(*session.Session)
		if !ok || sess == nil {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(sess.Identity.ID, sess.ID, conn)
		if err != nil {
			middleware.Logger.Warn("websocket register failed",
				slog.String("user_id", sess.Identity.ID.String()),
				slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}
		defer s.hub.UnregisterClient(client)

		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		ctrl := s.registry.Ensure(ctx, sess)
		cancel()
		view := ctrl.View()
		if snapshot, err := envelopeFor(sess.ID, directory.Event{Type: directory.EventViewUpdated, View: &view}); err == nil {
			client.TrySend(snapshot)
		}

		go client.WritePump()
		client.ReadPump()
	})
}

func envelopeFor(sessionID string, e directory.Event) ([]byte, error) {
	env, err := notifications.NewEnvelope(string(e.Type), e)
	if err != nil {
		return nil, err
	}
	env.SessionID = sessionID
	return json.Marshal(env)
}

// forwardDirectoryEvent relays a controller event to the session's sockets.
func (s *Server) forwardDirectoryEvent(sessionID string, userID uuid.UUID, e directory.Event) {
	env, err := notifications.NewEnvelope(string(e.Type), e)
	if err != nil {
		middleware.Logger.Error("failed to encode directory event", slog.String("error", err.Error()))
		return
	}
	env.SessionID = sessionID
	if err := s.notifier.PublishDirectory(context.Background(), userID, env); err != nil {
		middleware.Logger.Warn("failed to publish directory event",
			slog.String("type", string(e.Type)),
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
	}
}

// forwardSessionEvent tells every socket of the member about a session
// transition.
func (s *Server) forwardSessionEvent(e session.Event) {
	if e.Session == nil {
		return
	}
	env, err := notifications.NewEnvelope(EventSessionChanged, fiber.Map{
		"kind":       e.Kind,
		"session_id": e.Session.ID,
	})
	if err != nil {
		return
	}
	if err := s.notifier.PublishSession(context.Background(), e.Session.Identity.ID, env); err != nil {
		middleware.Logger.Warn("failed to publish session event",
			slog.String("kind", string(e.Kind)),
			slog.String("error", err.Error()))
	}
}

// publishChange reloads this instance's other views, then announces the
// mutation to the remaining instances.
func (s *Server) publishChange(ctx context.Context, c directory.Change) {
	c.Instance = s.instanceID
	localCtx, cancel := context.WithTimeout(ctx, readTimeout)
	s.registry.HandleChange(localCtx, c)
	cancel()

	payload, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.notifier.PublishChange(ctx, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish directory change",
			slog.String("error", err.Error()))
	}
}

// handleChange reloads this instance's views after a change anywhere.
func (s *Server) handleChange(payload []byte) {
	var c directory.Change
	if err := json.Unmarshal(payload, &c); err != nil {
		middleware.Logger.Warn("invalid directory change", slog.String("error", err.Error()))
		return
	}
	if c.Instance == s.instanceID {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	s.registry.HandleChange(ctx, c)
}
