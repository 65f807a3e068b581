package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"memberdir/internal/directory"
	"memberdir/internal/notifications"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type watcher struct {
	server string
	token  string
	only   map[string]bool
	out    io.Writer
}

func parseTypes(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = true
		}
	}
	return out
}

// run streams events until ctx ends or the server closes the socket.
func (w *watcher) run(ctx context.Context) error {
	ticket, err := w.getTicket(ctx)
	if err != nil {
		return err
	}

	wsURL, err := w.socketURL(ticket)
	if err != nil {
		return err
	}

	c, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.Close()
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		line, typ := describe(raw)
		if len(w.only) > 0 && !w.only[typ] {
			continue
		}
		fmt.Fprintf(w.out, "%s %s\n", time.Now().Format("15:04:05"), line)
	}
}

func (w *watcher) getTicket(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.server+"/api/ws/ticket", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.token)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ticket issuance failed with status %d", resp.StatusCode)
	}

	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Ticket == "" {
		return "", errors.New("server returned an empty ticket")
	}
	return result.Ticket, nil
}

func (w *watcher) socketURL(ticket string) (string, error) {
	base, err := url.Parse(w.server)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     base.Host,
		Path:     strings.TrimRight(base.Path, "/") + "/api/ws",
		RawQuery: url.Values{"ticket": {ticket}}.Encode(),
	}
	return u.String(), nil
}

// describe renders one frame as a single line and returns its type.
func describe(raw []byte) (string, string) {
	var env notifications.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return "raw " + string(raw), ""
	}

	switch directory.EventType(env.Type) {
	case directory.EventViewUpdated, directory.EventFormClosed,
		directory.EventMutationConfirmed, directory.EventMutationFailed:
		var e directory.Event
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return env.Type + " (undecodable payload)", env.Type
		}
		return describeDirectory(e), env.Type
	}

	if env.Type == "session.changed" {
		var s struct {
			Kind      string `json:"kind"`
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(env.Payload, &s); err == nil {
			return fmt.Sprintf("session.changed kind=%s session=%s", s.Kind, s.SessionID), env.Type
		}
	}
	return fmt.Sprintf("%s %s", env.Type, string(env.Payload)), env.Type
}

func describeDirectory(e directory.Event) string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.Mutation != "" {
		fmt.Fprintf(&b, " mutation=%s", e.Mutation)
	}
	if e.UserID != uuid.Nil {
		fmt.Fprintf(&b, " user=%s", e.UserID)
	}
	if v := e.View; v != nil {
		fmt.Fprintf(&b, " v%d profiles=%d", v.Version, v.Total)
		if v.Query.Search != "" {
			fmt.Fprintf(&b, " search=%q", v.Query.Search)
		}
		if v.Form.Mode != "" && v.Form.Mode != directory.FormClosed {
			fmt.Fprintf(&b, " form=%s", v.Form.Mode)
		}
		if v.Pending > 0 {
			fmt.Fprintf(&b, " pending=%d", v.Pending)
		}
		if v.ProfilesError != "" {
			fmt.Fprintf(&b, " profiles_error=%q", v.ProfilesError)
		}
	}
	if e.Error != nil {
		fmt.Fprintf(&b, " error=%q", e.Error.Error)
	}
	return b.String()
}
