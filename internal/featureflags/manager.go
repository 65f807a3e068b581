// Package featureflags evaluates operator-configured rollout switches.
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Flags the directory knows how to honour.
const (
	// ExtendedProfileEdit lets the update path write the optional link and bio
	// fields on top of the core allow-list.
	ExtendedProfileEdit = "extended_profile_edit"
	// PollReconcile switches a member's views from the fixed-delay refresh to
	// polling until the written row is visible.
	PollReconcile = "poll_reconcile"
)

// Manager holds flags parsed from a "name=value" list such as
// "extended_profile_edit=on,poll_reconcile=25%".
type Manager struct {
	flags map[string]string
}

// NewManager parses raw. Malformed pairs are skipped.
func NewManager(raw string) *Manager {
	flags := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name, value = normalize(name), normalize(value)
		if name == "" || value == "" {
			continue
		}
		flags[name] = value
	}
	return &Manager{flags: flags}
}

// Enabled reports whether name is on for userID. Values are on/true/1,
// off/false/0, or a percentage bucketed deterministically by user.
func (m *Manager) Enabled(name string, userID uuid.UUID) bool {
	if m == nil {
		return false
	}
	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	switch {
	case err != nil, pct <= 0:
		return false
	case pct >= 100:
		return true
	case userID == uuid.Nil:
		return false
	}
	return bucket(name, userID) < pct
}

// Names returns the configured flag names in sorted order.
func (m *Manager) Names() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.flags))
	for name := range m.flags {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Raw returns a copy of the configured values.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string)
	if m == nil {
		return out
	}
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

// Snapshot evaluates every flag for one member.
func (m *Manager) Snapshot(userID uuid.UUID) map[string]bool {
	out := make(map[string]bool)
	if m == nil {
		return out
	}
	for name := range m.flags {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func bucket(name string, userID uuid.UUID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name)))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write(userID[:])
	return int(h.Sum32() % 100)
}
