// Package directory holds the member directory view pipeline: the profile
// store adapter, the filter/sort/search engine and the per-session view
// controller that keeps the derived list consistent with remote mutations.
package directory

import (
	"context"
	"errors"
	"time"

	"memberdir/internal/featureflags"
	"memberdir/internal/models"
	"memberdir/internal/observability"
	"memberdir/internal/repository"

	"github.com/google/uuid"
)

// ReadResult is the outcome of a fail-soft read. On failure Value still
// returns an empty collection so callers can render "nothing", while Err
// keeps the reason.
type ReadResult[T any] struct {
	value T
	err   error
}

// ReadOK wraps a successful read.
func ReadOK[T any](v T) ReadResult[T] {
	return ReadResult[T]{value: v}
}

// ReadFailed wraps a failed read; empty is what Value returns.
func ReadFailed[T any](err error, empty T) ReadResult[T] {
	return ReadResult[T]{value: empty, err: err}
}

func (r ReadResult[T]) Value() T   { return r.value }
func (r ReadResult[T]) Err() error { return r.err }
func (r ReadResult[T]) OK() bool   { return r.err == nil }

// Store is the remote surface the controller depends on.
type Store interface {
	FetchProfiles(ctx context.Context) ReadResult[[]models.Profile]
	FetchSkills(ctx context.Context) ReadResult[[]models.Skill]
	CreateProfile(ctx context.Context, p models.Profile) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, u ProfileUpdate) (*models.Profile, error)
	DeleteProfile(ctx context.Context, userID uuid.UUID) error
	HasProfile(ctx context.Context, userID uuid.UUID) (bool, error)
}

// ProfileUpdate is the edit payload. Only the allow-listed columns are
// transmitted; the extended fields are written only when the
// extended_profile_edit flag is on for the member.
type ProfileUpdate struct {
	DisplayName   string
	Background    string
	Skills        []string
	OpenTo        []string
	CanProvide    []string
	ContactMethod models.ContactMethod
	SlackHandle   *string
	ContactEmail  *string

	Bio         *string
	Location    *string
	LinkedinURL *string
	TwitterURL  *string
	WebsiteURL  *string
}

// UpdateAllowList is the set of columns an edit may write.
var UpdateAllowList = []string{
	"display_name",
	"background",
	"skills",
	"open_to",
	"can_provide",
	"contact_method",
	"slack_handle",
	"contact_email",
	"updated_at",
}

// ExtendedUpdateColumns are the setup-time fields an edit may also write when
// extended_profile_edit is enabled.
var ExtendedUpdateColumns = []string{
	"bio",
	"location",
	"linkedin_url",
	"twitter_url",
	"website_url",
}

// RemoteStore implements Store over the GORM repositories.
type RemoteStore struct {
	profiles repository.ProfileRepository
	skills   repository.SkillRepository
	flags    *featureflags.Manager
	now      func() time.Time
}

// StoreOption configures a RemoteStore.
type StoreOption func(*RemoteStore)

// WithFlags enables per-member evaluation of extended_profile_edit.
func WithFlags(m *featureflags.Manager) StoreOption {
	return func(s *RemoteStore) { s.flags = m }
}

// WithClock replaces the clock used to stamp updated_at.
func WithClock(now func() time.Time) StoreOption {
	return func(s *RemoteStore) { s.now = now }
}

// NewStore builds the store adapter.
func NewStore(profiles repository.ProfileRepository, skills repository.SkillRepository, opts ...StoreOption) *RemoteStore {
	s := &RemoteStore{profiles: profiles, skills: skills, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchProfiles returns visible profiles, newest first.
func (s *RemoteStore) FetchProfiles(ctx context.Context) ReadResult[[]models.Profile] {
	profiles, err := s.profiles.ListVisible(ctx)
	if err != nil {
		observability.LogReadFailure(ctx, "profiles", err)
		return ReadFailed(&models.RemoteReadError{Op: "fetch profiles", Err: err}, []models.Profile{})
	}
	return ReadOK(models.NormalizeProfiles(profiles))
}

// FetchSkills returns the taxonomy ordered by category.
func (s *RemoteStore) FetchSkills(ctx context.Context) ReadResult[[]models.Skill] {
	skills, err := s.skills.List(ctx)
	if err != nil {
		observability.LogReadFailure(ctx, "skills", err)
		return ReadFailed(&models.RemoteReadError{Op: "fetch skills", Err: err}, []models.Skill{})
	}
	if skills == nil {
		skills = []models.Skill{}
	}
	return ReadOK(skills)
}

// CreateProfile inserts p and returns the stored row.
func (s *RemoteStore) CreateProfile(ctx context.Context, p models.Profile) (*models.Profile, error) {
	p.Normalize()
	if err := s.profiles.Create(ctx, &p); err != nil {
		return nil, s.writeFailure(ctx, "create", "insert profile", err)
	}
	return &p, nil
}

// UpdateProfile writes the allow-listed fields of u to the row owned by
// userID. can_provide is always written and updated_at is always stamped.
func (s *RemoteStore) UpdateProfile(ctx context.Context, userID uuid.UUID, u ProfileUpdate) (*models.Profile, error) {
	values := &models.Profile{
		DisplayName:   u.DisplayName,
		Background:    u.Background,
		Skills:        nonNil(u.Skills),
		OpenTo:        nonNil(u.OpenTo),
		CanProvide:    nonNil(u.CanProvide),
		ContactMethod: u.ContactMethod,
		SlackHandle:   u.SlackHandle,
		ContactEmail:  u.ContactEmail,
		Bio:           u.Bio,
		Location:      u.Location,
		LinkedinURL:   u.LinkedinURL,
		TwitterURL:    u.TwitterURL,
		WebsiteURL:    u.WebsiteURL,
		UpdatedAt:     s.now().UTC(),
	}

	stored, err := s.profiles.UpdateColumns(ctx, userID, s.updateColumns(userID), values)
	if err != nil {
		return nil, s.writeFailure(ctx, "update", "update profile", err)
	}
	return stored, nil
}

func (s *RemoteStore) updateColumns(userID uuid.UUID) []string {
	cols := append([]string{}, UpdateAllowList...)
	if s.flags.Enabled(featureflags.ExtendedProfileEdit, userID) {
		cols = append(cols, ExtendedUpdateColumns...)
	}
	return cols
}

// DeleteProfile hard-deletes the row owned by userID.
func (s *RemoteStore) DeleteProfile(ctx context.Context, userID uuid.UUID) error {
	if err := s.profiles.Delete(ctx, userID); err != nil {
		return s.writeFailure(ctx, "delete", "delete profile", err)
	}
	return nil
}

// HasProfile reports whether userID already completed profile setup.
func (s *RemoteStore) HasProfile(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.profiles.HasProfile(ctx, userID)
}

// writeFailure normalizes err to a RemoteWriteError and reports it.
func (s *RemoteStore) writeFailure(ctx context.Context, metricOp, op string, err error) error {
	var writeErr *models.RemoteWriteError
	if !errors.As(err, &writeErr) {
		writeErr = &models.RemoteWriteError{Op: op, Message: err.Error(), Err: err}
	}
	observability.LogWriteFailure(ctx, metricOp, writeErr.Code, err)
	return writeErr
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
