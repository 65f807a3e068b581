package directory

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"memberdir/internal/middleware"
	"memberdir/internal/models"
	"memberdir/internal/observability"
	"memberdir/internal/session"
	"memberdir/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FormMode is the state of the add/edit form.
type FormMode string

const (
	FormClosed FormMode = "closed"
	FormCreate FormMode = "create"
	FormEdit   FormMode = "edit"
)

// ProfileForm is what the member fills in. Skills is the comma-separated
// text field; the setup-only fields are used by CompleteSetup.
type ProfileForm struct {
	DisplayName   string               `json:"display_name"`
	Skills        string               `json:"skills"`
	Background    string               `json:"background"`
	OpenTo        []string             `json:"open_to"`
	CanProvide    []string             `json:"can_provide"`
	ContactMethod models.ContactMethod `json:"contact_method"`
	SlackHandle   string               `json:"slack_handle"`
	ContactEmail  string               `json:"contact_email"`

	Bio         string `json:"bio,omitempty"`
	Location    string `json:"location,omitempty"`
	LinkedinURL string `json:"linkedin_url,omitempty"`
	TwitterURL  string `json:"twitter_url,omitempty"`
	WebsiteURL  string `json:"website_url,omitempty"`
}

// FormState is the open form, if any, and its prefilled values.
type FormState struct {
	Mode   FormMode    `json:"mode"`
	UserID uuid.UUID   `json:"user_id,omitempty"`
	Values ProfileForm `json:"values"`
}

// View is a snapshot of a controller's derived state.
type View struct {
	Profiles      []models.Profile `json:"profiles"`
	Total         int              `json:"total"`
	Query         Query            `json:"query"`
	Skills        []models.Skill   `json:"skills"`
	Form          FormState        `json:"form"`
	ProfilesError string           `json:"profiles_error,omitempty"`
	SkillsError   string           `json:"skills_error,omitempty"`
	Pending       int              `json:"pending_mutations"`
	Loaded        bool             `json:"loaded"`
	Version       uint64           `json:"version"`
}

// EventType names a controller notification.
type EventType string

const (
	EventViewUpdated       EventType = "view.updated"
	EventFormClosed        EventType = "form.closed"
	EventMutationConfirmed EventType = "mutation.confirmed"
	EventMutationFailed    EventType = "mutation.failed"
)

// Event is delivered to controller subscribers.
type Event struct {
	Type     EventType             `json:"type"`
	View     *View                 `json:"view,omitempty"`
	Mutation MutationKind          `json:"mutation,omitempty"`
	UserID   uuid.UUID             `json:"user_id,omitempty"`
	Error    *models.ErrorResponse `json:"error,omitempty"`
}

// MutationResult is the outcome of Submit, CompleteSetup or Delete once the
// durable phase has finished.
type MutationResult struct {
	Kind    MutationKind    `json:"kind"`
	Profile *models.Profile `json:"profile,omitempty"`
	Err     error           `json:"-"`
}

// Controller owns one session's authoritative profile list and filter
// parameters and re-derives the visible list whenever either changes.
// Store calls run outside the lock.
type Controller struct {
	store     Store
	identity  session.Identity
	reconcile Reconciler
	// reloadTimeout bounds the reloads that follow a mutation. They run
	// detached from the mutation's context, which may already be done.
	reloadTimeout time.Duration

	mu          sync.Mutex
	profiles    []models.Profile
	skills      []models.Skill
	profilesErr error
	skillsErr   error
	query       Query
	view        []models.Profile
	form        FormState
	pending     int
	loaded      bool
	version     uint64

	subMu   sync.RWMutex
	subs    map[uint64]func(Event)
	nextSub uint64
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithReconciler sets the post-mutation reload policy.
func WithReconciler(r Reconciler) ControllerOption {
	return func(c *Controller) { c.reconcile = r }
}

// WithReloadTimeout bounds the reload that follows each mutation.
func WithReloadTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.reloadTimeout = d }
}

// WithQuery sets the initial filter parameters.
func WithQuery(q Query) ControllerOption {
	return func(c *Controller) { c.query = q }
}

// NewController creates an empty controller for identity. Call Load to fill it.
func NewController(store Store, identity session.Identity, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:         store,
		identity:      identity,
		reconcile:     FixedDelay{Delay: 100 * time.Millisecond},
		reloadTimeout: 5 * time.Second,
		query:         DefaultQuery(),
		profiles:      []models.Profile{},
		skills:        []models.Skill{},
		view:          []models.Profile{},
		form:          FormState{Mode: FormClosed},
		subs:          make(map[uint64]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Identity returns the member this controller belongs to.
func (c *Controller) Identity() session.Identity {
	return c.identity
}

// Subscribe registers fn for controller events and returns an unsubscribe
// function. Events are delivered on the goroutine that caused them.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	c.subMu.RLock()
	ids := slices.Sorted(maps.Keys(c.subs))
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = c.subs[id]
	}
	c.subMu.RUnlock()

	for _, e := range events {
		for _, fn := range fns {
			fn(e)
		}
	}
}

// Load fetches profiles and skills concurrently, waits for both, stores them
// and re-derives the view. Read failures render as empty lists and are kept
// in View.ProfilesError and View.SkillsError.
func (c *Controller) Load(ctx context.Context) View {
	ctx, span := observability.TraceDirectoryOp(ctx, "load", c.identity.ID.String())
	defer span.End()

	var (
		profiles ReadResult[[]models.Profile]
		skills   ReadResult[[]models.Skill]
		g        errgroup.Group
	)
	g.Go(func() error {
		profiles = c.store.FetchProfiles(ctx)
		return nil
	})
	g.Go(func() error {
		skills = c.store.FetchSkills(ctx)
		return nil
	})
	_ = g.Wait()

	c.mu.Lock()
	c.profiles = profiles.Value()
	c.profilesErr = profiles.Err()
	c.skills = skills.Value()
	c.skillsErr = skills.Err()
	c.loaded = true
	c.deriveLocked()
	v := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(Event{Type: EventViewUpdated, View: &v})
	return v
}

// reload is the ReloadFunc handed to the reconcile policy.
func (c *Controller) reload(ctx context.Context) ReadResult[[]models.Profile] {
	c.Load(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	profiles := make([]models.Profile, len(c.profiles))
	copy(profiles, c.profiles)
	if c.profilesErr != nil {
		return ReadFailed(c.profilesErr, profiles)
	}
	return ReadOK(profiles)
}

// View returns the current derived state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Profile returns the cached profile owned by userID.
func (c *Controller) Profile(userID uuid.UUID) (models.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.profiles {
		if c.profiles[i].UserID == userID {
			return c.profiles[i].Clone(), true
		}
	}
	return models.Profile{}, false
}

// SetQuery replaces every filter parameter and re-derives.
func (c *Controller) SetQuery(q Query) View {
	return c.updateQuery(func(cur *Query) { *cur = q })
}

// SetSearch changes the free-text search.
func (c *Controller) SetSearch(search string) View {
	return c.updateQuery(func(q *Query) { q.Search = search })
}

// SetSort changes the sort key.
func (c *Controller) SetSort(key SortKey) View {
	return c.updateQuery(func(q *Query) { q.Sort = key })
}

// SetCategory changes the category token; "" means all.
func (c *Controller) SetCategory(category string) View {
	return c.updateQuery(func(q *Query) { q.Category = category })
}

// SetFacet changes which category list the filter inspects.
func (c *Controller) SetFacet(f Facet) View {
	return c.updateQuery(func(q *Query) { q.Facet = f })
}

func (c *Controller) updateQuery(mutate func(*Query)) View {
	c.mu.Lock()
	mutate(&c.query)
	c.query = ParseQuery(c.query.Search, string(c.query.Facet), c.query.Category, string(c.query.Sort))
	c.deriveLocked()
	v := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(Event{Type: EventViewUpdated, View: &v})
	return v
}

// OpenCreateForm opens an empty add form.
func (c *Controller) OpenCreateForm() FormState {
	c.mu.Lock()
	c.form = FormState{
		Mode: FormCreate,
		Values: ProfileForm{
			OpenTo:        []string{},
			CanProvide:    []string{},
			ContactMethod: models.ContactSlack,
		},
	}
	form := c.form
	v := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(Event{Type: EventViewUpdated, View: &v})
	return form
}

// OpenEditForm opens the edit form prefilled from the cached profile.
// Profiles owned by someone else are rejected with models.ErrNotOwner.
func (c *Controller) OpenEditForm(userID uuid.UUID) (FormState, error) {
	if !c.owns(userID) {
		return FormState{}, models.ErrNotOwner
	}

	c.mu.Lock()
	var target *models.Profile
	for i := range c.profiles {
		if c.profiles[i].UserID == userID {
			target = &c.profiles[i]
			break
		}
	}
	if target == nil {
		c.mu.Unlock()
		return FormState{}, models.NewNotFoundError("Profile", userID)
	}
	c.form = FormState{Mode: FormEdit, UserID: userID, Values: formFromProfile(target)}
	form := c.form
	v := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(Event{Type: EventViewUpdated, View: &v})
	return form, nil
}

// CloseForm dismisses the form without saving. An in-flight mutation is not
// cancelled.
func (c *Controller) CloseForm() {
	c.mu.Lock()
	if c.form.Mode == FormClosed {
		c.mu.Unlock()
		return
	}
	c.form = FormState{Mode: FormClosed}
	v := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(Event{Type: EventFormClosed, View: &v})
}

// Submit saves the open form. The form is closed and form.closed emitted
// before the store is called; the list is then reloaded per the reconcile
// policy on success, or immediately after mutation.failed on failure.
func (c *Controller) Submit(ctx context.Context, form ProfileForm) MutationResult {
	if c.identity.ID == uuid.Nil {
		return MutationResult{Err: models.NewUnauthorizedError("You must be logged in to create/edit a profile")}
	}

	c.mu.Lock()
	mode := c.form.Mode
	target := c.form.UserID
	c.mu.Unlock()

	switch mode {
	case FormCreate:
		if err := validateForm(form); err != nil {
			return MutationResult{Kind: MutationCreate, Err: err}
		}
		p := profileFromForm(c.identity.ID, form)
		return c.mutate(ctx, MutationCreate, func(ctx context.Context) (*models.Profile, error) {
			return c.store.CreateProfile(ctx, p)
		})
	case FormEdit:
		if !c.owns(target) {
			return MutationResult{Kind: MutationUpdate, Err: models.ErrNotOwner}
		}
		if err := validateForm(form); err != nil {
			return MutationResult{Kind: MutationUpdate, Err: err}
		}
		u := updateFromForm(form)
		return c.mutate(ctx, MutationUpdate, func(ctx context.Context) (*models.Profile, error) {
			return c.store.UpdateProfile(ctx, c.identity.ID, u)
		})
	default:
		return MutationResult{Err: models.NewValidationError("Open the add or edit form before submitting")}
	}
}

// CompleteSetup creates the member's first profile from the post-sign-in
// setup form. contact_email is always the sign-in address.
func (c *Controller) CompleteSetup(ctx context.Context, form ProfileForm) MutationResult {
	if c.identity.ID == uuid.Nil {
		return MutationResult{Err: models.NewUnauthorizedError("You must be logged in to create/edit a profile")}
	}
	if err := validateForm(form); err != nil {
		return MutationResult{Kind: MutationCreate, Err: err}
	}
	p := setupProfileFromForm(c.identity, form)
	return c.mutate(ctx, MutationCreate, func(ctx context.Context) (*models.Profile, error) {
		return c.store.CreateProfile(ctx, p)
	})
}

// Delete removes the member's own profile. Ownership is checked before any
// store call.
func (c *Controller) Delete(ctx context.Context, userID uuid.UUID) MutationResult {
	if !c.owns(userID) {
		return MutationResult{Kind: MutationDelete, Err: models.ErrNotOwner}
	}
	return c.mutate(ctx, MutationDelete, func(ctx context.Context) (*models.Profile, error) {
		return nil, c.store.DeleteProfile(ctx, userID)
	})
}

// mutate runs the two-phase protocol: intent applied (form closed), then
// durable confirmation (reload). The cache is never patched locally.
func (c *Controller) mutate(ctx context.Context, kind MutationKind, call func(context.Context) (*models.Profile, error)) MutationResult {
	c.mu.Lock()
	c.form = FormState{Mode: FormClosed}
	c.pending++
	closed := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(Event{Type: EventFormClosed, View: &closed, Mutation: kind})

	ctx, span := observability.TraceDirectoryOp(ctx, "mutate."+string(kind), c.identity.ID.String())
	var callErr error
	defer func() { observability.EndSpan(span, callErr) }()

	defer func() {
		c.mu.Lock()
		c.pending--
		c.mu.Unlock()
	}()

	stored, err := call(ctx)

	reloadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.reloadTimeout)
	defer cancel()

	if err != nil {
		callErr = err
		middleware.Logger.WarnContext(ctx, "profile mutation failed",
			slog.String("mutation", string(kind)),
			slog.String("user_id", c.identity.ID.String()),
			slog.String("error", err.Error()))
		c.emit(Event{Type: EventMutationFailed, Mutation: kind, UserID: c.identity.ID, Error: errorPayload(err)})
		c.Load(reloadCtx)
		return MutationResult{Kind: kind, Err: err}
	}

	exp := Expectation{Kind: kind, UserID: c.identity.ID}
	if stored != nil {
		exp.UpdatedAt = stored.UpdatedAt
	}
	if err := c.reconcile.Reconcile(reloadCtx, exp, c.reload); err != nil {
		middleware.Logger.WarnContext(ctx, "reconcile did not observe mutation",
			slog.String("policy", c.reconcile.Name()),
			slog.String("mutation", string(kind)),
			slog.String("error", err.Error()))
	}

	c.emit(Event{Type: EventMutationConfirmed, Mutation: kind, UserID: c.identity.ID})
	return MutationResult{Kind: kind, Profile: stored}
}

func (c *Controller) owns(userID uuid.UUID) bool {
	return c.identity.ID != uuid.Nil && userID == c.identity.ID
}

func (c *Controller) deriveLocked() {
	start := time.Now()
	c.view = Apply(c.profiles, c.query)
	c.version++
	observability.ViewDerivationLatency.Observe(time.Since(start).Seconds())
}

func (c *Controller) snapshotLocked() View {
	v := View{
		Profiles: make([]models.Profile, len(c.view)),
		Total:    len(c.profiles),
		Query:    c.query,
		Skills:   append([]models.Skill{}, c.skills...),
		Form:     c.form,
		Pending:  c.pending,
		Loaded:   c.loaded,
		Version:  c.version,
	}
	for i := range c.view {
		v.Profiles[i] = c.view[i].Clone()
	}
	if c.profilesErr != nil {
		v.ProfilesError = c.profilesErr.Error()
	}
	if c.skillsErr != nil {
		v.SkillsError = c.skillsErr.Error()
	}
	return v
}

func errorPayload(err error) *models.ErrorResponse {
	var writeErr *models.RemoteWriteError
	if errors.As(err, &writeErr) {
		return &models.ErrorResponse{Error: writeErr.Message, Code: writeErr.Code, Details: writeErr.Details, Hint: writeErr.Hint}
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return &models.ErrorResponse{Error: appErr.Message, Code: appErr.Code}
	}
	return &models.ErrorResponse{Error: err.Error()}
}

// validateForm checks every field the form can carry. Create, edit and
// setup share it because an edit may write the optional fields too.
func validateForm(form ProfileForm) error {
	checks := []error{
		validation.ValidateDisplayName(form.DisplayName),
		validation.ValidateSkills(validation.SplitSkills(form.Skills)),
		validation.ValidateCategories("open_to", form.OpenTo),
		validation.ValidateCategories("can_provide", form.CanProvide),
		validation.ValidateContact(form.ContactMethod, form.SlackHandle, form.ContactEmail),
		validation.ValidateTextLengths(form.Background, form.Bio, form.Location),
		validation.ValidateURL("linkedin_url", form.LinkedinURL),
		validation.ValidateURL("twitter_url", form.TwitterURL),
		validation.ValidateURL("website_url", form.WebsiteURL),
	}
	for _, err := range checks {
		if err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	return nil
}

func formFromProfile(p *models.Profile) ProfileForm {
	return ProfileForm{
		DisplayName:   p.DisplayName,
		Skills:        strings.Join(p.Skills, ", "),
		Background:    p.Background,
		OpenTo:        append([]string{}, p.OpenTo...),
		CanProvide:    append([]string{}, p.CanProvide...),
		ContactMethod: p.ContactMethod,
		SlackHandle:   deref(p.SlackHandle),
		ContactEmail:  deref(p.ContactEmail),
		Bio:           deref(p.Bio),
		Location:      deref(p.Location),
		LinkedinURL:   deref(p.LinkedinURL),
		TwitterURL:    deref(p.TwitterURL),
		WebsiteURL:    deref(p.WebsiteURL),
	}
}

// contactFields keeps only the handle or address that matches method.
func contactFields(form ProfileForm) (slack, email *string) {
	switch form.ContactMethod {
	case models.ContactSlack:
		return optional(form.SlackHandle), nil
	case models.ContactEmail:
		return nil, optional(form.ContactEmail)
	}
	return nil, nil
}

func profileFromForm(userID uuid.UUID, form ProfileForm) models.Profile {
	slack, email := contactFields(form)
	return models.Profile{
		UserID:        userID,
		DisplayName:   strings.TrimSpace(form.DisplayName),
		Skills:        validation.SplitSkills(form.Skills),
		Background:    form.Background,
		OpenTo:        nonNil(form.OpenTo),
		CanProvide:    nonNil(form.CanProvide),
		ContactMethod: form.ContactMethod,
		SlackHandle:   slack,
		ContactEmail:  email,
		IsVisible:     true,
	}
}

func setupProfileFromForm(identity session.Identity, form ProfileForm) models.Profile {
	p := profileFromForm(identity.ID, form)
	p.ContactEmail = optional(identity.Email)
	p.Bio = optional(form.Bio)
	p.Location = optional(form.Location)
	p.LinkedinURL = optional(form.LinkedinURL)
	p.TwitterURL = optional(form.TwitterURL)
	p.WebsiteURL = optional(form.WebsiteURL)
	return p
}

func updateFromForm(form ProfileForm) ProfileUpdate {
	slack, email := contactFields(form)
	return ProfileUpdate{
		DisplayName:   strings.TrimSpace(form.DisplayName),
		Background:    form.Background,
		Skills:        validation.SplitSkills(form.Skills),
		OpenTo:        form.OpenTo,
		CanProvide:    form.CanProvide,
		ContactMethod: form.ContactMethod,
		SlackHandle:   slack,
		ContactEmail:  email,
		Bio:           optional(form.Bio),
		Location:      optional(form.Location),
		LinkedinURL:   optional(form.LinkedinURL),
		TwitterURL:    optional(form.TwitterURL),
		WebsiteURL:    optional(form.WebsiteURL),
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
