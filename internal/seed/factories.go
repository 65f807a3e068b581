package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"memberdir/internal/middleware"
	"memberdir/internal/models"
	"memberdir/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Options configures demo member generation.
type Options struct {
	// Seed makes runs reproducible. Zero picks one from the clock.
	Seed int64
	// MaxDays spreads created_at over the last MaxDays days.
	MaxDays int
	// HiddenEvery hides every nth generated profile. Zero hides none.
	HiddenEvery int
	DryRun      bool
}

// Factory builds demo identities and profiles and persists them through the
// repositories.
type Factory struct {
	faker      *gofakeit.Faker
	opts       Options
	identities repository.IdentityRepository
	profiles   repository.ProfileRepository
	skills     []string
	built      int
}

// NewFactory creates a Factory bound to db. db may be nil in dry-run mode.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 90
	}

	f := &Factory{faker: gofakeit.New(opts.Seed), opts: opts}
	if db != nil {
		f.identities = repository.NewIdentityRepository(db)
		f.profiles = repository.NewProfileRepository(db)
	}
	if taxonomy, err := Taxonomy(); err == nil {
		for _, s := range taxonomy {
			f.skills = append(f.skills, s.Name)
		}
	}
	return f
}

// BuildProfile returns a profile for userID that passes form validation.
func (f *Factory) BuildProfile(userID uuid.UUID, overrides ...func(*models.Profile)) models.Profile {
	f.built++
	first, last := f.faker.FirstName(), f.faker.LastName()
	handle := slackHandle(first, last, f.built)

	p := models.Profile{
		UserID:      userID,
		DisplayName: first + " " + last,
		Background:  truncate(f.faker.JobTitle()+" at "+f.faker.Company(), 280),
		Skills:      f.pick(f.skills, 1, 6),
		OpenTo:      f.pickCategories(),
		CanProvide:  f.pickCategories(),
		IsVisible:   f.opts.HiddenEvery <= 0 || f.built%f.opts.HiddenEvery != 0,
		CreatedAt:   f.createdAt(),
	}

	if f.faker.Bool() {
		p.ContactMethod = models.ContactSlack
		p.SlackHandle = &handle
	} else {
		email := fmt.Sprintf("%s@example.com", handle)
		p.ContactMethod = models.ContactEmail
		p.ContactEmail = &email
	}

	bio := f.faker.Sentence(12)
	city := truncate(f.faker.City(), 100)
	linkedin := "https://www.linkedin.com/in/" + strings.ReplaceAll(handle, ".", "-")
	p.Bio = &bio
	p.Location = &city
	p.LinkedinURL = &linkedin

	for _, override := range overrides {
		override(&p)
	}
	p.UpdatedAt = p.CreatedAt
	return p
}

// CreateMember registers a demo identity and its profile.
func (f *Factory) CreateMember(ctx context.Context, overrides ...func(*models.Profile)) (*models.Identity, *models.Profile, error) {
	identity := &models.Identity{}
	p := f.BuildProfile(uuid.Nil, overrides...)
	identity.Email = fmt.Sprintf("%s+%d@example.com", slackHandle(p.DisplayName, "", f.built), f.built)

	if f.opts.DryRun {
		identity.ID = uuid.New()
		p.UserID = identity.ID
		middleware.Logger.InfoContext(ctx, "[dry-run] create member",
			slog.String("email", identity.Email),
			slog.String("display_name", p.DisplayName))
		return identity, &p, nil
	}
	if f.identities == nil || f.profiles == nil {
		return nil, nil, fmt.Errorf("factory has no database")
	}

	if err := f.identities.Create(ctx, identity); err != nil {
		return nil, nil, fmt.Errorf("create identity: %w", err)
	}
	p.UserID = identity.ID
	if err := f.profiles.Create(ctx, &p); err != nil {
		return nil, nil, fmt.Errorf("create profile: %w", err)
	}
	return identity, &p, nil
}

// Members creates n demo members and returns how many were written.
func (f *Factory) Members(ctx context.Context, n int) (int, error) {
	for i := 0; i < n; i++ {
		if _, _, err := f.CreateMember(ctx); err != nil {
			return i, err
		}
	}
	return n, nil
}

func (f *Factory) pick(from []string, minN, maxN int) []string {
	if len(from) == 0 {
		return []string{}
	}
	if maxN > len(from) {
		maxN = len(from)
	}
	if minN > maxN {
		minN = maxN
	}
	shuffled := append([]string{}, from...)
	f.faker.ShuffleStrings(shuffled)
	return shuffled[:f.faker.Number(minN, maxN)]
}

func (f *Factory) pickCategories() []string {
	values := make([]string, 0, len(models.OpportunityCategories))
	for _, c := range models.OpportunityCategories {
		values = append(values, c.Value)
	}
	return f.pick(values, 0, 3)
}

func (f *Factory) createdAt() time.Time {
	now := time.Now().UTC()
	return f.faker.DateRange(now.AddDate(0, 0, -f.opts.MaxDays), now).UTC()
}

// slackHandle keeps only characters a handle may contain.
func slackHandle(first, last string, n int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(first + "." + last) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		}
	}
	handle := strings.Trim(b.String(), ".")
	if handle == "" {
		handle = "member"
	}
	return fmt.Sprintf("%s%d", truncate(handle, 60), n)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
