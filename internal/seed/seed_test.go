package seed

import (
	"context"
	"strings"
	"testing"

	"memberdir/internal/database"
	"memberdir/internal/directory"
	"memberdir/internal/models"
	"memberdir/internal/repository"
	"memberdir/internal/validation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func TestTaxonomy_Embedded(t *testing.T) {
	t.Parallel()

	skills, err := Taxonomy()
	require.NoError(t, err)
	require.NotEmpty(t, skills)

	names := make(map[string]bool)
	for _, s := range skills {
		assert.NotEmpty(t, s.Category, s.Name)
		assert.LessOrEqual(t, len([]rune(s.Name)), 60)
		names[s.Name] = true
	}
	assert.True(t, names["Go"])
	assert.True(t, names["PostgreSQL"])
}

func TestParseTaxonomy_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"duplicate across groups", "- category: A\n  skills: [Go]\n- category: B\n  skills: [go]\n", "listed under both"},
		{"missing category", "- skills: [Go]\n", "without a category"},
		{"not a list", "category: A\n", "parse taxonomy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTaxonomy([]byte(tt.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSkills_Idempotent(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewSkillRepository(db)
	ctx := context.Background()

	n, err := Skills(ctx, repo)
	require.NoError(t, err)
	_, err = Skills(ctx, repo)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Skill{}).Count(&count).Error)
	assert.Equal(t, int64(n), count)
}

func TestBuildProfile_PassesFormValidation(t *testing.T) {
	t.Parallel()
	f := NewFactory(nil, Options{Seed: 42, DryRun: true, HiddenEvery: 3})

	for i := 0; i < 30; i++ {
		p := f.BuildProfile(uuid.New())

		require.NoError(t, validation.ValidateDisplayName(p.DisplayName))
		require.NoError(t, validation.ValidateSkills(p.Skills))
		require.NoError(t, validation.ValidateCategories("open_to", p.OpenTo))
		require.NoError(t, validation.ValidateCategories("can_provide", p.CanProvide))
		require.NoError(t, validation.ValidateURL("linkedin_url", *p.LinkedinURL))

		switch p.ContactMethod {
		case models.ContactSlack:
			require.NotNil(t, p.SlackHandle)
			assert.Nil(t, p.ContactEmail)
			require.NoError(t, validation.ValidateContact(p.ContactMethod, *p.SlackHandle, ""))
		case models.ContactEmail:
			require.NotNil(t, p.ContactEmail)
			assert.Nil(t, p.SlackHandle)
			require.NoError(t, validation.ValidateContact(p.ContactMethod, "", *p.ContactEmail))
		default:
			t.Fatalf("unexpected contact method %q", p.ContactMethod)
		}

		assert.Equal(t, (i+1)%3 != 0, p.IsVisible)
		assert.False(t, p.CreatedAt.IsZero())
	}
}

func TestBuildProfile_Reproducible(t *testing.T) {
	t.Parallel()
	a := NewFactory(nil, Options{Seed: 7}).BuildProfile(uuid.Nil)
	b := NewFactory(nil, Options{Seed: 7}).BuildProfile(uuid.Nil)
	assert.Equal(t, a.DisplayName, b.DisplayName)
	assert.Equal(t, a.Skills, b.Skills)
}

func TestMembers_ShowUpInDirectory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	f := NewFactory(db, Options{Seed: 1, HiddenEvery: 4})
	n, err := f.Members(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	var identities int64
	require.NoError(t, db.Model(&models.Identity{}).Count(&identities).Error)
	assert.Equal(t, int64(8), identities)

	store := directory.NewStore(repository.NewProfileRepository(db), repository.NewSkillRepository(db))
	res := store.FetchProfiles(ctx)
	require.True(t, res.OK())
	assert.Len(t, res.Value(), 6, "every fourth profile is hidden")
	for _, p := range res.Value() {
		assert.True(t, strings.Contains(p.DisplayName, " "))
	}
}

func TestCreateMember_DryRunWritesNothing(t *testing.T) {
	t.Parallel()
	f := NewFactory(nil, Options{Seed: 3, DryRun: true})

	identity, p, err := f.CreateMember(context.Background(), func(p *models.Profile) {
		p.DisplayName = "Ada Lovelace"
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, identity.ID)
	assert.Equal(t, identity.ID, p.UserID)
	assert.Equal(t, "Ada Lovelace", p.DisplayName)
	assert.True(t, strings.HasSuffix(identity.Email, "@example.com"))
}
