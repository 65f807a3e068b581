package repository

import (
	"context"
	"testing"
	"time"

	"memberdir/internal/cache"
	"memberdir/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taxonomy = []models.Skill{
	{Name: "Go", Category: "Backend"},
	{Name: "PostgreSQL", Category: "Data"},
	{Name: "Django", Category: "Backend"},
	{Name: "Figma", Category: "Design"},
	{Name: "MongoDB", Category: "Data"},
}

func TestSkillRepository_ListOrderedByCategory(t *testing.T) {
	t.Parallel()
	repo := NewSkillRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, taxonomy))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 5)

	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"Django", "Go", "MongoDB", "PostgreSQL", "Figma"}, names)
}

func TestSkillRepository_UpsertUpdatesCategory(t *testing.T) {
	t.Parallel()
	repo := NewSkillRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, taxonomy))
	require.NoError(t, repo.Upsert(ctx, []models.Skill{{Name: "Go", Category: "Languages"}}))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	for _, s := range got {
		if s.Name == "Go" {
			assert.Equal(t, "Languages", s.Category)
		}
	}
}

func TestSkillRepository_Suggest(t *testing.T) {
	t.Parallel()
	repo := NewSkillRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, taxonomy))

	got, err := repo.Suggest(ctx, "go", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Go", got[0].Name, "prefix matches come first")
	assert.ElementsMatch(t, []string{"Django", "MongoDB"}, []string{got[1].Name, got[2].Name})

	got, err = repo.Suggest(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.Suggest(ctx, "cobol", 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// Not parallel: swaps the package-level Redis client.
func TestSkillRepository_ListIsCached(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	db := newTestDB(t)
	repo := NewSkillRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, taxonomy))

	first, err := repo.List(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.SkillsTaxonomyKey))

	// A row written behind the cache stays invisible until the TTL lapses.
	require.NoError(t, db.Create(&models.Skill{Name: "Rust", Category: "Backend"}).Error)
	cached, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, len(first))

	mr.FastForward(cache.SkillsTTL + time.Second)
	fresh, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, len(first)+1)
}

func TestIdentityRepository(t *testing.T) {
	t.Parallel()
	repo := NewIdentityRepository(newTestDB(t))
	ctx := context.Background()

	identity := models.Identity{Email: "  Ann@Example.com "}
	require.NoError(t, repo.Create(ctx, &identity))
	assert.NotEqual(t, uuid.Nil, identity.ID)
	assert.Equal(t, "ann@example.com", identity.Email)

	got, err := repo.GetByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, identity.ID, got.ID)
	assert.Nil(t, got.ConfirmedAt)

	missing, err := repo.GetByEmail(ctx, "bo@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, repo.Create(ctx, &models.Identity{Email: "ann@example.com"}))

	first := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkSignedIn(ctx, identity.ID, first))
	require.NoError(t, repo.MarkSignedIn(ctx, identity.ID, first.Add(24*time.Hour)))

	got, err = repo.GetByID(ctx, identity.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ConfirmedAt)
	require.NotNil(t, got.LastSignInAt)
	assert.True(t, got.ConfirmedAt.Equal(first), "confirmed_at keeps the first sign-in")
	assert.True(t, got.LastSignInAt.Equal(first.Add(24*time.Hour)))

	_, err = repo.GetByID(ctx, uuid.New())
	assert.Error(t, err)
}
