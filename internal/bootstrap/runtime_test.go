package bootstrap

import (
	"context"
	"testing"

	"memberdir/internal/config"
	"memberdir/internal/database"
	"memberdir/internal/models"

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

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestPrepare_SeedsTaxonomyAndDemoInDevelopment(t *testing.T) {
	db := openTestDB(t)
	cfg := &config.Config{Env: "development"}
	ctx := context.Background()

	require.NoError(t, Prepare(ctx, cfg, db, Options{SeedTaxonomy: true, DemoMembers: 5}))
	assert.Positive(t, count(t, db, &models.Skill{}))
	assert.Equal(t, int64(5), count(t, db, &models.Profile{}))

	// A populated directory is left alone.
	require.NoError(t, Prepare(ctx, cfg, db, Options{DemoMembers: 5}))
	assert.Equal(t, int64(5), count(t, db, &models.Profile{}))
}

func TestPrepare_NoDemoOutsideDevelopment(t *testing.T) {
	db := openTestDB(t)
	cfg := &config.Config{Env: "production"}

	require.NoError(t, Prepare(context.Background(), cfg, db, Options{DemoMembers: 5}))
	assert.Zero(t, count(t, db, &models.Profile{}))
	assert.Zero(t, count(t, db, &models.Skill{}))
}
