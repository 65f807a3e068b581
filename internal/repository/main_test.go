package repository

import (
	"context"
	"testing"
	"time"

	"memberdir/internal/database"
	"memberdir/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestDB returns a private in-memory sqlite database with the schema applied.
func newTestDB(t *testing.T) *gorm.DB {
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

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// seedProfile inserts an identity and its profile, created at the given time.
func seedProfile(t *testing.T, db *gorm.DB, name string, createdAt time.Time, visible bool) models.Profile {
	t.Helper()
	ctx := context.Background()

	identity := models.Identity{Email: name + "-" + uuid.NewString()[:8] + "@example.com"}
	require.NoError(t, NewIdentityRepository(db).Create(ctx, &identity))

	linkedin := "https://linkedin.com/in/" + name
	p := models.Profile{
		UserID:        identity.ID,
		DisplayName:   name,
		Background:    name + " background",
		Skills:        []string{"Go"},
		OpenTo:        []string{"consulting"},
		ContactMethod: models.ContactEmail,
		LinkedinURL:   &linkedin,
		IsVisible:     visible,
		CreatedAt:     createdAt,
	}
	require.NoError(t, db.WithContext(ctx).Create(&p).Error)
	if !visible {
		// gorm skips zero-valued fields that carry a default on insert.
		require.NoError(t, db.Model(&models.Profile{}).Where("id = ?", p.ID).Update("is_visible", false).Error)
	}
	return p
}
