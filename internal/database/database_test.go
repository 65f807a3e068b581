package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"memberdir/internal/config"
	"memberdir/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

type fakeMigrationStore struct {
	applied []int
	ran     []int
	failOn  int
}

func (f *fakeMigrationStore) GetAppliedMigrations(context.Context) ([]int, error) {
	return f.applied, nil
}

func (f *fakeMigrationStore) ApplyMigration(_ context.Context, m Migration) error {
	if m.Version == f.failOn {
		return errors.New("syntax error")
	}
	f.ran = append(f.ran, m.Version)
	return nil
}

func (f *fakeMigrationStore) RevertMigration(context.Context, Migration) error {
	return nil
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	all := GetMigrations()
	require.Len(t, all, 3)
	for i, m := range all {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpScript)
		assert.NotEmpty(t, m.DownScript)
	}
	assert.Equal(t, "000002_create_profiles", all[1].String())
	assert.Contains(t, all[1].UpScript, "can_provide JSONB NOT NULL DEFAULT '[]'")

	require.NotNil(t, GetMigrationByVersion(3))
	assert.Nil(t, GetMigrationByVersion(99))
}

func TestValidateAppliedVersions(t *testing.T) {
	t.Parallel()

	registered := []Migration{{Version: 1}, {Version: 2}}
	assert.NoError(t, validateAppliedVersions(nil, registered))
	assert.NoError(t, validateAppliedVersions([]int{1, 2}, registered))

	err := validateAppliedVersions([]int{1, 7, 5}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000005, 000007")
}

func TestRunMigrations_AppliesOnlyPending(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := Open(postgres.New(postgres.Config{Conn: sqlDB}))
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS migration_logs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := &fakeMigrationStore{applied: []int{1}}
	registered := []Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}

	require.NoError(t, runMigrations(context.Background(), db, store, registered))
	assert.Equal(t, []int{2, 3}, store.ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_StopsOnFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := Open(postgres.New(postgres.Config{Conn: sqlDB}))
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS migration_logs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := &fakeMigrationStore{failOn: 2}
	registered := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}

	err = runMigrations(context.Background(), db, store, registered)
	assert.Error(t, err)
	assert.Equal(t, []int{1}, store.ran)
}

func TestAutoMigrate_SQLiteRoundTrip(t *testing.T) {
	db, err := Open(sqlite.Open("file::memory:"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, AutoMigrate(db))

	ctx := context.Background()
	identity := models.Identity{Email: "ada@example.com"}
	require.NoError(t, db.WithContext(ctx).Create(&identity).Error)

	p := models.Profile{
		UserID:        identity.ID,
		DisplayName:   "Ada",
		Skills:        []string{"Go", "SQL"},
		ContactMethod: models.ContactEmail,
		IsVisible:     true,
	}
	require.NoError(t, db.WithContext(ctx).Create(&p).Error)
	assert.NotEqual(t, uuid.Nil, p.ID)

	var got models.Profile
	require.NoError(t, db.WithContext(ctx).First(&got, "user_id = ?", identity.ID).Error)
	assert.Equal(t, []string{"Go", "SQL"}, got.Skills)
	assert.Equal(t, []string{}, got.OpenTo)
	assert.Equal(t, []string{}, got.CanProvide)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestDSN(t *testing.T) {
	t.Parallel()

	dsn := DSN(&config.Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "n"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", dsn)
}

func TestCustomGormLogger_Trace(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	l := NewGormLogger(slog.New(slog.NewJSONHandler(buf, nil)))
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), sql, nil)
	assert.Empty(t, buf.String(), "fast successful queries are below warn level")

	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	assert.Contains(t, buf.String(), "GORM slow query")

	buf.Reset()
	l.Trace(ctx, time.Now(), sql, errors.New("boom"))
	assert.Contains(t, buf.String(), "GORM query error")

	buf.Reset()
	l.LogMode(logger.Silent).Trace(ctx, time.Now(), sql, errors.New("boom"))
	assert.Empty(t, buf.String())
}
