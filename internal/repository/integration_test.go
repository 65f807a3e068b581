package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"memberdir/internal/database"
	"memberdir/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Integration tests run the embedded SQL migrations against a real
// PostgreSQL started with testcontainers-go.
//
//	GO_TEST_INTEGRATION=1 go test ./internal/repository -run Integration -v -count=1
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "docker.io/postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "memberdir"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=user password=pass dbname=memberdir sslmode=disable", host, port.Port())
	db, err := database.Open(postgres.Open(dsn))
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(ctx, db))
	return db
}

func TestIntegration_ProfileLifecycle(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	profiles := NewProfileRepository(db)

	identity := models.Identity{Email: "ann@example.com"}
	require.NoError(t, NewIdentityRepository(db).Create(ctx, &identity))

	p := &models.Profile{
		UserID:        identity.ID,
		DisplayName:   "Ann",
		Skills:        []string{"Go"},
		ContactMethod: models.ContactEmail,
		IsVisible:     true,
	}
	require.NoError(t, profiles.Create(ctx, p))

	err := profiles.Create(ctx, &models.Profile{UserID: identity.ID, DisplayName: "Ann", ContactMethod: models.ContactEmail})
	var writeErr *models.RemoteWriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "23505", writeErr.Code)
	assert.Contains(t, writeErr.Details, identity.ID.String())

	err = profiles.Create(ctx, &models.Profile{UserID: uuid.New(), DisplayName: "Ghost", ContactMethod: models.ContactEmail})
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "23503", writeErr.Code)

	stamp := time.Now().Add(time.Minute).UTC().Truncate(time.Microsecond)
	updated, err := profiles.UpdateColumns(ctx, identity.ID,
		[]string{"display_name", "can_provide", "updated_at"},
		&models.Profile{DisplayName: "Ann Lee", CanProvide: []string{}, UpdatedAt: stamp})
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", updated.DisplayName)
	assert.Equal(t, []string{}, updated.CanProvide)
	assert.True(t, updated.UpdatedAt.Equal(stamp))

	visible, err := profiles.ListVisible(ctx)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	require.NoError(t, profiles.Delete(ctx, identity.ID))
	visible, err = profiles.ListVisible(ctx)
	require.NoError(t, err)
	assert.Empty(t, visible)

	status, err := database.GetSchemaStatus(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, status.PendingMigrations)
}
