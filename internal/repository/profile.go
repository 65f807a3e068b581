package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"memberdir/internal/models"
	"memberdir/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProfileRepository defines persistence operations for directory profiles.
type ProfileRepository interface {
	ListVisible(ctx context.Context) ([]models.Profile, error)
	ListAll(ctx context.Context) ([]models.Profile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	HasProfile(ctx context.Context, userID uuid.UUID) (bool, error)
	Create(ctx context.Context, profile *models.Profile) error
	UpdateColumns(ctx context.Context, userID uuid.UUID, columns []string, values *models.Profile) (*models.Profile, error)
	SetVisibility(ctx context.Context, userID uuid.UUID, visible bool) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type profileRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewProfileRepository returns a new ProfileRepository implementation.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db, log: observability.NewRepoLogger("profiles")}
}

// ListVisible returns visible profiles, newest first.
func (r *profileRepository) ListVisible(ctx context.Context) ([]models.Profile, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "ListVisible", "profiles")
	defer span.End()
	defer observability.TrackQuery("list_visible", "profiles")()

	var profiles []models.Profile
	if err := r.db.WithContext(ctx).
		Where("is_visible = ?", true).
		Order("created_at DESC").
		Find(&profiles).Error; err != nil {
		r.log.LogError(ctx, err, "list_visible")
		return nil, err
	}
	r.log.LogRead(ctx, slog.Int("count", len(profiles)))
	return models.NormalizeProfiles(profiles), nil
}

// ListAll includes hidden profiles. Used by operator tooling only.
func (r *profileRepository) ListAll(ctx context.Context) ([]models.Profile, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "ListAll", "profiles")
	defer span.End()
	defer observability.TrackQuery("list_all", "profiles")()

	var profiles []models.Profile
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&profiles).Error; err != nil {
		r.log.LogError(ctx, err, "list_all")
		return nil, err
	}
	return models.NormalizeProfiles(profiles), nil
}

func (r *profileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "GetByUserID", "profiles")
	defer span.End()
	defer observability.TrackQuery("get_by_user", "profiles")()

	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Profile", userID)
		}
		r.log.LogError(ctx, err, "get_by_user")
		return nil, models.NewInternalError(err)
	}
	profile.Normalize()
	return &profile, nil
}

// HasProfile reports whether userID already owns a profile, visible or not.
func (r *profileRepository) HasProfile(ctx context.Context, userID uuid.UUID) (bool, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "HasProfile", "profiles")
	defer span.End()

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Profile{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		r.log.LogError(ctx, err, "has_profile")
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// Create inserts profile and fills in the generated id and timestamps.
func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	ctx, span := observability.TraceRepositoryMethod(ctx, "Create", "profiles")
	defer span.End()
	defer observability.TrackQuery("create", "profiles")()

	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return writeError("insert profile", err)
	}
	r.log.LogCreate(ctx, slog.String("user_id", profile.UserID.String()))
	return nil
}

// UpdateColumns writes exactly columns from values to the row owned by
// userID and returns the stored row. values.UpdatedAt is written as given.
func (r *profileRepository) UpdateColumns(ctx context.Context, userID uuid.UUID, columns []string, values *models.Profile) (*models.Profile, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "UpdateColumns", "profiles")
	defer span.End()
	defer observability.TrackQuery("update", "profiles")()

	stamp := values.UpdatedAt
	db := r.db.WithContext(ctx)
	if !stamp.IsZero() {
		db = db.Session(&gorm.Session{NowFunc: func() time.Time { return stamp }})
	}

	var stored models.Profile
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Profile{}).
			Where("user_id = ?", userID).
			Select(columns).
			Updates(values)
		if res.Error != nil {
			return writeError("update profile", res.Error)
		}
		if res.RowsAffected == 0 {
			return noRowsError("update profile")
		}
		if err := tx.Where("user_id = ?", userID).First(&stored).Error; err != nil {
			return writeError("update profile", err)
		}
		return nil
	})
	if err != nil {
		r.log.LogError(ctx, err, "update")
		return nil, err
	}

	r.log.LogUpdate(ctx, slog.String("user_id", userID.String()), slog.Any("columns", columns))
	stored.Normalize()
	return &stored, nil
}

// SetVisibility hides or re-shows a profile without touching other columns.
func (r *profileRepository) SetVisibility(ctx context.Context, userID uuid.UUID, visible bool) error {
	ctx, span := observability.TraceRepositoryMethod(ctx, "SetVisibility", "profiles")
	defer span.End()

	res := r.db.WithContext(ctx).Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Update("is_visible", visible)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "set_visibility")
		return writeError("update profile visibility", res.Error)
	}
	if res.RowsAffected == 0 {
		return noRowsError("update profile visibility")
	}
	r.log.LogUpdate(ctx, slog.String("user_id", userID.String()), slog.Bool("is_visible", visible))
	return nil
}

// Delete hard-deletes the profile owned by userID. Deleting a missing row is
// not an error.
func (r *profileRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	ctx, span := observability.TraceRepositoryMethod(ctx, "Delete", "profiles")
	defer span.End()
	defer observability.TrackQuery("delete", "profiles")()

	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Profile{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete")
		return writeError("delete profile", res.Error)
	}
	r.log.LogDelete(ctx, slog.String("user_id", userID.String()), slog.Int64("rows", res.RowsAffected))
	return nil
}
