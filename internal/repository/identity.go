package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"memberdir/internal/models"
	"memberdir/internal/observability"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdentityRepository stores the auth provider's user records.
type IdentityRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	MarkSignedIn(ctx context.Context, id uuid.UUID, at time.Time) error
}

type identityRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewIdentityRepository returns a new IdentityRepository implementation.
func NewIdentityRepository(db *gorm.DB) IdentityRepository {
	return &identityRepository{db: db, log: observability.NewRepoLogger("identities")}
}

func (r *identityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "GetByID", "identities")
	defer span.End()

	var identity models.Identity
	if err := r.db.WithContext(ctx).First(&identity, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Identity", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &identity, nil
}

// GetByEmail returns nil, nil when no identity uses email.
func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "GetByEmail", "identities")
	defer span.End()

	var identity models.Identity
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.LogError(ctx, err, "get_by_email")
		return nil, models.NewInternalError(err)
	}
	return &identity, nil
}

func (r *identityRepository) Create(ctx context.Context, identity *models.Identity) error {
	ctx, span := observability.TraceRepositoryMethod(ctx, "Create", "identities")
	defer span.End()

	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	if err := r.db.WithContext(ctx).Create(identity).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("User already registered")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	return nil
}

// MarkSignedIn records a successful verification. confirmed_at is only set
// the first time.
func (r *identityRepository) MarkSignedIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, span := observability.TraceRepositoryMethod(ctx, "MarkSignedIn", "identities")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&models.Identity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_sign_in_at": at,
			"confirmed_at":    gorm.Expr("COALESCE(confirmed_at, ?)", at),
		}).Error
	if err != nil {
		r.log.LogError(ctx, err, "mark_signed_in")
		return models.NewInternalError(err)
	}
	return nil
}
