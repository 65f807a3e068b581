package repository

import (
	"context"
	"log/slog"
	"strings"

	"memberdir/internal/cache"
	"memberdir/internal/models"
	"memberdir/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SkillRepository reads the shared skills taxonomy.
type SkillRepository interface {
	List(ctx context.Context) ([]models.Skill, error)
	Suggest(ctx context.Context, q string, limit int) ([]models.Skill, error)
	Upsert(ctx context.Context, skills []models.Skill) error
}

type skillRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewSkillRepository returns a new SkillRepository implementation.
func NewSkillRepository(db *gorm.DB) SkillRepository {
	return &skillRepository{db: db, log: observability.NewRepoLogger("skills")}
}

// List returns the taxonomy ordered by category, served from Redis when cached.
func (r *skillRepository) List(ctx context.Context) ([]models.Skill, error) {
	ctx, span := observability.TraceRepositoryMethod(ctx, "List", "skills")
	defer span.End()

	var skills []models.Skill
	err := cache.Aside(ctx, cache.SkillsTaxonomyKey, &skills, cache.SkillsTTL, func() error {
		defer observability.TrackQuery("list", "skills")()
		return r.db.WithContext(ctx).Order("category ASC").Order("name ASC").Find(&skills).Error
	})
	if err != nil {
		r.log.LogError(ctx, err, "list")
		return nil, err
	}
	if skills == nil {
		skills = []models.Skill{}
	}
	r.log.LogRead(ctx, slog.Int("count", len(skills)))
	return skills, nil
}

// Suggest returns up to limit taxonomy entries whose name contains q,
// ignoring case. Names that start with q come first.
func (r *skillRepository) Suggest(ctx context.Context, q string, limit int) ([]models.Skill, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	q = strings.ToLower(strings.TrimSpace(q))
	var prefix, contains []models.Skill
	for _, s := range all {
		name := strings.ToLower(s.Name)
		switch {
		case q == "" || strings.HasPrefix(name, q):
			prefix = append(prefix, s)
		case strings.Contains(name, q):
			contains = append(contains, s)
		}
	}

	out := append(prefix, contains...)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []models.Skill{}
	}
	return out, nil
}

// Upsert inserts taxonomy entries, updating the category of existing names,
// and drops the cached taxonomy.
func (r *skillRepository) Upsert(ctx context.Context, skills []models.Skill) error {
	if len(skills) == 0 {
		return nil
	}
	ctx, span := observability.TraceRepositoryMethod(ctx, "Upsert", "skills")
	defer span.End()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"category"}),
	}).Create(&skills).Error
	if err != nil {
		r.log.LogError(ctx, err, "upsert")
		return writeError("upsert skills", err)
	}
	cache.Invalidate(ctx, cache.SkillsTaxonomyKey)
	r.log.LogCreate(ctx, slog.Int("count", len(skills)))
	return nil
}
