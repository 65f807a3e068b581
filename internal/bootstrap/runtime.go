// Package bootstrap wires the runtime dependencies shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"memberdir/internal/cache"
	"memberdir/internal/config"
	"memberdir/internal/database"
	"memberdir/internal/middleware"
	"memberdir/internal/models"
	"memberdir/internal/repository"
	"memberdir/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// Migrate applies pending SQL migrations before anything else.
	Migrate bool
	// SeedTaxonomy upserts the built-in skills.
	SeedTaxonomy bool
	// DemoMembers generates that many demo profiles into an empty
	// development database.
	DemoMembers int
}

// InitRuntime connects to DB and Redis and optionally migrates and seeds.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	// Connect DB
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: opts.Migrate})
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := Prepare(ctx, cfg, db, opts); err != nil {
		return nil, nil, err
	}
	return db, r, nil
}

// Prepare runs the seeding steps selected by opts against db.
func Prepare(ctx context.Context, cfg *config.Config, db *gorm.DB, opts Options) error {
	if opts.SeedTaxonomy {
		n, err := seed.Skills(ctx, repository.NewSkillRepository(db))
		if err != nil {
			return fmt.Errorf("failed to seed skills taxonomy: %w", err)
		}
		middleware.Logger.Info("skills taxonomy ensured", slog.Int("skills", n))
	}

	if err := ensureDevDemo(ctx, cfg, db, opts.DemoMembers); err != nil {
		return fmt.Errorf("failed to seed development members: %w", err)
	}
	return nil
}

func ensureDevDemo(ctx context.Context, cfg *config.Config, db *gorm.DB, members int) error {
	if cfg == nil || db == nil || members <= 0 {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") {
		return nil
	}

	var existing int64
	if err := db.WithContext(ctx).Model(&models.Profile{}).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	n, err := seed.NewFactory(db, seed.Options{HiddenEvery: 10}).Members(ctx, members)
	if err != nil {
		return err
	}
	middleware.Logger.Info("development demo members created", slog.Int("members", n))
	return nil
}
