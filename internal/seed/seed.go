// Package seed loads the skills taxonomy and generates demo members for
// development databases.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"memberdir/internal/models"
	"memberdir/internal/repository"

	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var taxonomyYAML []byte

type taxonomyGroup struct {
	Category string   `yaml:"category"`
	Skills   []string `yaml:"skills"`
}

// Taxonomy returns the built-in skills, grouped by category in file order.
func Taxonomy() ([]models.Skill, error) {
	return parseTaxonomy(taxonomyYAML)
}

func parseTaxonomy(raw []byte) ([]models.Skill, error) {
	var groups []taxonomyGroup
	if err := yaml.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}

	seen := make(map[string]string)
	var skills []models.Skill
	for _, g := range groups {
		category := strings.TrimSpace(g.Category)
		if category == "" {
			return nil, fmt.Errorf("taxonomy group without a category")
		}
		for _, name := range g.Skills {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if prev, dup := seen[key]; dup {
				return nil, fmt.Errorf("skill %q listed under both %s and %s", name, prev, category)
			}
			seen[key] = category
			skills = append(skills, models.Skill{Name: name, Category: category})
		}
	}
	return skills, nil
}

// Skills upserts the taxonomy and returns how many entries it holds.
// Running it again only refreshes categories.
func Skills(ctx context.Context, repo repository.SkillRepository) (int, error) {
	skills, err := Taxonomy()
	if err != nil {
		return 0, err
	}
	if err := repo.Upsert(ctx, skills); err != nil {
		return 0, fmt.Errorf("seed skills: %w", err)
	}
	return len(skills), nil
}
