package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"memberdir/internal/database"
	"memberdir/internal/models"

	"gorm.io/gorm"
)

// statusReport is what `migrate status` prints: every registered migration
// with its state, then the size of the directory tables.
type statusReport struct {
	migrations []migrationState
	tables     []tableCount
}

type migrationState struct {
	name    string
	applied bool
}

type tableCount struct {
	name  string
	count int64
	err   error
}

func collectStatus(ctx context.Context, db *gorm.DB) (*statusReport, error) {
	status, err := database.GetSchemaStatus(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("schema status: %w", err)
	}

	report := &statusReport{}
	for _, m := range database.GetMigrations() {
		report.migrations = append(report.migrations, migrationState{
			name:    m.String(),
			applied: slices.Contains(status.AppliedVersions, m.Version),
		})
	}

	count := func(name string, model any, where ...any) {
		tc := tableCount{name: name}
		q := db.WithContext(ctx).Model(model)
		if len(where) > 0 {
			q = q.Where(where[0], where[1:]...)
		}
		tc.err = q.Count(&tc.count).Error
		report.tables = append(report.tables, tc)
	}
	count("identities", &models.Identity{})
	count("profiles (visible)", &models.Profile{}, "is_visible = ?", true)
	count("profiles (hidden)", &models.Profile{}, "is_visible = ?", false)
	count("skills", &models.Skill{})
	return report, nil
}

func (r *statusReport) pending() int {
	n := 0
	for _, m := range r.migrations {
		if !m.applied {
			n++
		}
	}
	return n
}

func (r *statusReport) write(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tSTATE")
	for _, m := range r.migrations {
		state := "pending"
		if m.applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%s\t%s\n", m.name, state)
	}
	fmt.Fprintln(w, "\t")
	fmt.Fprintln(w, "TABLE\tROWS")
	for _, t := range r.tables {
		rows := fmt.Sprint(t.count)
		if t.err != nil {
			rows = "unavailable"
		}
		fmt.Fprintf(w, "%s\t%s\n", t.name, rows)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d of %d migrations pending\n", r.pending(), len(r.migrations))
	return err
}
