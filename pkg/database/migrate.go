package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
)

// MigrationState describes one migration file and whether it has run.
type MigrationState struct {
	Version   int64
	File      string
	Applied   bool
	AppliedAt time.Time
}

// migrationProvider is the subset of *goose.Provider used by Migrator.
type migrationProvider interface {
	Up(ctx context.Context) ([]*goose.MigrationResult, error)
	Down(ctx context.Context) (*goose.MigrationResult, error)
	Status(ctx context.Context) ([]*goose.MigrationStatus, error)
}

// Migrator applies, reports and rolls back ordered SQL migrations. Applied
// versions are tracked by goose in the goose_db_version table, which makes
// every operation idempotent.
type Migrator struct {
	provider migrationProvider
}

// NewMigrator builds a Migrator over the migrations found at the root of fsys.
func NewMigrator(db *sql.DB, fsys fs.FS) (*Migrator, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("init migration provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Migrate applies every pending migration and returns the files it ran.
func (m *Migrator) Migrate(ctx context.Context) ([]string, error) {
	results, err := m.provider.Up(ctx)
	applied := make([]string, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil || res.Error != nil {
			continue
		}
		applied = append(applied, res.Source.Path)
	}
	if err != nil {
		return applied, fmt.Errorf("apply migrations: %w", err)
	}
	return applied, nil
}

// Status lists every known migration in version order.
func (m *Migrator) Status(ctx context.Context) ([]MigrationState, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}

	states := make([]MigrationState, 0, len(statuses))
	for _, st := range statuses {
		if st == nil || st.Source == nil {
			continue
		}
		states = append(states, MigrationState{
			Version:   st.Source.Version,
			File:      st.Source.Path,
			Applied:   st.State == goose.StateApplied,
			AppliedAt: st.AppliedAt,
		})
	}
	return states, nil
}

// Rollback undoes the most recently applied migration. It returns the rolled
// back file, or "" when nothing has been applied.
func (m *Migrator) Rollback(ctx context.Context) (string, error) {
	states, err := m.Status(ctx)
	if err != nil {
		return "", err
	}
	if Applied(states) == 0 {
		return "", nil
	}

	res, err := m.provider.Down(ctx)
	if err != nil {
		return "", fmt.Errorf("rollback migration: %w", err)
	}
	if res == nil || res.Source == nil {
		return "", nil
	}
	return res.Source.Path, nil
}

// Applied counts the applied entries in states.
func Applied(states []MigrationState) int {
	n := 0
	for _, st := range states {
		if st.Applied {
			n++
		}
	}
	return n
}
