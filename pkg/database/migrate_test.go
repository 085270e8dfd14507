package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	statuses []*goose.MigrationStatus
	upErr    error
	downErr  error
	ups      int
	downs    int
}

func (f *fakeProvider) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	f.ups++
	var results []*goose.MigrationResult
	for _, st := range f.statuses {
		if st.State == goose.StatePending {
			st.State = goose.StateApplied
			results = append(results, &goose.MigrationResult{Source: st.Source})
		}
	}
	return results, f.upErr
}

func (f *fakeProvider) Down(ctx context.Context) (*goose.MigrationResult, error) {
	f.downs++
	if f.downErr != nil {
		return nil, f.downErr
	}
	for i := len(f.statuses) - 1; i >= 0; i-- {
		if f.statuses[i].State == goose.StateApplied {
			f.statuses[i].State = goose.StatePending
			return &goose.MigrationResult{Source: f.statuses[i].Source}, nil
		}
	}
	return nil, errors.New("no migrations to roll back")
}

func (f *fakeProvider) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return f.statuses, nil
}

func newFakeProvider(applied int, files ...string) *fakeProvider {
	f := &fakeProvider{}
	for i, file := range files {
		st := &goose.MigrationStatus{
			Source: &goose.Source{Path: file, Version: int64(i + 1)},
			State:  goose.StatePending,
		}
		if i < applied {
			st.State = goose.StateApplied
			st.AppliedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		f.statuses = append(f.statuses, st)
	}
	return f
}

func TestMigratorMigrateAppliesPendingOnly(t *testing.T) {
	provider := newFakeProvider(1, "00001_create_users.sql", "00002_create_refresh_tokens.sql")
	m := &Migrator{provider: provider}

	applied, err := m.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"00002_create_refresh_tokens.sql"}, applied)

	applied, err = m.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestMigratorStatus(t *testing.T) {
	m := &Migrator{provider: newFakeProvider(1, "00001_create_users.sql", "00002_create_refresh_tokens.sql")}

	states, err := m.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.True(t, states[0].Applied)
	assert.False(t, states[1].Applied)
	assert.Equal(t, 1, Applied(states))
}

func TestMigratorRollbackMostRecent(t *testing.T) {
	provider := newFakeProvider(2, "00001_create_users.sql", "00002_create_refresh_tokens.sql")
	m := &Migrator{provider: provider}

	file, err := m.Rollback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "00002_create_refresh_tokens.sql", file)
	assert.Equal(t, goose.StateApplied, provider.statuses[0].State)
}

func TestMigratorRollbackNothingApplied(t *testing.T) {
	provider := newFakeProvider(0, "00001_create_users.sql")
	m := &Migrator{provider: provider}

	file, err := m.Rollback(context.Background())
	require.NoError(t, err)
	assert.Empty(t, file)
	assert.Zero(t, provider.downs)
}

func TestMigratorRollbackError(t *testing.T) {
	provider := newFakeProvider(1, "00001_create_users.sql")
	provider.downErr = errors.New("boom")
	m := &Migrator{provider: provider}

	_, err := m.Rollback(context.Background())
	require.Error(t, err)
}
