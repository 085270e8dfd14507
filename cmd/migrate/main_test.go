package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/auth-api/pkg/database"
)

type fakeMigrator struct {
	applied    []string
	migrateErr error
	states     []database.MigrationState
	rolledBack string
}

func (f *fakeMigrator) Migrate(context.Context) ([]string, error) { return f.applied, f.migrateErr }

func (f *fakeMigrator) Status(context.Context) ([]database.MigrationState, error) {
	return f.states, nil
}

func (f *fakeMigrator) Rollback(context.Context) (string, error) { return f.rolledBack, nil }

func TestRunMigrate(t *testing.T) {
	var out bytes.Buffer
	m := &fakeMigrator{applied: []string{"00001_create_users.sql"}}
	require.NoError(t, run(context.Background(), "migrate", m, &out))
	assert.Contains(t, out.String(), "applied 00001_create_users.sql")

	out.Reset()
	require.NoError(t, run(context.Background(), "migrate", &fakeMigrator{}, &out))
	assert.Contains(t, out.String(), "up to date")

	failing := &fakeMigrator{migrateErr: errors.New("syntax error")}
	assert.Error(t, run(context.Background(), "migrate", failing, &out))
}

func TestRunStatus(t *testing.T) {
	var out bytes.Buffer
	m := &fakeMigrator{states: []database.MigrationState{
		{Version: 1, File: "00001_create_users.sql", Applied: true, AppliedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{Version: 2, File: "00002_create_refresh_tokens.sql"},
	}}
	require.NoError(t, run(context.Background(), "status", m, &out))
	assert.Contains(t, out.String(), "2024-01-02 03:04:05")
	assert.Contains(t, out.String(), "pending")
	assert.Contains(t, out.String(), "1 of 2 applied")
}

func TestRunRollback(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "rollback", &fakeMigrator{rolledBack: "00003_create_audit_logs.sql"}, &out))
	assert.Contains(t, out.String(), "rolled back 00003_create_audit_logs.sql")

	out.Reset()
	require.NoError(t, run(context.Background(), "rollback", &fakeMigrator{}, &out))
	assert.Contains(t, out.String(), "nothing to roll back")
}

func TestRunUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(context.Background(), "drop", &fakeMigrator{}, &out))
}

func TestExecuteRejectsWrongArgCount(t *testing.T) {
	assert.Equal(t, 1, execute(nil))
	assert.Equal(t, 1, execute([]string{"migrate", "extra"}))
}
