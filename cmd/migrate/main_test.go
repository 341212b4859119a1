package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, 1, "init_schema_migrations"},
		{"0012_create_rules.sql", true, 12, "create_rules"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func writeMigration(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0002_rules.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.rules` (id STRING);")
	writeMigration(t, dir, "0001_tx.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.transactions` (id STRING);")
	writeMigration(t, dir, "README.md", "notes")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "old"), 0o755))

	migrations, skipped, err := readMigrations(dir, "proj", "finance")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, []string{"README.md"}, skipped)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "tx", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE `proj.finance.transactions` (id STRING);", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
}

func TestReadMigrations_ChecksumIgnoresPlaceholders(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_tx.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` (id STRING);")

	a, _, err := readMigrations(dir, "proj-a", "ds")
	require.NoError(t, err)
	b, _, err := readMigrations(dir, "proj-b", "ds")
	require.NoError(t, err)

	assert.NotEqual(t, a[0].SQL, b[0].SQL)
	assert.Equal(t, a[0].Checksum, b[0].Checksum)
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_a.sql", "SELECT 1;")
	writeMigration(t, dir, "0001_b.sql", "SELECT 2;")

	_, _, err := readMigrations(dir, "p", "d")
	assert.ErrorContains(t, err, "version 0001")
}

func TestRepositoryMigrationsParse(t *testing.T) {
	dir, err := resolveMigrationsDir("migrations/bigquery")
	require.NoError(t, err)

	migrations, skipped, err := readMigrations(dir, "proj", "finance")
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "versions are contiguous")
		assert.NotContains(t, m.SQL, "{{")
	}
}

func TestPlanMigrations(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "a", Checksum: "c1"},
		{Version: 2, Name: "b", Checksum: "c2"},
		{Version: 3, Name: "c", Checksum: "c3"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "c1"},
		{Version: 2, Checksum: "stale"},
	}

	pending, changed := planMigrations(all, applied)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Version)
	assert.Equal(t, []int{2}, changed)

	pending, changed = planMigrations(all, nil)
	assert.Len(t, pending, 3)
	assert.Empty(t, changed)
}
