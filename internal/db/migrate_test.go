package db

import (
	"bytes"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestEmbeddedMigrations(t *testing.T) {
	latest, err := LatestMigrationVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)

	db := newTestDB(t)
	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	for _, table := range []string{"projects", "tracks", "track_sources"} {
		assert.True(t, tableExists(t, db, table), table)
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MigrateUp(MigrationsFS()))
}

func TestMigrateDownAndTo(t *testing.T) {
	db := openRawTestDB(t)
	fsys := MigrationsFS()

	version, _, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version, "fresh database has no version")

	require.NoError(t, db.MigrateTo(fsys, 1))
	assert.True(t, tableExists(t, db, "tracks"))
	assert.False(t, tableExists(t, db, "track_sources"))

	require.NoError(t, db.MigrateUp(fsys))
	assert.True(t, tableExists(t, db, "track_sources"))

	require.NoError(t, db.MigrateDown(fsys))
	version, _, err = db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, tableExists(t, db, "track_sources"))
}

func TestLatestMigrationVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"000001_a.up.sql":   {Data: []byte("SELECT 1;")},
		"000001_a.down.sql": {Data: []byte("SELECT 1;")},
		"000010_b.up.sql":   {Data: []byte("SELECT 1;")},
		"notes.txt":         {Data: []byte("ignored")},
	}
	v, err := LatestMigrationVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(10), v)

	_, err = LatestMigrationVersion(fstest.MapFS{})
	assert.Error(t, err)
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "Current version: 0")
	assert.Contains(t, out.String(), "Outstanding migrations: 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"version", "1"}, path))
	assert.Contains(t, out.String(), "Current version: 1 (dirty: false)")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, path))
	assert.Contains(t, out.String(), "Current version: 2 (dirty: false)")

	tests := []struct {
		name string
		args []string
		path string
	}{
		{"no action", nil, path},
		{"unknown action", []string{"sideways"}, path},
		{"missing version", []string{"version"}, path},
		{"bad version", []string{"force", "x"}, path},
		{"missing db", []string{"up"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := RunMigrateCommand(&out, tt.args, tt.path)
			assert.ErrorIs(t, err, ErrMigrateUsage)
		})
	}

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"help"}, ""))
	assert.Contains(t, out.String(), "Usage: sidescan migrate")
}
