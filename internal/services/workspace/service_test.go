package workspace

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestForSource_Paths(t *testing.T) {
	m := ForSource(testLogger(), "/srv/app")

	assert.Equal(t, "/srv/app/tmp", m.Root())
	assert.Equal(t, "/srv/app/tmp/dbs", m.DBsDir())
	assert.Equal(t, "/srv/app/tmp/files", m.FilesDir())
}

func TestPrepare_CreatesOnlyRequestedDirs(t *testing.T) {
	tests := []struct {
		name      string
		withDBs   bool
		withFiles bool
	}{
		{name: "none"},
		{name: "dbs only", withDBs: true},
		{name: "files only", withFiles: true},
		{name: "both", withDBs: true, withFiles: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ForSource(testLogger(), t.TempDir())

			require.NoError(t, m.Prepare(tt.withDBs, tt.withFiles))

			assert.DirExists(t, m.Root())
			if tt.withDBs {
				assert.DirExists(t, m.DBsDir())
			} else {
				assert.NoDirExists(t, m.DBsDir())
			}
			if tt.withFiles {
				assert.DirExists(t, m.FilesDir())
			} else {
				assert.NoDirExists(t, m.FilesDir())
			}
		})
	}
}

func TestPrepare_RemovesLeftovers(t *testing.T) {
	m := ForSource(testLogger(), t.TempDir())

	require.NoError(t, m.Prepare(true, false))
	stale := filepath.Join(m.DBsDir(), "old-20200101-000000.db")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o600))

	require.NoError(t, m.Prepare(true, false))

	assert.NoFileExists(t, stale)
	assert.DirExists(t, m.DBsDir())
}

func TestPrepare_FailsWhenParentMissing(t *testing.T) {
	m := New(testLogger(), filepath.Join(t.TempDir(), "missing", "tmp"))

	err := m.Prepare(false, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create")
}

func TestTeardown_Idempotent(t *testing.T) {
	m := ForSource(testLogger(), t.TempDir())

	require.NoError(t, m.Teardown())

	require.NoError(t, m.Prepare(true, true))
	require.NoError(t, os.WriteFile(filepath.Join(m.FilesDir(), "a.txt"), []byte("a"), 0o600))
	assert.True(t, m.Exists())

	require.NoError(t, m.Teardown())
	assert.False(t, m.Exists())
	require.NoError(t, m.Teardown())
}
