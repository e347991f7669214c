//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/fgeck/appbackup/internal/services/backup"
	"github.com/juju/clock/testclock"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupJob_PostgresAndFiles_Integration(t *testing.T) {
	src := getPostgresSource(t)

	appDir := filepath.Join(t.TempDir(), "wiki")
	require.NoError(t, os.MkdirAll(appDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "settings.ini"), []byte("debug=false\n"), 0o600))

	clk := testclock.NewClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))

	job, err := backup.New(testLogger(), models.JobConfig{
		SourcePath: appDir,
		Databases:  []models.DatabaseSource{src},
		Files:      []string{"settings.ini"},
	}, backup.WithClock(clk))
	require.NoError(t, err)

	result, err := job.Make(context.Background())

	require.NoError(t, err)
	assert.Equal(t, backup.Succeeded, job.State())
	require.NotNil(t, result.Archive)
	assert.Equal(t, filepath.Join(filepath.Dir(appDir), "wiki-20240115-103000.zip"), result.Archive.Path)

	r, err := zip.OpenReader(result.Archive.Path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "dbs/"+src.Name+"-20240115-103000.db")
	assert.Contains(t, names, "files/settings.ini")

	_, err = os.Stat(filepath.Join(appDir, "tmp"))
	assert.True(t, os.IsNotExist(err))
}
