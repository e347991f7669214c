package dumper

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockExecutor struct {
	executeFunc func(ctx context.Context, env []string, outputPath string, name string, args ...string) error
}

func (m *mockExecutor) ExecuteToFile(ctx context.Context, env []string, outputPath string, name string, args ...string) error {
	if m.executeFunc != nil {
		return m.executeFunc(ctx, env, outputPath, name, args...)
	}
	return os.WriteFile(outputPath, []byte("dump"), 0o600)
}

type stubDumper struct {
	engine models.Engine
}

func (s *stubDumper) Engine() models.Engine { return s.engine }

func (s *stubDumper) Dump(_ context.Context, src models.DatabaseSource, outFile string) (*models.DumpResult, error) {
	return &models.DumpResult{Engine: s.engine, Database: src.Name, OutFile: outFile}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestRegistry_Get(t *testing.T) {
	r := DefaultRegistry(testLogger())

	pg, err := r.Get(models.EnginePostgres)
	require.NoError(t, err)
	assert.Equal(t, models.EnginePostgres, pg.Engine())

	my, err := r.Get(models.EngineMySQL)
	require.NoError(t, err)
	assert.Equal(t, models.EngineMySQL, my.Engine())

	assert.Equal(t, []models.Engine{models.EngineMySQL, models.EnginePostgres}, r.Engines())
}

func TestRegistry_UnsupportedEngine(t *testing.T) {
	r := DefaultRegistry(testLogger())

	_, err := r.Get("mongodb")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedEngine))
	assert.Contains(t, err.Error(), "mongodb")
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry(NewPostgres(testLogger()))
	stub := &stubDumper{engine: models.EnginePostgres}
	r.Register(stub)

	d, err := r.Get(models.EnginePostgres)
	require.NoError(t, err)
	assert.Same(t, stub, d)
	assert.Len(t, r.Engines(), 1)
}

func TestCheckPreconditions(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("fresh path", func(t *testing.T) {
		assert.NoError(t, CheckPreconditions(filepath.Join(tmpDir, "new.db")))
	})

	t.Run("existing file", func(t *testing.T) {
		existing := filepath.Join(tmpDir, "existing.db")
		require.NoError(t, os.WriteFile(existing, []byte("old"), 0o600))

		err := CheckPreconditions(existing)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrOutputExists))
	})

	t.Run("missing directory", func(t *testing.T) {
		err := CheckPreconditions(filepath.Join(tmpDir, "missing", "x.db"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output directory")
	})

	t.Run("directory is a file", func(t *testing.T) {
		file := filepath.Join(tmpDir, "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

		err := CheckPreconditions(filepath.Join(file, "x.db"))
		require.Error(t, err)
	})
}

func TestCheckOutput(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := CheckOutput(filepath.Join(tmpDir, "missing.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not created")

	empty := filepath.Join(tmpDir, "empty.db")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = CheckOutput(empty)
	assert.True(t, errors.Is(err, ErrEmptyOutput))

	full := filepath.Join(tmpDir, "full.db")
	require.NoError(t, os.WriteFile(full, []byte("12345"), 0o600))
	size, err := CheckOutput(full)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func TestCommandWrap_Container(t *testing.T) {
	cmd := command{
		tool: "pg_dump",
		args: []string{"-d", "app"},
		env:  []string{"PGPASSWORD=secret"},
	}

	name, args, env := cmd.wrap("")
	assert.Equal(t, "pg_dump", name)
	assert.Equal(t, []string{"-d", "app"}, args)
	assert.Equal(t, []string{"PGPASSWORD=secret"}, env)

	name, args, env = cmd.wrap("db")
	assert.Equal(t, "docker", name)
	assert.Equal(t, []string{"exec", "-i", "-e", "PGPASSWORD", "db", "pg_dump", "-d", "app"}, args)
	assert.Equal(t, []string{"PGPASSWORD=secret"}, env)
	for _, a := range args {
		assert.NotContains(t, a, "secret")
	}
}
