package compose

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
	dir  string
	env  []string
	name string
	args []string
	out  []byte
	err  error
}

func (m *mockExecutor) ExecuteWithEnv(_ context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	m.dir = dir
	m.env = env
	m.name = name
	m.args = args
	return m.out, m.err
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLocate_Default(t *testing.T) {
	app := t.TempDir()
	file := writeFile(t, app, DefaultFile, "services: {}")

	project, err := Locate(app, models.ComposeConfig{})
	require.NoError(t, err)
	require.NotNil(t, project)
	assert.Equal(t, file, project.File)
	assert.Empty(t, project.Env)
}

func TestLocate_NoComposeFile(t *testing.T) {
	project, err := Locate(t.TempDir(), models.ComposeConfig{})
	require.NoError(t, err)
	assert.Nil(t, project)
}

func TestLocate_FileFromEnv(t *testing.T) {
	app := t.TempDir()
	writeFile(t, app, ".env", "YAML=compose.prod.yml\nDB_PASSWORD=secret\n")
	file := writeFile(t, app, "compose.prod.yml", "services: {}")

	project, err := Locate(app, models.ComposeConfig{})
	require.NoError(t, err)
	require.NotNil(t, project)
	assert.Equal(t, file, project.File)
	assert.Equal(t, []string{"DB_PASSWORD=secret", "YAML=compose.prod.yml"}, project.Env)

	// Reading the env file never touches the process environment.
	_, set := os.LookupEnv("DB_PASSWORD")
	assert.False(t, set)
}

func TestLocate_ConfiguredFileWins(t *testing.T) {
	app := t.TempDir()
	writeFile(t, app, "app.env", "YAML=ignored.yml\n")
	file := writeFile(t, app, "stack.yml", "services: {}")

	project, err := Locate(app, models.ComposeConfig{File: "stack.yml", EnvFile: "app.env"})
	require.NoError(t, err)
	require.NotNil(t, project)
	assert.Equal(t, file, project.File)
}

func TestLocate_InvalidEnvFile(t *testing.T) {
	app := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(app, ".env"), 0o750))

	_, err := Locate(app, models.ComposeConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read env file")
}

func TestStop(t *testing.T) {
	app := t.TempDir()
	file := writeFile(t, app, DefaultFile, "services: {}")
	writeFile(t, app, ".env", "TAG=1.2\n")

	executor := &mockExecutor{}
	svc := NewWithExecutor(testLogger(), executor)

	require.NoError(t, svc.Stop(context.Background(), app, models.ComposeConfig{}))
	assert.Equal(t, "docker", executor.name)
	assert.Equal(t, []string{"compose", "-f", file, "stop"}, executor.args)
	assert.Equal(t, app, executor.dir)
	assert.Equal(t, []string{"TAG=1.2"}, executor.env)
}

func TestStart(t *testing.T) {
	app := t.TempDir()
	file := writeFile(t, app, DefaultFile, "services: {}")

	executor := &mockExecutor{}
	svc := NewWithExecutor(testLogger(), executor)

	require.NoError(t, svc.Start(context.Background(), app, models.ComposeConfig{}))
	assert.Equal(t, []string{"compose", "-f", file, "up", "-d"}, executor.args)
}

func TestStop_NoComposeFileIsNoop(t *testing.T) {
	executor := &mockExecutor{}
	svc := NewWithExecutor(testLogger(), executor)

	require.NoError(t, svc.Stop(context.Background(), t.TempDir(), models.ComposeConfig{}))
	assert.Empty(t, executor.name)
}

func TestStop_CommandFails(t *testing.T) {
	app := t.TempDir()
	writeFile(t, app, DefaultFile, "services: {}")

	executor := &mockExecutor{out: []byte("no such service\n"), err: errors.New("exit status 1")}
	svc := NewWithExecutor(testLogger(), executor)

	err := svc.Stop(context.Background(), app, models.ComposeConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker compose stop failed")
	assert.Contains(t, err.Error(), "no such service")
}
