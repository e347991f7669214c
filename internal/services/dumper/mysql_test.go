package dumper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMySQLSource() models.DatabaseSource {
	return models.DatabaseSource{
		Engine:   models.EngineMySQL,
		Host:     "db.local",
		Port:     3306,
		Name:     "shop",
		Username: "root",
		Password: "hunter2",
	}
}

func TestMySQLDump_Success(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "shop.db")

	var capturedName string
	var capturedArgs []string
	var capturedEnv []string

	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, env []string, op string, name string, args ...string) error {
			capturedName = name
			capturedArgs = args
			capturedEnv = env
			return os.WriteFile(op, []byte("-- MySQL dump"), 0o600)
		},
	}

	d := NewMySQLWithExecutor(testLogger(), executor)
	assert.Equal(t, models.EngineMySQL, d.Engine())

	result, err := d.Dump(context.Background(), testMySQLSource(), outputPath)

	require.NoError(t, err)
	assert.Nil(t, result.Error)
	assert.Equal(t, models.EngineMySQL, result.Engine)
	assert.Equal(t, "shop", result.Database)
	assert.Greater(t, result.SizeBytes, int64(0))

	assert.Equal(t, "mysqldump", capturedName)
	assert.Contains(t, capturedArgs, "--host=db.local")
	assert.Contains(t, capturedArgs, "--port=3306")
	assert.Contains(t, capturedArgs, "--user=root")
	assert.Contains(t, capturedArgs, "--single-transaction")
	assert.Equal(t, "shop", capturedArgs[len(capturedArgs)-1])
	assert.Equal(t, []string{"MYSQL_PWD=hunter2"}, capturedEnv)
	for _, a := range capturedArgs {
		assert.NotContains(t, a, "hunter2")
	}
}

func TestMySQLDump_DefaultPortOmitted(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "shop.db")
	var capturedArgs []string

	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, env []string, op string, name string, args ...string) error {
			capturedArgs = args
			return os.WriteFile(op, []byte("x"), 0o600)
		},
	}

	src := testMySQLSource()
	src.Port = 0

	_, err := NewMySQLWithExecutor(testLogger(), executor).Dump(context.Background(), src, outputPath)
	require.NoError(t, err)
	for _, a := range capturedArgs {
		assert.NotContains(t, a, "--port")
	}
}

func TestMySQLDump_EmptyOutput(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "shop.db")

	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, env []string, op string, name string, args ...string) error {
			return os.WriteFile(op, nil, 0o600)
		},
	}

	result, err := NewMySQLWithExecutor(testLogger(), executor).Dump(context.Background(), testMySQLSource(), outputPath)

	require.NoError(t, err)
	assert.True(t, errors.Is(result.Error, ErrEmptyOutput))

	_, statErr := os.Stat(outputPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMySQLDump_ExecutorError(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "shop.db")

	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, env []string, op string, name string, args ...string) error {
			return errors.New("access denied")
		},
	}

	result, err := NewMySQLWithExecutor(testLogger(), executor).Dump(context.Background(), testMySQLSource(), outputPath)

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "access denied")
}
