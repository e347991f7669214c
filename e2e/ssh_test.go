//go:build e2e

package e2e

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/fgeck/appbackup/internal/services/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getSSHConfig(t *testing.T) models.SSHCommandConfig {
	t.Helper()

	host := os.Getenv("TEST_SSH_HOST")
	if host == "" {
		t.Skip("TEST_SSH_HOST not set")
	}

	portStr := os.Getenv("TEST_SSH_PORT")
	if portStr == "" {
		portStr = "22"
	}
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	user := os.Getenv("TEST_SSH_USER")
	if user == "" {
		user = "root"
	}

	keyPath := os.Getenv("TEST_SSH_KEY_PATH")
	if keyPath == "" {
		t.Skip("TEST_SSH_KEY_PATH not set")
	}

	return models.SSHCommandConfig{
		Host:       host,
		Port:       port,
		Username:   user,
		KeyPath:    keyPath,
		KnownHosts: os.Getenv("TEST_SSH_KNOWN_HOSTS"),
		Command:    "echo backup-done",
	}
}

func TestSSHTestConnection_E2E(t *testing.T) {
	cfg := getSSHConfig(t)

	svc := ssh.New(testLogger())

	result, err := svc.TestConnection(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "OK")
	assert.Nil(t, result.Error)
}

func TestSSHRunCommand_E2E(t *testing.T) {
	cfg := getSSHConfig(t)

	svc := ssh.New(testLogger())

	result, err := svc.Run(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "backup-done")
	assert.Nil(t, result.Error)
}

func TestSSHConnectionFailed_E2E(t *testing.T) {
	cfg := models.SSHCommandConfig{
		Host:     "192.168.255.254", // Non-routable IP
		Port:     22,
		Username: "root",
		KeyPath:  os.Getenv("TEST_SSH_KEY_PATH"),
		Command:  "true",
	}

	if cfg.KeyPath == "" {
		t.Skip("TEST_SSH_KEY_PATH not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc := ssh.New(testLogger())

	result, err := svc.TestConnection(ctx, cfg)

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.NotNil(t, result.Error)
}

func TestSSHInvalidKey_E2E(t *testing.T) {
	cfg := models.SSHCommandConfig{
		Host:       "localhost",
		Port:       22,
		Username:   "root",
		PrivateKey: []byte("invalid key"),
		Command:    "true",
	}

	svc := ssh.New(testLogger())

	result, err := svc.TestConnection(context.Background(), cfg)

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "parse private key")
}
