//go:build e2e

package e2e

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/fgeck/appbackup/internal/services/wol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestWOL_WithHTTPTarget_E2E(t *testing.T) {
	// Create a test HTTP server to act as the "target"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Mock WOL client that doesn't actually send packets
	mockWOLClient := &mockWOLClient{}
	mockHTTPClient := server.Client()

	svc := wol.NewWithClients(testLogger(), mockWOLClient, mockHTTPClient)

	cfg := models.WOLConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "255.255.255.255",
		PollURL:       server.URL,
		Timeout:       5 * time.Second,
		PollInterval:  100 * time.Millisecond,
		StabilizeWait: 100 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.Greater(t, result.WaitDuration, 100*time.Millisecond)
}

func TestWOL_DelayedPath_E2E(t *testing.T) {
	// The destination mount appears a little after the packet is sent
	mount := filepath.Join(t.TempDir(), "nas")
	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = os.Mkdir(mount, 0o750)
	}()

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, http.DefaultClient)

	cfg := models.WOLConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "255.255.255.255",
		PollPath:      mount,
		Timeout:       5 * time.Second,
		PollInterval:  50 * time.Millisecond,
		StabilizeWait: 50 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.GreaterOrEqual(t, result.WaitDuration, 150*time.Millisecond)
}

func TestWOL_TargetNeverReady_E2E(t *testing.T) {
	// Nothing listens on the URL once the server is closed
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, &http.Client{Timeout: 100 * time.Millisecond})

	cfg := models.WOLConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "255.255.255.255",
		PollURL:       url,
		Timeout:       200 * time.Millisecond,
		PollInterval:  50 * time.Millisecond,
		StabilizeWait: 0,
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "timeout")
}

// Mock implementations for E2E tests
type mockWOLClient struct{}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	return nil
}

// RealWOL tests - only run if explicitly configured
func TestRealWOL_E2E(t *testing.T) {
	mac := os.Getenv("TEST_WOL_MAC")
	if mac == "" {
		t.Skip("TEST_WOL_MAC not set")
	}

	pollURL := os.Getenv("TEST_WOL_POLL_URL")
	pollPath := os.Getenv("TEST_WOL_POLL_PATH")

	svc := wol.New(testLogger())

	cfg := models.WOLConfig{
		MACAddress:    mac,
		BroadcastIP:   "255.255.255.255",
		PollURL:       pollURL,
		PollPath:      pollPath,
		Timeout:       5 * time.Minute,
		PollInterval:  10 * time.Second,
		StabilizeWait: 10 * time.Second,
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	if pollURL != "" || pollPath != "" {
		assert.True(t, result.TargetReady)
	}
}
