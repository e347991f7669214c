// Package wol wakes the host that serves the backup destination and waits
// until it can take archives.
package wol

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/juju/clock"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

const wakePort = "9"

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultClient is the default implementation using mdlayher/wol.
type DefaultClient struct{}

// Wake sends a magic packet to the specified MAC address.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(net.JoinHostPort(ip.String(), wakePort), mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}

	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient  Client
	httpClient HTTPClient
	clock      clock.Clock
	logger     zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		wolClient: &DefaultClient{},
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		clock:  clock.WallClock,
		logger: logger,
	}
}

// NewWithClients creates a new WOL service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, wolClient Client, httpClient HTTPClient) *Impl {
	return &Impl{
		wolClient:  wolClient,
		httpClient: httpClient,
		clock:      clock.WallClock,
		logger:     logger,
	}
}

// Wake sends a WOL packet and, when a poll URL or path is configured, waits
// for the destination host to come up.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := s.clock.Now()

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
		return result, nil
	}

	s.logger.Info().
		Str("mac", cfg.MACAddress).
		Str("broadcast", cfg.BroadcastIP).
		Msg("sending WOL packet")

	if err := s.wolClient.Wake(cfg.BroadcastIP, mac); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in the result
	}

	result.PacketSent = true
	s.logger.Info().Msg("WOL packet sent successfully")

	if cfg.PollURL == "" && cfg.PollPath == "" {
		result.WaitDuration = s.clock.Now().Sub(start)
		result.TargetReady = true
		return result, nil
	}

	s.logger.Info().
		Str("url", cfg.PollURL).
		Str("path", cfg.PollPath).
		Dur("timeout", cfg.Timeout).
		Msg("waiting for destination host")

	if err := s.waitForTarget(ctx, cfg); err != nil {
		result.WaitDuration = s.clock.Now().Sub(start)
		result.Error = err
		return result, nil //nolint:nilerr // error is stored in the result
	}

	if cfg.StabilizeWait > 0 {
		s.logger.Debug().Str("wait", cfg.StabilizeWait.Round(time.Millisecond).String()).Msg("waiting for target to stabilize")
		select {
		case <-ctx.Done():
			result.WaitDuration = s.clock.Now().Sub(start)
			result.Error = ctx.Err()
			return result, nil
		case <-s.clock.After(cfg.StabilizeWait):
		}
	}

	result.TargetReady = true
	result.WaitDuration = s.clock.Now().Sub(start)

	s.logger.Info().
		Dur("duration", result.WaitDuration).
		Msg("destination host is ready")

	return result, nil
}

func (s *Impl) waitForTarget(ctx context.Context, cfg models.WOLConfig) error {
	deadline := s.clock.Now().Add(cfg.Timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if s.clock.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for destination host (url %q, path %q)", cfg.PollURL, cfg.PollPath)
		}

		ready, err := s.probe(ctx, cfg)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(cfg.PollInterval):
		}
	}
}

// probe reports whether every configured check passes.
func (s *Impl) probe(ctx context.Context, cfg models.WOLConfig) (bool, error) {
	if cfg.PollURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.PollURL, nil)
		if err != nil {
			return false, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			s.logger.Debug().Err(err).Msg("target not ready yet")
			return false, nil
		}
		// Any response means the target is up
		_ = resp.Body.Close()
	}

	if cfg.PollPath != "" {
		if _, err := os.Stat(cfg.PollPath); err != nil {
			s.logger.Debug().Err(err).Msg("destination path not available yet")
			return false, nil
		}
	}

	return true, nil
}
