// Package runner orchestrates a backup run over every configured app.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/fgeck/appbackup/internal/services/backup"
	"github.com/fgeck/appbackup/internal/services/compose"
	"github.com/fgeck/appbackup/internal/services/ssh"
	"github.com/fgeck/appbackup/internal/services/telegram"
	"github.com/fgeck/appbackup/internal/services/wol"
	"github.com/rs/zerolog"
)

// Steps reported when a run fails outside of a backup job.
const (
	StepWOL          = "wol"
	StepComposeStop  = "compose_stop"
	StepConfigure    = "configure"
	StepSSHCommand   = "ssh_command"
	composeStartWait = 5 * time.Minute
)

// ErrUnknownApp is returned when an app filter names an app that is not configured.
var ErrUnknownApp = errors.New("unknown app")

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.Config, apps ...string) error
}

// Job is a single app backup.
type Job interface {
	Make(ctx context.Context) (*models.RunResult, error)
}

// JobFactory builds the job for one app.
type JobFactory func(logger zerolog.Logger, cfg models.JobConfig) (Job, error)

// DefaultJobFactory builds backup.Job instances.
func DefaultJobFactory(logger zerolog.Logger, cfg models.JobConfig) (Job, error) {
	job, err := backup.New(logger, cfg)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Impl implements the runner Service interface.
type Impl struct {
	newJob      JobFactory
	composeSvc  compose.Service
	wolSvc      wol.Service
	sshSvc      ssh.Service
	telegramSvc telegram.Service
	logger      zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		newJob:      DefaultJobFactory,
		composeSvc:  compose.New(logger),
		wolSvc:      wol.New(logger),
		sshSvc:      ssh.New(logger),
		telegramSvc: telegram.New(logger),
		logger:      logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	newJob JobFactory,
	composeSvc compose.Service,
	wolSvc wol.Service,
	sshSvc ssh.Service,
	telegramSvc telegram.Service,
) *Impl {
	return &Impl{
		newJob:      newJob,
		composeSvc:  composeSvc,
		wolSvc:      wolSvc,
		sshSvc:      sshSvc,
		telegramSvc: telegramSvc,
		logger:      logger,
	}
}

// Select returns the apps named in filter, in configuration order. An empty
// filter selects every app.
func Select(cfg models.Config, filter ...string) ([]models.JobConfig, error) {
	if len(filter) == 0 {
		return cfg.Apps, nil
	}

	known := make(map[string]bool, len(cfg.Apps))
	for _, app := range cfg.Apps {
		known[app.Name] = true
	}
	for _, name := range filter {
		if !known[name] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownApp, name)
		}
	}

	var selected []models.JobConfig
	for _, app := range cfg.Apps {
		if slices.Contains(filter, app.Name) {
			selected = append(selected, app)
		}
	}
	return selected, nil
}

// run tracks the progress reported in the notification.
type run struct {
	startTime  time.Time
	runs       []models.RunResult
	failedApp  string
	failedStep string
	err        error
}

func (r *run) fail(app, step string, err error) error {
	r.failedApp = app
	r.failedStep = step
	r.err = err
	return err
}

// Run backs up the selected apps one after another and stops at the first failure.
func (s *Impl) Run(ctx context.Context, cfg models.Config, apps ...string) error {
	selected, err := Select(cfg, apps...)
	if err != nil {
		return err
	}

	state := &run{startTime: time.Now()}

	s.logger.Info().
		Str("host", cfg.Host).
		Int("apps", len(selected)).
		Msg("starting backup run")

	defer func() {
		// Send notification if configured
		if cfg.Telegram != nil {
			s.sendNotification(ctx, cfg, state)
		}
	}()

	// Step 1: Wake-on-LAN (if configured)
	if cfg.WOL != nil {
		if err := s.runWOL(ctx, cfg.WOL); err != nil {
			return state.fail("", StepWOL, err)
		}
	}

	// Step 2: back up each app
	for _, app := range selected {
		if err := s.runApp(ctx, app, state); err != nil {
			break
		}
	}

	// Step 3: remote command (if configured)
	if cfg.SSHCommand != nil && (state.err == nil || cfg.SSHCommand.OnFailure) {
		if err := s.runSSHCommand(ctx, cfg.SSHCommand); err != nil && state.err == nil {
			return state.fail("", StepSSHCommand, err)
		}
	}

	if state.err != nil {
		return state.err
	}

	s.logger.Info().
		Dur("duration", time.Since(state.startTime)).
		Msg("backup run completed successfully")

	return nil
}

func (s *Impl) runApp(ctx context.Context, app models.JobConfig, state *run) error {
	logger := s.logger.With().Str("app", app.Name).Logger()

	if app.Compose != nil && app.Compose.Stop {
		if err := s.composeSvc.Stop(ctx, app.SourcePath, *app.Compose); err != nil {
			return state.fail(app.Name, StepComposeStop, fmt.Errorf("%s: %w", app.Name, err))
		}
		defer s.restartCompose(ctx, logger, app)
	}

	job, err := s.newJob(logger, app)
	if err != nil {
		return state.fail(app.Name, StepConfigure, fmt.Errorf("%s: %w", app.Name, err))
	}

	result, err := job.Make(ctx)
	if result != nil {
		state.runs = append(state.runs, *result)
	}
	if err != nil {
		step := StepConfigure
		if result != nil && result.FailedPhase != "" {
			step = result.FailedPhase
		}
		return state.fail(app.Name, step, fmt.Errorf("%s: %w", app.Name, err))
	}

	return nil
}

// restartCompose brings the app back up even when the run was cancelled.
func (s *Impl) restartCompose(ctx context.Context, logger zerolog.Logger, app models.JobConfig) {
	startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), composeStartWait)
	defer cancel()

	if err := s.composeSvc.Start(startCtx, app.SourcePath, *app.Compose); err != nil {
		logger.Error().Err(err).Msg("failed to restart compose project")
		return
	}
	logger.Info().Msg("compose project restarted")
}

func (s *Impl) runWOL(ctx context.Context, cfg *models.WOLConfig) error {
	s.logger.Info().
		Str("mac", cfg.MACAddress).
		Str("target", cfg.PollURL).
		Str("path", cfg.PollPath).
		Msg("waking destination host")

	result, err := s.wolSvc.Wake(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("WOL failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("WOL failed: %w", result.Error)
	}

	if !result.TargetReady {
		return errors.New("destination host did not become ready after WOL")
	}

	s.logger.Info().
		Bool("packet_sent", result.PacketSent).
		Bool("target_ready", result.TargetReady).
		Dur("wait_duration", result.WaitDuration).
		Msg("WOL completed")

	return nil
}

func (s *Impl) runSSHCommand(ctx context.Context, cfg *models.SSHCommandConfig) error {
	s.logger.Info().
		Str("host", cfg.Host).
		Str("command", cfg.Command).
		Msg("running remote command")

	result, err := s.sshSvc.Run(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("SSH command failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("SSH command failed: %w", result.Error)
	}

	s.logger.Info().
		Bool("command_run", result.CommandRun).
		Str("output", result.Output).
		Msg("SSH command completed")

	return nil
}

func (s *Impl) sendNotification(ctx context.Context, cfg models.Config, state *run) {
	msg := models.TelegramMessage{
		Success:   state.err == nil,
		Host:      cfg.Host,
		StartTime: state.startTime,
		Duration:  time.Since(state.startTime),
		Runs:      state.runs,
	}

	if state.err != nil {
		msg.FailedApp = state.failedApp
		msg.FailedStep = state.failedStep
		msg.ErrorMessage = state.err.Error()
	}

	// The run context may already be cancelled; the notification is still worth sending.
	notifyCtx := context.WithoutCancel(ctx)

	result, err := s.telegramSvc.SendNotification(notifyCtx, *cfg.Telegram, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	s.logger.Info().Msg("Telegram notification sent")
}
