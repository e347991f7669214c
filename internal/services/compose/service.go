// Package compose stops and restarts an application's docker compose
// project around a backup run.
package compose

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Defaults used when the config leaves them unset.
const (
	DefaultFile    = "docker-compose.yml"
	DefaultEnvFile = ".env"
	fileEnvKey     = "YAML"
)

// Service defines the interface for compose lifecycle operations.
type Service interface {
	Stop(ctx context.Context, appPath string, cfg models.ComposeConfig) error
	Start(ctx context.Context, appPath string, cfg models.ComposeConfig) error
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	ExecuteWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// ExecuteWithEnv runs a command in dir with additional environment variables.
func (e *DefaultExecutor) ExecuteWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new compose service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new compose service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// Project is a located compose project.
type Project struct {
	File string   // absolute compose file path
	Env  []string // KEY=VALUE pairs read from the env file
}

// Locate finds the compose file for appPath. It returns nil when the
// application has no compose file.
func Locate(appPath string, cfg models.ComposeConfig) (*Project, error) {
	envFile := cfg.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	vars, err := readEnv(resolve(appPath, envFile))
	if err != nil {
		return nil, err
	}

	name := cfg.File
	if name == "" {
		name = vars[fileEnvKey]
	}
	if name == "" {
		name = DefaultFile
	}

	file := resolve(appPath, name)
	info, err := os.Stat(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compose file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("compose file %s is a directory", file)
	}

	return &Project{File: file, Env: envList(vars)}, nil
}

// Stop stops the application's containers without removing them.
func (s *Impl) Stop(ctx context.Context, appPath string, cfg models.ComposeConfig) error {
	return s.run(ctx, appPath, cfg, "stop")
}

// Start brings the application's containers up in the background.
func (s *Impl) Start(ctx context.Context, appPath string, cfg models.ComposeConfig) error {
	return s.run(ctx, appPath, cfg, "up", "-d")
}

func (s *Impl) run(ctx context.Context, appPath string, cfg models.ComposeConfig, action ...string) error {
	project, err := Locate(appPath, cfg)
	if err != nil {
		return err
	}
	if project == nil {
		s.logger.Debug().Str("path", appPath).Msg("no compose file found, skipping")
		return nil
	}

	args := append([]string{"compose", "-f", project.File}, action...)

	s.logger.Info().
		Str("file", project.File).
		Str("action", strings.Join(action, " ")).
		Msg("running docker compose")

	output, err := s.executor.ExecuteWithEnv(ctx, filepath.Dir(project.File), project.Env, "docker", args...)
	if err != nil {
		return fmt.Errorf("docker compose %s failed: %w, output: %s", action[0], err, strings.TrimSpace(string(output)))
	}

	return nil
}

func resolve(appPath, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(appPath, name)
}

func readEnv(path string) (map[string]string, error) {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return vars, nil
}

func envList(vars map[string]string) []string {
	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
