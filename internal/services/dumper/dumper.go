// Package dumper provides per-engine database dump capabilities.
package dumper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/rs/zerolog"
)

var (
	// ErrUnsupportedEngine is returned for engines without a registered dumper.
	ErrUnsupportedEngine = errors.New("unsupported database engine")
	// ErrOutputExists is returned when the dump destination already exists.
	ErrOutputExists = errors.New("output file already exists")
	// ErrEmptyOutput is returned when a dump tool exits cleanly but writes nothing.
	ErrEmptyOutput = errors.New("output file is empty")
)

// DBDumper dumps a single database into a file.
type DBDumper interface {
	Engine() models.Engine
	Dump(ctx context.Context, src models.DatabaseSource, outFile string) (*models.DumpResult, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	ExecuteToFile(ctx context.Context, env []string, outputPath string, name string, args ...string) error
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// ExecuteToFile runs the command and streams its stdout into a newly created outputPath.
func (e *DefaultExecutor) ExecuteToFile(ctx context.Context, env []string, outputPath string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	output, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // outputPath is controlled by caller
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = output.Close() }()

	var stderr bytes.Buffer
	cmd.Stdout = output
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	return nil
}

// Registry dispatches dumps by engine tag.
type Registry struct {
	dumpers map[models.Engine]DBDumper
}

// NewRegistry creates a registry holding the given dumpers.
func NewRegistry(dumpers ...DBDumper) *Registry {
	r := &Registry{dumpers: make(map[models.Engine]DBDumper, len(dumpers))}
	for _, d := range dumpers {
		r.Register(d)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in engine.
func DefaultRegistry(logger zerolog.Logger) *Registry {
	return NewRegistry(
		NewPostgres(logger),
		NewMySQL(logger),
	)
}

// Register adds or replaces the dumper for its engine.
func (r *Registry) Register(d DBDumper) {
	r.dumpers[d.Engine()] = d
}

// Get returns the dumper for engine.
func (r *Registry) Get(engine models.Engine) (DBDumper, error) {
	d, ok := r.dumpers[engine]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, engine)
	}
	return d, nil
}

// Engines lists the registered engine tags in sorted order.
func (r *Registry) Engines() []models.Engine {
	engines := make([]models.Engine, 0, len(r.dumpers))
	for e := range r.dumpers {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
	return engines
}

// CheckPreconditions verifies that outFile's directory exists and outFile does not.
func CheckPreconditions(outFile string) error {
	dir := filepath.Dir(outFile)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}

	if _, err := os.Lstat(outFile); err == nil {
		return fmt.Errorf("%w: %s", ErrOutputExists, outFile)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking output file: %w", err)
	}

	return nil
}

// CheckOutput verifies that a non-empty dump exists at outFile and returns its size.
func CheckOutput(outFile string) (int64, error) {
	info, err := os.Stat(outFile)
	if err != nil {
		return 0, fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyOutput, outFile)
	}
	return info.Size(), nil
}

// command describes one dump tool invocation.
type command struct {
	tool string
	args []string
	env  []string // KEY=VALUE pairs the tool reads
}

// wrap runs the command through `docker exec` when the source names a container.
// Environment variables are forwarded by name so secrets never appear in argv.
func (c command) wrap(container string) (string, []string, []string) {
	if container == "" {
		return c.tool, c.args, c.env
	}

	args := []string{"exec", "-i"}
	for _, kv := range c.env {
		name, _, _ := strings.Cut(kv, "=")
		args = append(args, "-e", name)
	}
	args = append(args, container, c.tool)
	args = append(args, c.args...)

	return "docker", args, c.env
}

// execute runs a dump command and enforces the shared DBDumper contract.
func execute(
	ctx context.Context,
	logger zerolog.Logger,
	executor CommandExecutor,
	src models.DatabaseSource,
	outFile string,
	cmd command,
) *models.DumpResult {
	start := time.Now()
	result := &models.DumpResult{
		Engine:   src.Engine,
		Database: src.Name,
		OutFile:  outFile,
	}

	logger.Info().
		Str("engine", string(src.Engine)).
		Str("host", src.Host).
		Str("database", src.Name).
		Str("container", src.Container).
		Str("output", outFile).
		Msg("starting database dump")

	if err := CheckPreconditions(outFile); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	name, args, env := cmd.wrap(src.Container)
	if err := executor.ExecuteToFile(ctx, env, outFile, name, args...); err != nil {
		if errors.Is(err, fs.ErrExist) {
			// Someone else created outFile after the precheck; it is not ours to remove.
			err = fmt.Errorf("%w: %w", ErrOutputExists, err)
		} else {
			// Clean up partial file
			_ = os.Remove(outFile)
		}
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	size, err := CheckOutput(outFile)
	if err != nil {
		_ = os.Remove(outFile)
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	result.SizeBytes = size
	result.Duration = time.Since(start)

	logger.Info().
		Str("database", src.Name).
		Str("output", outFile).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("database dump completed")

	return result
}
