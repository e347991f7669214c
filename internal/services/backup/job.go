// Package backup orchestrates a single application backup run: staging
// database dumps and files in a workspace, compressing it into a dated
// archive and always removing the workspace afterwards.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/fgeck/appbackup/internal/services/archiver"
	"github.com/fgeck/appbackup/internal/services/dumper"
	"github.com/fgeck/appbackup/internal/services/workspace"
	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// TimestampFormat sorts lexicographically in chronological order.
const TimestampFormat = "20060102-150405"

const (
	dumpExt    = ".db"
	archiveExt = ".zip"
)

// Job backs up one application directory.
type Job struct {
	sourcePath string
	name       string
	destPath   string

	logger       zerolog.Logger
	clock        clock.Clock
	dumpers      *dumper.Registry
	archiver     archiver.Archiver
	timeouts     models.Timeouts
	overwrite    bool
	lock         bool
	lockTimeout  time.Duration
	onTransition func(from, to State)

	mu        sync.Mutex
	state     State
	running   bool
	lastStamp string // timestamp of the previous run
	databases []models.DatabaseSource
	files     []string
}

// New creates a job for cfg. Databases and files listed in cfg are registered
// in order.
func New(logger zerolog.Logger, cfg models.JobConfig, opts ...Option) (*Job, error) {
	if cfg.SourcePath == "" {
		return nil, fmt.Errorf("%w: source path is required", ErrInvalidSource)
	}

	sourcePath, err := filepath.Abs(cfg.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, sourcePath)
	}

	name := cfg.Name
	if name == "" {
		name = filepath.Base(sourcePath)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobName, name)
	}

	destPath := cfg.DestPath
	if destPath == "" {
		destPath = filepath.Dir(sourcePath)
	}
	if destPath, err = filepath.Abs(destPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDestination, err)
	}

	j := &Job{
		sourcePath:  sourcePath,
		name:        name,
		destPath:    destPath,
		logger:      logger.With().Str("app", name).Logger(),
		clock:       clock.WallClock,
		timeouts:    cfg.Timeouts,
		overwrite:   cfg.OverwriteArchive,
		lock:        cfg.Lock,
		lockTimeout: cfg.LockTimeout,
		state:       Idle,
	}

	for _, opt := range opts {
		opt(j)
	}

	if j.dumpers == nil {
		j.dumpers = dumper.DefaultRegistry(j.logger)
	}
	if j.archiver == nil {
		j.archiver = archiver.New(j.logger, archiver.Options{Overwrite: j.overwrite})
	}

	for _, db := range cfg.Databases {
		if err := j.AddDB(db); err != nil {
			return nil, err
		}
	}
	for _, f := range cfg.Files {
		if err := j.AddFile(f); err != nil {
			return nil, err
		}
	}

	return j, nil
}

// Name returns the identifier used in output filenames.
func (j *Job) Name() string { return j.name }

// SourcePath returns the absolute application directory.
func (j *Job) SourcePath() string { return j.sourcePath }

// DestPath returns the directory archives are written to.
func (j *Job) DestPath() string { return j.destPath }

// ArchivePath returns the archive location for a run timestamp.
func (j *Job) ArchivePath(timestamp string) string {
	return filepath.Join(j.destPath, j.name+"-"+timestamp+archiveExt)
}

// State returns the current run state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// AddDB registers a database to dump. Dumps run in registration order.
func (j *Job) AddDB(src models.DatabaseSource) error {
	if src.Name == "" {
		return fmt.Errorf("%w: database name is required", ErrInvalidDB)
	}
	if _, err := j.dumpers.Get(src.Engine); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDB, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return ErrJobRunning
	}
	j.databases = append(j.databases, src)
	return nil
}

// AddFile registers a path relative to the source directory. Files are
// copied in registration order.
func (j *Job) AddFile(rel string) error {
	clean, err := j.cleanFile(rel)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return ErrJobRunning
	}
	j.files = append(j.files, clean)
	return nil
}

func (j *Job) cleanFile(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidFile)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s must be relative to %s", ErrInvalidFile, rel, j.sourcePath)
	}

	clean := filepath.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrInvalidFile, rel, j.sourcePath)
	}

	first, _, _ := strings.Cut(clean, string(filepath.Separator))
	if first == workspace.DirName {
		return "", fmt.Errorf("%w: %s is inside the workspace", ErrInvalidFile, rel)
	}

	return clean, nil
}

// Make performs one backup run. The workspace is removed before Make
// returns, whether or not the run succeeded. The returned result is non-nil
// whenever the run started.
func (j *Job) Make(ctx context.Context) (*models.RunResult, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil, ErrJobRunning
	}
	j.running = true
	databases := slices.Clone(j.databases)
	files := slices.Clone(j.files)
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := j.clock.Now()
	result := &models.RunResult{
		App:       j.name,
		StartTime: start,
	}

	if j.lock {
		releaser, err := j.acquireLock(ctx)
		if err != nil {
			// The workspace belongs to whoever holds the lock, so it is left alone.
			j.transition(Failed)
			return j.failed(result, start, &PhaseError{Phase: Preparing, Kind: ErrLocked, Err: err})
		}
		defer releaser.Release()
	}

	timestamp, err := j.nextTimestamp(ctx)
	if err != nil {
		// Nothing was staged yet.
		j.transition(Failed)
		return j.failed(result, start, &PhaseError{Phase: Preparing, Kind: ErrWorkspace, Err: err})
	}
	result.Timestamp = timestamp
	j.transition(Preparing)

	ws := workspace.ForSource(j.logger, j.sourcePath)
	runErr := j.run(ctx, ws, result, databases, files)

	j.transition(CleaningUp)
	if err := ws.Teardown(); err != nil {
		runErr = multierr.Append(runErr, &PhaseError{Phase: CleaningUp, Kind: ErrWorkspace, Err: err})
	}

	if runErr != nil {
		j.transition(Failed)
		return j.failed(result, start, runErr)
	}

	result.Duration = j.clock.Now().Sub(start)
	j.transition(Succeeded)

	j.logger.Info().
		Str("archive", result.Archive.Path).
		Int("databases", len(result.Dumps)).
		Int("files", result.FilesCopied).
		Dur("duration", result.Duration).
		Msg("backup completed")

	return result, nil
}

func (j *Job) failed(result *models.RunResult, start time.Time, err error) (*models.RunResult, error) {
	if phase, ok := FailedPhase(err); ok {
		result.FailedPhase = phase.String()
	}
	result.Error = err
	result.Duration = j.clock.Now().Sub(start)

	j.logger.Error().
		Err(err).
		Str("phase", result.FailedPhase).
		Msg("backup failed")

	return result, err
}

func (j *Job) run(
	ctx context.Context,
	ws *workspace.Manager,
	result *models.RunResult,
	databases []models.DatabaseSource,
	files []string,
) error {
	if err := ws.Prepare(len(databases) > 0, len(files) > 0); err != nil {
		return &PhaseError{Phase: Preparing, Kind: ErrWorkspace, Err: err}
	}

	j.transition(DumpingDatabases)
	for _, src := range databases {
		dump, err := j.dump(ctx, ws, result.Timestamp, src)
		if dump != nil {
			result.Dumps = append(result.Dumps, *dump)
		}
		if err != nil {
			return &PhaseError{Phase: DumpingDatabases, Kind: ErrDump, Err: fmt.Errorf("%s: %w", src.Name, err)}
		}
	}

	j.transition(CopyingFiles)
	if err := j.copyFiles(ctx, ws, result, files); err != nil {
		return &PhaseError{Phase: CopyingFiles, Kind: ErrCopy, Err: err}
	}

	j.transition(Compressing)
	if err := os.MkdirAll(j.destPath, dirPerm); err != nil {
		return &PhaseError{Phase: Compressing, Kind: ErrDestination, Err: err}
	}

	compressCtx, cancel := withTimeout(ctx, j.timeouts.Compress)
	defer cancel()

	archive, err := j.archiver.Compress(compressCtx, ws.Root(), j.ArchivePath(result.Timestamp))
	if err != nil {
		return &PhaseError{Phase: Compressing, Kind: ErrArchive, Err: err}
	}
	result.Archive = archive

	return nil
}

// nextTimestamp returns the run timestamp. A run never reuses the timestamp of
// the previous run on this job, so it waits for the next second if needed.
func (j *Job) nextTimestamp(ctx context.Context) (string, error) {
	for {
		now := j.clock.Now()
		ts := now.Format(TimestampFormat)
		if ts != j.lastStamp {
			j.lastStamp = ts
			return ts, nil
		}

		wait := now.Truncate(time.Second).Add(time.Second).Sub(now)
		j.logger.Debug().Dur("wait", wait).Msg("waiting for a new run timestamp")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-j.clock.After(wait):
		}
	}
}

// DumpFileName derives the staged dump path for a database.
func DumpFileName(dbsDir, database, timestamp string) string {
	return filepath.Join(dbsDir, database+"-"+timestamp+dumpExt)
}

func (j *Job) dump(ctx context.Context, ws *workspace.Manager, timestamp string, src models.DatabaseSource) (*models.DumpResult, error) {
	d, err := j.dumpers.Get(src.Engine)
	if err != nil {
		return nil, err
	}

	if src.OutFile == "" {
		src.OutFile = DumpFileName(ws.DBsDir(), src.Name, timestamp)
	}

	dumpCtx, cancel := withTimeout(ctx, j.timeouts.Dump)
	defer cancel()

	res, err := d.Dump(dumpCtx, src, src.OutFile)
	if err != nil {
		return res, err
	}
	if res != nil && res.Error != nil {
		return res, res.Error
	}
	return res, nil
}

func (j *Job) copyFiles(ctx context.Context, ws *workspace.Manager, result *models.RunResult, files []string) error {
	copyCtx, cancel := withTimeout(ctx, j.timeouts.Copy)
	defer cancel()

	for _, f := range files {
		if err := copyCtx.Err(); err != nil {
			return err
		}

		src := filepath.Join(j.sourcePath, f)
		dst := filepath.Join(ws.FilesDir(), f)

		n, err := copyPath(copyCtx, src, dst, ws.Root())
		result.FilesCopied += n
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}

		j.logger.Debug().Str("file", f).Int("copied", n).Msg("file staged")
	}

	return nil
}

func (j *Job) transition(to State) {
	j.mu.Lock()
	from := j.state
	j.state = to
	j.mu.Unlock()

	j.logger.Debug().
		Stringer("from", from).
		Stringer("to", to).
		Msg("state transition")

	if j.onTransition != nil {
		j.onTransition(from, to)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
