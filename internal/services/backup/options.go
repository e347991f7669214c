package backup

import (
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/fgeck/appbackup/internal/services/archiver"
	"github.com/fgeck/appbackup/internal/services/dumper"
	"github.com/juju/clock"
)

// Option configures a Job.
type Option func(*Job)

// WithClock sets the clock used for run timestamps.
func WithClock(c clock.Clock) Option {
	return func(j *Job) { j.clock = c }
}

// WithDumpers replaces the engine registry.
func WithDumpers(r *dumper.Registry) Option {
	return func(j *Job) { j.dumpers = r }
}

// WithArchiver replaces the zip archiver.
func WithArchiver(a archiver.Archiver) Option {
	return func(j *Job) { j.archiver = a }
}

// WithTimeouts bounds each phase. Zero values leave a phase unbounded.
func WithTimeouts(t models.Timeouts) Option {
	return func(j *Job) { j.timeouts = t }
}

// WithLock serializes runs against the same source path across processes.
func WithLock(enabled bool, timeout time.Duration) Option {
	return func(j *Job) {
		j.lock = enabled
		j.lockTimeout = timeout
	}
}

// WithOverwriteArchive allows replacing an archive with the same name.
// Ignored when WithArchiver is also given.
func WithOverwriteArchive(overwrite bool) Option {
	return func(j *Job) { j.overwrite = overwrite }
}

// WithTransitionHook is called on every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(j *Job) { j.onTransition = fn }
}
