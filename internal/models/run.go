package models

import "time"

// RunResult summarizes one Make invocation of a backup job.
type RunResult struct {
	App         string
	Timestamp   string
	StartTime   time.Time
	Duration    time.Duration
	Dumps       []DumpResult
	FilesCopied int
	Archive     *ArchiveResult // nil unless compression succeeded
	FailedPhase string         // empty on success
	Error       error
}

// Succeeded reports whether the run produced an archive without error.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.Error == nil && r.Archive != nil
}
