package models

import "time"

// ArchiveResult holds the result of compressing a workspace.
type ArchiveResult struct {
	Path      string
	SizeBytes int64
	Entries   int
	Checksum  string // hex-encoded SHA-256 of the archive file
	Duration  time.Duration
}
