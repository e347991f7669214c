// Package models contains the data structures used throughout appbackup.
package models

import "time"

// Config holds the complete configuration loaded from a config file.
type Config struct {
	Host       string // reported in notifications
	Apps       []JobConfig
	WOL        *WOLConfig        // nil if not configured
	SSHCommand *SSHCommandConfig // nil if not configured
	Telegram   *TelegramConfig   // nil if not configured
}

// JobConfig describes one application to back up.
type JobConfig struct {
	SourcePath       string // application root directory
	Name             string // defaults to the last segment of SourcePath
	DestPath         string // defaults to the parent of SourcePath
	OverwriteArchive bool
	Lock             bool
	LockTimeout      time.Duration
	Timeouts         Timeouts
	Compose          *ComposeConfig // nil if not configured
	Databases        []DatabaseSource
	Files            []string // relative to SourcePath
}

// Timeouts bounds the external calls of a run. Zero means no timeout.
type Timeouts struct {
	Dump     time.Duration // per database
	Copy     time.Duration // whole copy phase
	Compress time.Duration
}

// ComposeConfig controls stopping the application's compose project while it is backed up.
type ComposeConfig struct {
	File    string // compose file, relative to SourcePath
	EnvFile string // dotenv file, relative to SourcePath
	Stop    bool
}
