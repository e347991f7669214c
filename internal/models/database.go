package models

import "time"

// Engine identifies a database engine.
type Engine string

// Supported database engines.
const (
	EnginePostgres Engine = "postgres"
	EngineMySQL    Engine = "mysql"
)

// DatabaseSource is a database registered for dumping.
type DatabaseSource struct {
	Engine    Engine
	Host      string
	Port      int
	Username  string
	Password  string
	Name      string // database name
	OutFile   string // optional; derived from the workspace when empty
	Container string // optional; run the dump tool inside this container
	Format    string // postgres only: "custom" (default), "plain", "tar"
}

// DumpResult holds the result of a single database dump.
type DumpResult struct {
	Engine    Engine
	Database  string
	OutFile   string
	SizeBytes int64
	Duration  time.Duration
	Error     error
}
