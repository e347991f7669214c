package dumper

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/rs/zerolog"
)

// PostgreSQL dump format constants.
const (
	FormatCustom = "custom"
	FormatPlain  = "plain"
	FormatTar    = "tar"
)

// Postgres dumps PostgreSQL databases with pg_dump.
type Postgres struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// NewPostgres creates a new PostgreSQL dumper.
func NewPostgres(logger zerolog.Logger) *Postgres {
	return &Postgres{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewPostgresWithExecutor creates a new PostgreSQL dumper with a custom executor (for testing).
func NewPostgresWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Postgres {
	return &Postgres{
		executor: executor,
		logger:   logger,
	}
}

// Engine implements DBDumper.
func (p *Postgres) Engine() models.Engine { return models.EnginePostgres }

// Dump performs a pg_dump of src into outFile.
func (p *Postgres) Dump(ctx context.Context, src models.DatabaseSource, outFile string) (*models.DumpResult, error) {
	args := []string{
		"-h", src.Host,
		"-U", src.Username,
	}
	if src.Port != 0 {
		args = append(args, "-p", strconv.Itoa(src.Port))
	}

	switch src.Format {
	case FormatPlain:
		args = append(args, "-Fp")
	case FormatTar:
		args = append(args, "-Ft")
	default:
		args = append(args, "-Fc")
	}
	args = append(args, "-d", src.Name)

	// Set environment for password
	var env []string
	if src.Password != "" {
		env = append(env, fmt.Sprintf("PGPASSWORD=%s", src.Password))
	}

	return execute(ctx, p.logger, p.executor, src, outFile, command{
		tool: "pg_dump",
		args: args,
		env:  env,
	}), nil
}
