package dumper

import (
	"context"
	"fmt"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/rs/zerolog"
)

// MySQL dumps MySQL and MariaDB databases with mysqldump.
type MySQL struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// NewMySQL creates a new MySQL dumper.
func NewMySQL(logger zerolog.Logger) *MySQL {
	return &MySQL{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewMySQLWithExecutor creates a new MySQL dumper with a custom executor (for testing).
func NewMySQLWithExecutor(logger zerolog.Logger, executor CommandExecutor) *MySQL {
	return &MySQL{
		executor: executor,
		logger:   logger,
	}
}

// Engine implements DBDumper.
func (m *MySQL) Engine() models.Engine { return models.EngineMySQL }

// Dump performs a mysqldump of src into outFile.
func (m *MySQL) Dump(ctx context.Context, src models.DatabaseSource, outFile string) (*models.DumpResult, error) {
	args := []string{
		fmt.Sprintf("--host=%s", src.Host),
		fmt.Sprintf("--user=%s", src.Username),
	}
	if src.Port != 0 {
		args = append(args, fmt.Sprintf("--port=%d", src.Port))
	}
	args = append(args,
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		src.Name,
	)

	// mysqldump reads MYSQL_PWD, which keeps the password out of argv.
	var env []string
	if src.Password != "" {
		env = append(env, fmt.Sprintf("MYSQL_PWD=%s", src.Password))
	}

	return execute(ctx, m.logger, m.executor, src, outFile, command{
		tool: "mysqldump",
		args: args,
		env:  env,
	}), nil
}
