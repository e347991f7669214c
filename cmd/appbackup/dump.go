package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/appbackup/internal/models"
	"github.com/fgeck/appbackup/internal/services/backup"
	"github.com/fgeck/appbackup/internal/services/dumper"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	dumpApp    string
	dumpDB     string
	dumpOutput string
)

// errNotFound is returned when --app or --db names nothing in the config.
var errNotFound = errors.New("not found in configuration")

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump a single configured database",
	Long: `Dump one database of a configured app to a file, without staging or
compressing anything. The output defaults to the database's out_file, or to
<name>-<timestamp>.db in the current directory.`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpApp, "app", "a", "", "app the database belongs to (required)")
	dumpCmd.Flags().StringVar(&dumpDB, "db", "", "database name (required)")
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "output file")
	_ = dumpCmd.MarkFlagRequired("app")
	_ = dumpCmd.MarkFlagRequired("db")
}

// findDatabase returns the database named db of the app named app.
func findDatabase(cfg *models.Config, app, db string) (models.DatabaseSource, error) {
	for _, a := range cfg.Apps {
		if a.Name != app {
			continue
		}
		for _, src := range a.Databases {
			if src.Name == db {
				return src, nil
			}
		}
		return models.DatabaseSource{}, fmt.Errorf("database %q of app %q: %w", db, app, errNotFound)
	}
	return models.DatabaseSource{}, fmt.Errorf("app %q: %w", app, errNotFound)
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	src, err := findDatabase(cfg, dumpApp, dumpDB)
	if err != nil {
		log.Error().Err(err).Msg("cannot dump")
		return err
	}

	outFile := dumpOutput
	if outFile == "" {
		outFile = src.OutFile
	}
	if outFile == "" {
		ts := clock.WallClock.Now().Format(backup.TimestampFormat)
		outFile = backup.DumpFileName(".", src.Name, ts)
	}
	if outFile, err = filepath.Abs(outFile); err != nil {
		return err
	}

	d, err := dumper.DefaultRegistry(log.Logger).Get(src.Engine)
	if err != nil {
		log.Error().Err(err).Msg("cannot dump")
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := d.Dump(ctx, src, outFile)
	if err == nil {
		err = result.Error
	}
	if err != nil {
		log.Error().Err(err).Str("database", src.Name).Msg("dump failed")
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", result.OutFile, humanize.IBytes(uint64(result.SizeBytes))) //nolint:gosec // size is never negative

	return nil
}
