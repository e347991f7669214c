package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/appbackup/internal/config"
	"github.com/fgeck/appbackup/internal/models"
	"github.com/fgeck/appbackup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runApps []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backup workflow",
	Long: `Execute the complete backup workflow:
1. Wake-on-LAN (if configured)
2. For each app, in configuration order:
   a. Stop the compose project (if configured)
   b. Dump databases into <app>/tmp/dbs
   c. Copy files into <app>/tmp/files
   d. Compress the workspace into <dest>/<name>-<timestamp>.zip
   e. Remove the workspace and start the compose project again
3. Remote SSH command (if configured)
4. Send Telegram notification (if configured)`,
	RunE: runBackup,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runApps, "app", "a", nil, "only back up the named app (repeatable)")
}

// loadConfig reads and validates the config file named by --config.
func loadConfig(cmd *cobra.Command) (*models.Config, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		_ = cmd.Help()
		return nil, errors.New("config file is required")
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("host", cfg.Host).
		Int("apps", len(cfg.Apps)).
		Msg("configuration loaded")

	ctx, cancel := signalContext()
	defer cancel()

	// Run backup
	runnerSvc := runner.New(log.Logger)
	if err := runnerSvc.Run(ctx, *cfg, runApps...); err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	log.Info().Msg("backup completed successfully")
	return nil
}
