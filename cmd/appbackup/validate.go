package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without executing any backup operations.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	// Check if file exists
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	printSummary(cmd, cfg)
	return nil
}

func printSummary(cmd *cobra.Command, cfg *models.Config) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  Host: %s\n", cfg.Host)
	fmt.Fprintf(out, "  Apps: %d\n", len(cfg.Apps))

	for _, app := range cfg.Apps {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "App %s:\n", app.Name)
		fmt.Fprintf(out, "  Source: %s\n", app.SourcePath)
		if app.DestPath != "" {
			fmt.Fprintf(out, "  Destination: %s\n", app.DestPath)
		} else {
			fmt.Fprintln(out, "  Destination: (parent of source)")
		}
		fmt.Fprintf(out, "  Overwrite archive: %v\n", app.OverwriteArchive)
		if app.Lock {
			fmt.Fprintf(out, "  Lock: %v (timeout %s)\n", app.Lock, app.LockTimeout)
		}
		if app.Timeouts != (models.Timeouts{}) {
			fmt.Fprintf(out, "  Timeouts: dump=%s copy=%s compress=%s\n",
				app.Timeouts.Dump, app.Timeouts.Copy, app.Timeouts.Compress)
		}
		if app.Compose != nil {
			fmt.Fprintf(out, "  Compose: file=%q env_file=%q stop=%v\n",
				app.Compose.File, app.Compose.EnvFile, app.Compose.Stop)
		}
		for _, db := range app.Databases {
			line := fmt.Sprintf("  Database: %s %s@%s:%d/%s", db.Engine, db.Username, db.Host, db.Port, db.Name)
			if db.Container != "" {
				line += " (container " + db.Container + ")"
			}
			fmt.Fprintln(out, line)
		}
		if len(app.Files) > 0 {
			fmt.Fprintf(out, "  Files: %s\n", strings.Join(app.Files, ", "))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	fmt.Fprintf(out, "  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Fprintf(out, "  SSH Command: %v\n", cfg.SSHCommand != nil)
	fmt.Fprintf(out, "  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.WOL != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "WOL Configuration:")
		fmt.Fprintf(out, "  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Fprintf(out, "  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
		if cfg.WOL.PollURL != "" {
			fmt.Fprintf(out, "  Poll URL: %s\n", cfg.WOL.PollURL)
		}
		if cfg.WOL.PollPath != "" {
			fmt.Fprintf(out, "  Poll Path: %s\n", cfg.WOL.PollPath)
		}
	}

	if cfg.SSHCommand != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "SSH Command Configuration:")
		fmt.Fprintf(out, "  Host: %s\n", cfg.SSHCommand.Host)
		fmt.Fprintf(out, "  Port: %d\n", cfg.SSHCommand.Port)
		fmt.Fprintf(out, "  Username: %s\n", cfg.SSHCommand.Username)
		fmt.Fprintf(out, "  Command: %s\n", cfg.SSHCommand.Command)
		fmt.Fprintf(out, "  On failure: %v\n", cfg.SSHCommand.OnFailure)
	}

	if cfg.Telegram != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Telegram Configuration:")
		fmt.Fprintf(out, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintln(out, "  Bot Token: (configured)")
	}
}
