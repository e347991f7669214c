// Package config provides configuration file parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fgeck/appbackup/internal/models"
	"github.com/spf13/viper"
)

// Defaults applied to optional settings.
const (
	DefaultPostgresPort   = 5432
	DefaultPostgresUser   = "postgres"
	DefaultPostgresFormat = "custom"
	DefaultMySQLPort      = 3306
	DefaultMySQLUser      = "root"
	DefaultLockTimeout    = time.Minute
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

type rawTimeouts struct {
	Dump     time.Duration `mapstructure:"dump"`
	Copy     time.Duration `mapstructure:"copy"`
	Compress time.Duration `mapstructure:"compress"`
}

type rawCompose struct {
	File    string `mapstructure:"file"`
	EnvFile string `mapstructure:"env_file"`
	Stop    *bool  `mapstructure:"stop"`
}

type rawDatabase struct {
	Engine    string `mapstructure:"engine"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Name      string `mapstructure:"name"`
	OutFile   string `mapstructure:"out_file"`
	Container string `mapstructure:"container"`
	Format    string `mapstructure:"format"`
}

type rawApp struct {
	Path             string        `mapstructure:"path"`
	Name             string        `mapstructure:"name"`
	Dest             string        `mapstructure:"dest"`
	OverwriteArchive bool          `mapstructure:"overwrite_archive"`
	Lock             bool          `mapstructure:"lock"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	Timeouts         rawTimeouts   `mapstructure:"timeouts"`
	Compose          *rawCompose   `mapstructure:"compose"`
	Databases        []rawDatabase `mapstructure:"databases"`
	Files            []string      `mapstructure:"files"`
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{
		Host: p.v.GetString("host"),
	}

	// Set default host if not specified.
	if cfg.Host == "" {
		hostname, err := os.Hostname()
		if err != nil {
			cfg.Host = "unknown"
		} else {
			cfg.Host = hostname
		}
	}

	// Parse apps (required).
	var rawApps []rawApp
	if err := p.v.UnmarshalKey("apps", &rawApps); err != nil {
		return nil, fmt.Errorf("parsing apps: %w", err)
	}
	if len(rawApps) == 0 {
		return nil, errors.New("apps is required")
	}

	for i, raw := range rawApps {
		app, err := p.parseApp(i, raw)
		if err != nil {
			return nil, err
		}
		cfg.Apps = append(cfg.Apps, app)
	}

	// Parse optional WOL config.
	if p.v.IsSet("wol") { //nolint:nestif // config parsing with defaults
		cfg.WOL = &models.WOLConfig{
			MACAddress:    p.v.GetString("wol.mac_address"),
			BroadcastIP:   p.v.GetString("wol.broadcast_ip"),
			PollURL:       p.v.GetString("wol.poll_url"),
			PollPath:      p.expandEnv(p.v.GetString("wol.poll_path")),
			Timeout:       p.v.GetDuration("wol.timeout"),
			PollInterval:  p.v.GetDuration("wol.poll_interval"),
			StabilizeWait: p.v.GetDuration("wol.stabilize_wait"),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, errors.New("wol.mac_address is required when wol is configured")
		}

		// Set defaults.
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 5 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 10 * time.Second
		}
		if cfg.WOL.StabilizeWait == 0 {
			cfg.WOL.StabilizeWait = 10 * time.Second
		}
	}

	// Parse optional SSH command config.
	if p.v.IsSet("ssh_command") { //nolint:nestif // config parsing with defaults
		cfg.SSHCommand = &models.SSHCommandConfig{
			Host:       p.v.GetString("ssh_command.host"),
			Port:       p.v.GetInt("ssh_command.port"),
			Username:   p.v.GetString("ssh_command.username"),
			KeyPath:    p.expandEnv(p.v.GetString("ssh_command.key_path")),
			KnownHosts: p.expandEnv(p.v.GetString("ssh_command.known_hosts")),
			Command:    p.v.GetString("ssh_command.command"),
			OnFailure:  p.v.GetBool("ssh_command.on_failure"),
		}

		if cfg.SSHCommand.Host == "" {
			return nil, errors.New("ssh_command.host is required when ssh_command is configured")
		}
		if cfg.SSHCommand.Port == 0 {
			cfg.SSHCommand.Port = 22
		}
		if cfg.SSHCommand.Username == "" {
			cfg.SSHCommand.Username = "root"
		}
		if cfg.SSHCommand.KeyPath == "" {
			return nil, errors.New("ssh_command.key_path is required when ssh_command is configured")
		}
		if cfg.SSHCommand.Command == "" {
			return nil, errors.New("ssh_command.command is required when ssh_command is configured")
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, errors.New("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, errors.New("telegram.chat_id is required when telegram is configured")
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (p *Parser) parseApp(i int, raw rawApp) (models.JobConfig, error) {
	prefix := fmt.Sprintf("apps[%d]", i)

	app := models.JobConfig{
		SourcePath:       p.expandEnv(raw.Path),
		Name:             raw.Name,
		DestPath:         p.expandEnv(raw.Dest),
		OverwriteArchive: raw.OverwriteArchive,
		Lock:             raw.Lock,
		LockTimeout:      raw.LockTimeout,
		Timeouts:         models.Timeouts(raw.Timeouts),
		Files:            raw.Files,
	}

	if app.SourcePath == "" {
		return app, fmt.Errorf("%s.path is required", prefix)
	}
	if app.Name == "" {
		app.Name = filepath.Base(filepath.Clean(app.SourcePath))
	}
	if app.Lock && app.LockTimeout == 0 {
		app.LockTimeout = DefaultLockTimeout
	}

	if raw.Compose != nil {
		app.Compose = &models.ComposeConfig{
			File:    raw.Compose.File,
			EnvFile: raw.Compose.EnvFile,
			Stop:    true,
		}
		if raw.Compose.Stop != nil {
			app.Compose.Stop = *raw.Compose.Stop
		}
	}

	for j, f := range raw.Files {
		if f == "" {
			return app, fmt.Errorf("%s.files[%d] must not be empty", prefix, j)
		}
	}

	for j, rawDB := range raw.Databases {
		db, err := p.parseDatabase(fmt.Sprintf("%s.databases[%d]", prefix, j), rawDB)
		if err != nil {
			return app, err
		}
		app.Databases = append(app.Databases, db)
	}

	return app, nil
}

func (p *Parser) parseDatabase(prefix string, raw rawDatabase) (models.DatabaseSource, error) {
	db := models.DatabaseSource{
		Engine:    models.Engine(strings.ToLower(raw.Engine)),
		Host:      raw.Host,
		Port:      raw.Port,
		Username:  raw.Username,
		Password:  p.expandEnv(raw.Password),
		Name:      raw.Name,
		OutFile:   p.expandEnv(raw.OutFile),
		Container: raw.Container,
		Format:    raw.Format,
	}

	if db.Name == "" {
		return db, fmt.Errorf("%s.name is required", prefix)
	}
	if db.Host == "" {
		db.Host = "localhost"
	}

	switch db.Engine {
	case models.EnginePostgres:
		if db.Port == 0 {
			db.Port = DefaultPostgresPort
		}
		if db.Username == "" {
			db.Username = DefaultPostgresUser
		}
		if db.Format == "" {
			db.Format = DefaultPostgresFormat
		}

		// Validate format.
		validFormats := map[string]bool{"custom": true, "plain": true, "tar": true}
		if !validFormats[db.Format] {
			return db, fmt.Errorf("%s.format must be one of: custom, plain, tar", prefix)
		}
	case models.EngineMySQL:
		if db.Port == 0 {
			db.Port = DefaultMySQLPort
		}
		if db.Username == "" {
			db.Username = DefaultMySQLUser
		}
		if db.Format != "" {
			return db, fmt.Errorf("%s.format is only supported for postgres", prefix)
		}
	case "":
		return db, fmt.Errorf("%s.engine is required", prefix)
	default:
		return db, fmt.Errorf("%s.engine must be one of: postgres, mysql", prefix)
	}

	return db, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	if len(cfg.Apps) == 0 {
		return errors.New("apps is required")
	}

	names := make(map[string]bool, len(cfg.Apps))
	paths := make(map[string]bool, len(cfg.Apps))
	for _, app := range cfg.Apps {
		if app.SourcePath == "" {
			return fmt.Errorf("app %q has no path", app.Name)
		}
		if names[app.Name] {
			return fmt.Errorf("duplicate app name %q", app.Name)
		}
		names[app.Name] = true

		// Two jobs on one source path would share a workspace.
		abs, err := filepath.Abs(app.SourcePath)
		if err != nil {
			return fmt.Errorf("app %q: %w", app.Name, err)
		}
		if paths[abs] {
			return fmt.Errorf("duplicate app path %q", abs)
		}
		paths[abs] = true
	}

	return nil
}
