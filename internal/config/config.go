package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/stonefire/cloudsync/internal/authserver"
	"github.com/stonefire/cloudsync/internal/blob"
	"github.com/stonefire/cloudsync/internal/notify"
	"github.com/stonefire/cloudsync/internal/utils"
)

const (
	EnvPrefix      = "CLOUDSYNC"
	configFileName = "config"
	dotenvFileName = ".env"
)

var (
	home, _          = os.UserHomeDir()
	DefaultConfigDir = filepath.Join(home, ".cloudsync")
)

// Config is the full daemon configuration.
//
// Precedence, highest first: cobra flags bound to the viper instance,
// CLOUDSYNC_* environment variables, .env next to the config file, the config
// file, then defaults.
type Config struct {
	DataDir    string            `mapstructure:"data_dir" validate:"required"`
	OneDrive   OneDriveConfig    `mapstructure:"onedrive"`
	Blob       blob.S3Config     `mapstructure:"blob"`
	Sync       SyncConfig        `mapstructure:"sync"`
	AuthServer authserver.Config `mapstructure:"auth_server"`
	Mail       notify.Config     `mapstructure:"mail"`
	Log        LogConfig         `mapstructure:"log"`

	// Path is the config file actually read, empty when none was found.
	Path string `mapstructure:"-"`
}

type OneDriveConfig struct {
	ClientID     string   `mapstructure:"client_id" validate:"required"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri" validate:"required,url"`
	Scope        []string `mapstructure:"scope"`
	AuthURL      string   `mapstructure:"auth_url" validate:"required,url"`
	TokenURL     string   `mapstructure:"token_url" validate:"required,url"`
	GraphURL     string   `mapstructure:"graph_url" validate:"required,url"`
	TokensPath   string   `mapstructure:"tokens_path" validate:"required"`
}

type SyncConfig struct {
	Time          string        `mapstructure:"time" validate:"required"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
	ChunkSize     string        `mapstructure:"chunk_size" validate:"required"`
	MaxParts      int           `mapstructure:"max_parts" validate:"gte=1,lte=10000"`
	LocatorMaxAge time.Duration `mapstructure:"locator_max_age" validate:"gte=0"`
	CursorPath    string        `mapstructure:"cursor_path" validate:"required"`
	Exclude       []string      `mapstructure:"exclude"`
	PollInterval  time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	VerifySize    bool          `mapstructure:"verify_size"`
}

// ChunkBytes parses ChunkSize, accepting plain byte counts or sizes such as "10MiB".
func (s SyncConfig) ChunkBytes() (int64, error) {
	n, err := humanize.ParseBytes(s.ChunkSize)
	if err != nil {
		return 0, fmt.Errorf("chunk_size %q: %w", s.ChunkSize, err)
	}
	return int64(n), nil
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	File  string `mapstructure:"file"`
}

// SlogLevel maps Level onto slog, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", c.Path),
		slog.String("data_dir", c.DataDir),
		slog.Group("onedrive",
			slog.String("client_id", c.OneDrive.ClientID),
			slog.String("client_secret", utils.MaskSecret(c.OneDrive.ClientSecret)),
			slog.String("redirect_uri", c.OneDrive.RedirectURI),
			slog.String("graph_url", c.OneDrive.GraphURL),
			slog.String("tokens_path", c.OneDrive.TokensPath),
		),
		slog.Attr{Key: "blob", Value: c.Blob.LogValue()},
		slog.Group("sync",
			slog.String("time", c.Sync.Time),
			slog.Bool("run_on_start", c.Sync.RunOnStart),
			slog.String("chunk_size", c.Sync.ChunkSize),
			slog.String("cursor_path", c.Sync.CursorPath),
			slog.Any("exclude", c.Sync.Exclude),
		),
		slog.Attr{Key: "auth_server", Value: c.AuthServer.LogValue()},
		slog.Attr{Key: "mail", Value: c.Mail.LogValue()},
		slog.String("log_level", c.Log.Level),
	)
}

// NewViper returns a viper instance configured for CLOUDSYNC_* environment
// overrides with every known key registered, so AutomaticEnv reaches nested keys.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the config file (configFile, or config.{yaml,toml,json} in the
// default directory), overlays environment and bound flags, fills derived
// paths and validates.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	dir := configDir(configFile)
	if err := loadDotenv(filepath.Join(dir, dotenvFileName)); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName(configFileName)
	}

	// a missing default config is fine, a missing explicit one is not
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if configFile != "" || (!enoent && !ok) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" && utils.FileExists(used) {
		cfg.Path = used
	}

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func configDir(configFile string) string {
	if configFile != "" {
		return filepath.Dir(configFile)
	}
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	return DefaultConfigDir
}

// loadDotenv never overrides variables already present in the environment.
func loadDotenv(path string) error {
	if !utils.FileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("dotenv '%s': %w", path, err)
	}
	return nil
}
