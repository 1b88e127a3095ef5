package config

import (
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/stonefire/cloudsync/internal/authserver"
	"github.com/stonefire/cloudsync/internal/credentials"
	"github.com/stonefire/cloudsync/internal/notify"
	"github.com/stonefire/cloudsync/internal/onedrive"
	"github.com/stonefire/cloudsync/internal/transfer"
	"github.com/stonefire/cloudsync/internal/utils"
)

const (
	DefaultSyncTime    = "03:00"
	DefaultChunkSize   = "10MiB"
	DefaultRedirectURI = "http://localhost:8000/code"
	tokensFileName     = "tokens.json"
	cursorFileName     = "delta.json"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultConfigDir)

	v.SetDefault("onedrive.client_id", "")
	v.SetDefault("onedrive.client_secret", "")
	v.SetDefault("onedrive.redirect_uri", DefaultRedirectURI)
	v.SetDefault("onedrive.scope", credentials.DefaultScopes)
	v.SetDefault("onedrive.auth_url", credentials.DefaultAuthURL)
	v.SetDefault("onedrive.token_url", credentials.DefaultTokenURL)
	v.SetDefault("onedrive.graph_url", onedrive.DefaultBaseURL)
	v.SetDefault("onedrive.tokens_path", "")

	v.SetDefault("blob.bucket_name", "")
	v.SetDefault("blob.region", "us-east-1")
	v.SetDefault("blob.access_key", "")
	v.SetDefault("blob.secret_key", "")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.use_path_style", false)

	v.SetDefault("sync.time", DefaultSyncTime)
	v.SetDefault("sync.run_on_start", false)
	v.SetDefault("sync.chunk_size", DefaultChunkSize)
	v.SetDefault("sync.max_parts", 10000)
	v.SetDefault("sync.locator_max_age", transfer.DefaultLocatorMaxAge)
	v.SetDefault("sync.cursor_path", "")
	v.SetDefault("sync.exclude", []string{})
	v.SetDefault("sync.poll_interval", credentials.DefaultPollInterval)
	v.SetDefault("sync.http_timeout", onedrive.DefaultTimeout)
	v.SetDefault("sync.verify_size", true)

	v.SetDefault("auth_server.enabled", true)
	v.SetDefault("auth_server.addr", authserver.DefaultAddr)
	v.SetDefault("auth_server.cert_file", "")
	v.SetDefault("auth_server.key_file", "")

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.sendgrid_api_key", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.to", "")
	v.SetDefault("mail.subject", notify.DefaultSubject)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// ApplyDefaults resolves data_dir and derives the state file paths that were left empty.
func ApplyDefaults(cfg *Config) error {
	dataDir, err := utils.ResolvePath(cfg.DataDir)
	if err != nil {
		return err
	}
	cfg.DataDir = dataDir

	if cfg.OneDrive.TokensPath == "" {
		cfg.OneDrive.TokensPath = filepath.Join(dataDir, tokensFileName)
	}
	if cfg.Sync.CursorPath == "" {
		cfg.Sync.CursorPath = filepath.Join(dataDir, cursorFileName)
	}
	if cfg.Mail.Subject == "" {
		cfg.Mail.Subject = notify.DefaultSubject
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	for _, p := range []*string{&cfg.OneDrive.TokensPath, &cfg.Sync.CursorPath, &cfg.Log.File} {
		if *p == "" {
			continue
		}
		if *p, err = utils.ResolvePath(*p); err != nil {
			return err
		}
	}
	return nil
}
