package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FileWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "data_dir: "+dir+"\nonedrive:\n  client_id: app-id\nblob:\n  bucket_name: backups\n")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "app-id", cfg.OneDrive.ClientID)
	assert.Equal(t, DefaultRedirectURI, cfg.OneDrive.RedirectURI)
	assert.Equal(t, filepath.Join(dir, "tokens.json"), cfg.OneDrive.TokensPath)
	assert.Equal(t, filepath.Join(dir, "delta.json"), cfg.Sync.CursorPath)
	assert.Equal(t, "backups", cfg.Blob.BucketName)
	assert.Equal(t, "us-east-1", cfg.Blob.Region)
	assert.Equal(t, DefaultSyncTime, cfg.Sync.Time)
	assert.Equal(t, 10000, cfg.Sync.MaxParts)
	assert.Equal(t, 30*time.Minute, cfg.Sync.LocatorMaxAge)
	assert.Equal(t, 60*time.Second, cfg.Sync.PollInterval)
	assert.True(t, cfg.Sync.VerifySize, "multipart uploads are size-checked unless disabled")
	assert.True(t, cfg.AuthServer.Enabled)
	assert.Equal(t, "127.0.0.1:8000", cfg.AuthServer.Addr)
	assert.Contains(t, cfg.OneDrive.Scope, "offline_access")

	size, err := cfg.Sync.ChunkBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024), size)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "data_dir: "+dir+"\nonedrive:\n  client_id: from-file\nblob:\n  bucket_name: backups\n")

	t.Setenv("CLOUDSYNC_ONEDRIVE_CLIENT_ID", "from-env")
	t.Setenv("CLOUDSYNC_SYNC_TIME", "22:15")
	t.Setenv("CLOUDSYNC_SYNC_CHUNK_SIZE", "8MiB")
	t.Setenv("CLOUDSYNC_SYNC_LOCATOR_MAX_AGE", "10m")
	t.Setenv("CLOUDSYNC_LOG_LEVEL", "DEBUG")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.OneDrive.ClientID)
	assert.Equal(t, "22:15", cfg.Sync.Time)
	assert.Equal(t, 10*time.Minute, cfg.Sync.LocatorMaxAge)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())

	size, err := cfg.Sync.ChunkBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(8*1024*1024), size)
}

func TestLoad_DotenvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "data_dir: "+dir+"\nonedrive:\n  client_id: app-id\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CLOUDSYNC_BLOB_BUCKET_NAME=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CLOUDSYNC_BLOB_BUCKET_NAME") })

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Blob.BucketName)
}

func TestLoad_EnvOnlyWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLOUDSYNC_CONFIG_DIR", dir)
	t.Setenv("CLOUDSYNC_DATA_DIR", dir)
	t.Setenv("CLOUDSYNC_ONEDRIVE_CLIENT_ID", "app-id")
	t.Setenv("CLOUDSYNC_BLOB_BUCKET_NAME", "backups")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)
	assert.Equal(t, "app-id", cfg.OneDrive.ClientID)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLOUDSYNC_DATA_DIR", dir)
	t.Setenv("CLOUDSYNC_ONEDRIVE_CLIENT_ID", "app-id")
	t.Setenv("CLOUDSYNC_BLOB_BUCKET_NAME", "backups")

	_, err := Load(NewViper(), filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "nope.yaml")
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "data_dir: [unterminated\n")

	_, err := Load(NewViper(), path)
	assert.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	path := writeConfig(t, dir, "data_dir: "+dir+"\nonedrive:\n  client_id: app-id\nblob:\n  bucket_name: backups\n")
	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	return cfg
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing client id", func(c *Config) { c.OneDrive.ClientID = "" }},
		{"bad redirect", func(c *Config) { c.OneDrive.RedirectURI = "not a url" }},
		{"bad time", func(c *Config) { c.Sync.Time = "25:00" }},
		{"bad chunk size", func(c *Config) { c.Sync.ChunkSize = "lots" }},
		{"chunk below minimum", func(c *Config) { c.Sync.ChunkSize = "1MiB" }},
		{"too many parts", func(c *Config) { c.Sync.MaxParts = 20000 }},
		{"bad exclude", func(c *Config) { c.Sync.Exclude = []string{"[unclosed"} }},
		{"missing bucket", func(c *Config) { c.Blob.BucketName = "" }},
		{"half static keys", func(c *Config) { c.Blob.AccessKey = "AKIA" }},
		{"mail without key", func(c *Config) { c.Mail.Enabled = true }},
		{"cert without key", func(c *Config) { c.AuthServer.CertFile = "cert.pem" }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"zero poll interval", func(c *Config) { c.Sync.PollInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			require.NoError(t, Validate(cfg))
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLogValue_MasksSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.OneDrive.ClientSecret = "supersecretvalue"
	cfg.Blob.SecretKey = "anothersecretvalue"
	cfg.Mail.SendgridAPIKey = "SG.mailsecretvalue"

	out := slog.AnyValue(cfg).Resolve().String()
	assert.NotContains(t, out, "supersecretvalue")
	assert.NotContains(t, out, "anothersecretvalue")
	assert.NotContains(t, out, "mailsecretvalue")
}
