package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ProviderConfig holds the OAuth endpoints and client id for one storage
// backend. Client secrets are never part of the configuration; tokens live
// in the system keyring.
type ProviderConfig struct {
	// ID is the provider identifier ("onedrive", "googledrive").
	ID string `mapstructure:"id" yaml:"id"`

	// Name is the user-visible label.
	Name string `mapstructure:"name" yaml:"name"`

	// ClientID is the OAuth client id registered for this app.
	ClientID string `mapstructure:"client_id" yaml:"client_id"`

	// AuthEndpoint is the OAuth authorization endpoint.
	AuthEndpoint string `mapstructure:"auth_endpoint" yaml:"auth_endpoint"`

	// TokenEndpoint is the OAuth token endpoint used for silent refresh.
	TokenEndpoint string `mapstructure:"token_endpoint" yaml:"token_endpoint"`

	// Scopes is the space-separated OAuth scope string.
	Scopes string `mapstructure:"scopes" yaml:"scopes"`
}

// SyncConfig holds the scheduling knobs of the sync engine.
type SyncConfig struct {
	// DownSyncPollSec is the polling interval for pulling remote changes.
	DownSyncPollSec int `mapstructure:"down_sync_poll_sec" yaml:"down_sync_poll_sec"`

	// UpSyncDebounceSec is the quiet period after the last local change
	// before pushing.
	UpSyncDebounceSec int `mapstructure:"up_sync_debounce_sec" yaml:"up_sync_debounce_sec"`

	// SaveDebounceSec is the quiet period before persisting changed data
	// to the local store.
	SaveDebounceSec int `mapstructure:"save_debounce_sec" yaml:"save_debounce_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// DataDir is where the local database lives.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// DevMode switches the remote root folder to the development variant.
	DevMode bool `mapstructure:"dev_mode" yaml:"dev_mode"`

	Providers []ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Sync      SyncConfig       `mapstructure:"sync" yaml:"sync"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/listsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "listsync", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dataDir := "."
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "listsync")
	}
	return &AppConfig{
		DataDir: dataDir,
		Providers: []ProviderConfig{
			{
				ID:            "onedrive",
				Name:          "OneDrive",
				AuthEndpoint:  "https://login.live.com/oauth20_authorize.srf",
				TokenEndpoint: "https://login.live.com/oauth20_token.srf",
				Scopes:        "onedrive.readwrite wl.offline_access wl.signin",
			},
			{
				ID:            "googledrive",
				Name:          "Google Drive",
				AuthEndpoint:  "https://accounts.google.com/o/oauth2/v2/auth",
				TokenEndpoint: "https://oauth2.googleapis.com/token",
				Scopes:        "https://www.googleapis.com/auth/drive.appdata",
			},
		},
		Sync: SyncConfig{
			DownSyncPollSec:   30,
			UpSyncDebounceSec: 10,
			SaveDebounceSec:   3,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("sync.down_sync_poll_sec", 30)
	v.SetDefault("sync.up_sync_debounce_sec", 10)
	v.SetDefault("sync.save_debounce_sec", 3)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sync.DownSyncPollSec <= 0 {
		cfg.Sync.DownSyncPollSec = 30
	}
	if cfg.Sync.UpSyncDebounceSec <= 0 {
		cfg.Sync.UpSyncDebounceSec = 10
	}
	if cfg.Sync.SaveDebounceSec <= 0 {
		cfg.Sync.SaveDebounceSec = 3
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("data_dir", cfg.DataDir)
	v.Set("dev_mode", cfg.DevMode)
	v.Set("providers", cfg.Providers)
	v.Set("sync", cfg.Sync)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// Provider returns the configured provider with the given id, or nil.
func (c *AppConfig) Provider(id string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}
