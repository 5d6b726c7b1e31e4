package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Cache       CacheConfig       `toml:"cache"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Reconcile   ReconcileConfig   `toml:"reconcile"`
}

// CredentialsConfig contains catalog-specific credentials and contact details.
type CredentialsConfig struct {
	Spotify     SpotifyConfig     `toml:"spotify"`
	MusicBrainz MusicBrainzConfig `toml:"musicbrainz"`
	Deezer      DeezerConfig      `toml:"deezer"`
}

// SpotifyConfig contains Spotify client-credentials API access.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// MusicBrainzConfig identifies this application to the MusicBrainz API.
// MusicBrainz requires a descriptive User-Agent with contact information.
type MusicBrainzConfig struct {
	AppName    string `toml:"app_name"`
	AppVersion string `toml:"app_version"`
	Contact    string `toml:"contact"`
}

// DeezerConfig contains Deezer API settings. The public API needs no auth.
type DeezerConfig struct {
	BaseURL string `toml:"base_url"`
}

// CacheConfig contains the result cache backend and TTL settings in seconds.
// An empty RedisURL selects the in-process memory store.
type CacheConfig struct {
	RedisURL          string `toml:"redis_url"`
	ResultTTLSeconds  int    `toml:"result_ttl_seconds"`
	SearchTTLSeconds  int    `toml:"search_ttl_seconds"`
	ReleaseTTLSeconds int    `toml:"release_ttl_seconds"`
	ErrorTTLSeconds   int    `toml:"error_ttl_seconds"`
}

// DatabaseConfig contains job registry database settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// ReconcileConfig bounds reconciliation runs and job retention.
type ReconcileConfig struct {
	TimeoutSeconds       int `toml:"timeout_seconds"`
	SourceTimeoutSeconds int `toml:"source_timeout_seconds"`
	JobRetentionHours    int `toml:"job_retention_hours"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
