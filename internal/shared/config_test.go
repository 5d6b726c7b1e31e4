package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "tonearm.db" {
			t.Errorf("expected database path tonearm.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}

		if config.Cache.ResultTTLSeconds != 86400 {
			t.Errorf("expected result TTL 86400, got %d", config.Cache.ResultTTLSeconds)
		}

		if config.Reconcile.TimeoutSeconds != 30 {
			t.Errorf("expected reconcile timeout 30, got %d", config.Reconcile.TimeoutSeconds)
		}

		if config.Credentials.Deezer.BaseURL != "https://api.deezer.com" {
			t.Errorf("expected deezer base URL https://api.deezer.com, got %s", config.Credentials.Deezer.BaseURL)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"
max_open_conns = 20
max_idle_conns = 10

[server]
host = "0.0.0.0"
port = 9090

[cache]
redis_url = "redis://localhost:6379/0"
result_ttl_seconds = 120

[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"

[credentials.musicbrainz]
app_name = "testapp"
app_version = "1.0"
contact = "ops@example.com"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 9090 {
			t.Errorf("expected server port 9090, got %d", config.Server.Port)
		}

		if config.Cache.RedisURL != "redis://localhost:6379/0" {
			t.Errorf("expected redis URL to be set, got %s", config.Cache.RedisURL)
		}

		if config.Credentials.MusicBrainz.Contact != "ops@example.com" {
			t.Errorf("expected musicbrainz contact ops@example.com, got %s", config.Credentials.MusicBrainz.Contact)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig("/does/not/exist.toml"); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}
