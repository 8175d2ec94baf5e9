package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateCreatesAndReloadsConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)

	firstCfg, firstPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	if firstCfg.ClientID == "" {
		t.Fatalf("expected non-empty client ID")
	}
	if firstCfg.BaseAPIURL != DefaultBaseAPIURL {
		t.Fatalf("expected default api url %q, got %q", DefaultBaseAPIURL, firstCfg.BaseAPIURL)
	}
	if firstCfg.MessagePageSize != DefaultMessagePageSize {
		t.Fatalf("expected message page size %d, got %d", DefaultMessagePageSize, firstCfg.MessagePageSize)
	}

	expectedConfigPath := filepath.Join(tempDir, "config.json")
	if firstPath != expectedConfigPath {
		t.Fatalf("expected config path %q, got %q", expectedConfigPath, firstPath)
	}

	secondCfg, secondPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if secondPath != firstPath {
		t.Fatalf("expected config path to be stable, got %q then %q", firstPath, secondPath)
	}
	if secondCfg.ClientID != firstCfg.ClientID {
		t.Fatalf("expected stable client ID, got %q then %q", firstCfg.ClientID, secondCfg.ClientID)
	}
}

func TestLoadOrCreateNormalizesLegacyValues(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)

	cfgPath := filepath.Join(tempDir, "config.json")
	if err := EnsureDataDirectories(tempDir); err != nil {
		t.Fatalf("EnsureDataDirectories failed: %v", err)
	}

	legacy := &ClientConfig{
		BaseAPIURL:       "https://chat.example.com/",
		BaseWSURL:        "",
		MessagePageSize:  -3,
		ReconnectDelayMS: 0,
		LogLevel:         "WARNING",
	}
	if err := Save(cfgPath, legacy); err != nil {
		t.Fatalf("Save legacy config failed: %v", err)
	}

	cfg, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.ClientID == "" {
		t.Fatalf("expected client ID to be generated")
	}
	if cfg.BaseAPIURL != "https://chat.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BaseAPIURL)
	}
	if cfg.BaseWSURL != "wss://chat.example.com" {
		t.Fatalf("expected websocket url derived from api url, got %q", cfg.BaseWSURL)
	}
	if cfg.MessagePageSize != DefaultMessagePageSize {
		t.Fatalf("expected message page size reset, got %d", cfg.MessagePageSize)
	}
	if cfg.ReconnectDelayMS != DefaultReconnectDelayMS {
		t.Fatalf("expected reconnect delay reset, got %d", cfg.ReconnectDelayMS)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log level warn, got %q", cfg.LogLevel)
	}

	reloaded, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.ClientID != cfg.ClientID {
		t.Fatalf("expected normalized config to be persisted")
	}
}

func TestEnvironmentOverridesFileValues(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)

	if _, _, err := LoadOrCreate(); err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	t.Setenv("CHATLINE_BASE_API_URL", "http://override:9000")
	t.Setenv("CHATLINE_REQUEST_RETRIES", "5")

	cfg, err := Load(ConfigPath(tempDir))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseAPIURL != "http://override:9000" {
		t.Fatalf("expected env api url override, got %q", cfg.BaseAPIURL)
	}
	if cfg.RequestRetries != 5 {
		t.Fatalf("expected env retries override, got %d", cfg.RequestRetries)
	}
}

func TestUpdateKeepsEnvironmentOverridesOffDisk(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(DataDirEnv, tempDir)
	t.Setenv("CHATLINE_BASE_API_URL", "https://staging.example.com/")
	t.Setenv("CHATLINE_REQUEST_RETRIES", "0")

	cfg, cfgPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.BaseAPIURL != "https://staging.example.com" {
		t.Fatalf("expected env api url in effect, got %q", cfg.BaseAPIURL)
	}

	if err := Update(cfgPath, func(c *ClientConfig) { c.Username = "alice@example.com" }); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var onDisk ClientConfig
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if onDisk.Username != "alice@example.com" {
		t.Fatalf("expected username persisted, got %q", onDisk.Username)
	}
	if onDisk.BaseAPIURL != DefaultBaseAPIURL {
		t.Fatalf("expected file api url %q, got %q", DefaultBaseAPIURL, onDisk.BaseAPIURL)
	}
	if onDisk.RequestRetries != DefaultRequestRetries {
		t.Fatalf("expected file retries %d, got %d", DefaultRequestRetries, onDisk.RequestRetries)
	}
	if onDisk.ClientID != cfg.ClientID {
		t.Fatalf("expected client ID kept, got %q then %q", cfg.ClientID, onDisk.ClientID)
	}
}

func TestValidateRejectsBadURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.BaseAPIURL = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for bad url")
	}

	cfg = defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
