package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "chatline"
	// EnvPrefix prefixes every environment override, e.g. CHATLINE_BASE_API_URL.
	EnvPrefix = "CHATLINE"
	// DataDirEnv overrides the resolved data directory.
	DataDirEnv = "CHATLINE_DATA_DIR"

	DefaultBaseAPIURL           = "http://localhost:8000"
	DefaultBaseWSURL            = "ws://localhost:8000"
	DefaultMessagePageSize      = 15
	DefaultConversationPageSize = 8
	DefaultReconnectDelayMS     = 5000
	DefaultPingIntervalMS       = 30000
	DefaultTypingIdleMS         = 3000
	DefaultReadReceiptDelayMS   = 1000
	DefaultRequestTimeoutMS     = 15000
	DefaultRequestRetries       = 3
	DefaultLogLevel             = "info"

	// configFileName is the persisted configuration file.
	configFileName = "config.json"
	// logFileName receives structured logs while the TUI owns the terminal.
	logFileName = "chatline.log"
)

// ClientConfig contains persistent client settings.
type ClientConfig struct {
	ClientID             string `json:"client_id" mapstructure:"client_id" validate:"required"`
	Username             string `json:"username" mapstructure:"username"`
	BaseAPIURL           string `json:"base_api_url" mapstructure:"base_api_url" validate:"required,url"`
	BaseWSURL            string `json:"base_ws_url" mapstructure:"base_ws_url" validate:"required,url"`
	MessagePageSize      int    `json:"message_page_size" mapstructure:"message_page_size" validate:"min=1,max=200"`
	ConversationPageSize int    `json:"conversation_page_size" mapstructure:"conversation_page_size" validate:"min=1,max=200"`
	ReconnectDelayMS     int    `json:"reconnect_delay_ms" mapstructure:"reconnect_delay_ms" validate:"min=1"`
	PingIntervalMS       int    `json:"ping_interval_ms" mapstructure:"ping_interval_ms" validate:"min=1"`
	TypingIdleMS         int    `json:"typing_idle_ms" mapstructure:"typing_idle_ms" validate:"min=1"`
	ReadReceiptDelayMS   int    `json:"read_receipt_delay_ms" mapstructure:"read_receipt_delay_ms" validate:"min=1"`
	RequestTimeoutMS     int    `json:"request_timeout_ms" mapstructure:"request_timeout_ms" validate:"min=1"`
	RequestRetries       int    `json:"request_retries" mapstructure:"request_retries" validate:"min=0,max=10"`
	LogLevel             string `json:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// ReconnectDelay is the fixed delay before a socket redial.
func (c *ClientConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

// PingInterval is the keep-alive period of the notifications socket.
func (c *ClientConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalMS) * time.Millisecond
}

// TypingIdle is how long after the last keystroke stop_typing is sent.
func (c *ClientConfig) TypingIdle() time.Duration {
	return time.Duration(c.TypingIdleMS) * time.Millisecond
}

// ReadReceiptDelay is how long unread messages stay on screen before mark_read.
func (c *ClientConfig) ReadReceiptDelay() time.Duration {
	return time.Duration(c.ReadReceiptDelayMS) * time.Millisecond
}

// RequestTimeout bounds a single REST call.
func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// Validate checks field constraints.
func (c *ClientConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If CHATLINE_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// LogPath returns the log file path for a data directory.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, logFileName)
}

// EnsureDataDirectories creates the app data directory if needed.
func EnsureDataDirectories(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", dataDir, err)
	}
	return nil
}

// Load reads config.json and applies CHATLINE_* environment overrides.
func Load(path string) (*ClientConfig, error) {
	return load(path, true)
}

// LoadFile reads config.json without environment overrides. Use it for
// read-modify-write so overrides never end up on disk.
func LoadFile(path string) (*ClientConfig, error) {
	return load(path, false)
}

func load(path string, withEnv bool) (*ClientConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	v := newViper(withEnv)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *ClientConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Update applies fn to the file values of config.json and writes them back.
func Update(path string, fn func(*ClientConfig)) error {
	cfg, err := LoadFile(path)
	if err != nil {
		return err
	}
	fn(cfg)
	return Save(path, cfg)
}

// LoadDotEnv loads a .env file from the working directory when one exists.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
func LoadOrCreate() (*ClientConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
		if err := Save(cfgPath, defaultConfig()); err != nil {
			return nil, "", err
		}
	}

	stored, err := LoadFile(cfgPath)
	if err != nil {
		return nil, "", err
	}
	if normalizeDefaults(stored) {
		if err := Save(cfgPath, stored); err != nil {
			return nil, "", err
		}
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		return nil, "", err
	}
	normalizeDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return cfg, cfgPath, nil
}

func newViper(withEnv bool) *viper.Viper {
	v := viper.New()
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	defaults := defaultConfig()
	v.SetDefault("client_id", "")
	v.SetDefault("username", "")
	v.SetDefault("base_api_url", defaults.BaseAPIURL)
	v.SetDefault("base_ws_url", defaults.BaseWSURL)
	v.SetDefault("message_page_size", defaults.MessagePageSize)
	v.SetDefault("conversation_page_size", defaults.ConversationPageSize)
	v.SetDefault("reconnect_delay_ms", defaults.ReconnectDelayMS)
	v.SetDefault("ping_interval_ms", defaults.PingIntervalMS)
	v.SetDefault("typing_idle_ms", defaults.TypingIdleMS)
	v.SetDefault("read_receipt_delay_ms", defaults.ReadReceiptDelayMS)
	v.SetDefault("request_timeout_ms", defaults.RequestTimeoutMS)
	v.SetDefault("request_retries", defaults.RequestRetries)
	v.SetDefault("log_level", defaults.LogLevel)
	return v
}

func defaultConfig() *ClientConfig {
	return &ClientConfig{
		ClientID:             uuid.NewString(),
		BaseAPIURL:           DefaultBaseAPIURL,
		BaseWSURL:            DefaultBaseWSURL,
		MessagePageSize:      DefaultMessagePageSize,
		ConversationPageSize: DefaultConversationPageSize,
		ReconnectDelayMS:     DefaultReconnectDelayMS,
		PingIntervalMS:       DefaultPingIntervalMS,
		TypingIdleMS:         DefaultTypingIdleMS,
		ReadReceiptDelayMS:   DefaultReadReceiptDelayMS,
		RequestTimeoutMS:     DefaultRequestTimeoutMS,
		RequestRetries:       DefaultRequestRetries,
		LogLevel:             DefaultLogLevel,
	}
}

func normalizeDefaults(cfg *ClientConfig) bool {
	updated := false

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
		updated = true
	}

	trimmedAPI := strings.TrimRight(cfg.BaseAPIURL, "/")
	if trimmedAPI != cfg.BaseAPIURL {
		cfg.BaseAPIURL = trimmedAPI
		updated = true
	}
	trimmedWS := strings.TrimRight(cfg.BaseWSURL, "/")
	if trimmedWS != cfg.BaseWSURL {
		cfg.BaseWSURL = trimmedWS
		updated = true
	}
	if cfg.BaseWSURL == "" && cfg.BaseAPIURL != "" {
		cfg.BaseWSURL = wsURLFromAPI(cfg.BaseAPIURL)
		updated = true
	}

	if cfg.MessagePageSize <= 0 {
		cfg.MessagePageSize = DefaultMessagePageSize
		updated = true
	}
	if cfg.ConversationPageSize <= 0 {
		cfg.ConversationPageSize = DefaultConversationPageSize
		updated = true
	}
	if cfg.ReconnectDelayMS <= 0 {
		cfg.ReconnectDelayMS = DefaultReconnectDelayMS
		updated = true
	}
	if cfg.PingIntervalMS <= 0 {
		cfg.PingIntervalMS = DefaultPingIntervalMS
		updated = true
	}
	if cfg.TypingIdleMS <= 0 {
		cfg.TypingIdleMS = DefaultTypingIdleMS
		updated = true
	}
	if cfg.ReadReceiptDelayMS <= 0 {
		cfg.ReadReceiptDelayMS = DefaultReadReceiptDelayMS
		updated = true
	}
	if cfg.RequestTimeoutMS <= 0 {
		cfg.RequestTimeoutMS = DefaultRequestTimeoutMS
		updated = true
	}
	if cfg.RequestRetries < 0 {
		cfg.RequestRetries = DefaultRequestRetries
		updated = true
	}

	level := normalizeLogLevel(cfg.LogLevel)
	if level != cfg.LogLevel {
		cfg.LogLevel = level
		updated = true
	}

	return updated
}

func normalizeLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return "debug"
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return DefaultLogLevel
	}
}

// wsURLFromAPI derives ws(s)://host from an http(s) base URL.
func wsURLFromAPI(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	default:
		return apiURL
	}
}
