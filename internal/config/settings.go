package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
)

type Config struct {
	APIKeys []APIKey `json:"api_keys"`

	Events struct {
		Channel string `json:"channel"`
	} `json:"events"`

	RateLimit RateLimitConfig `json:"rate_limit"`

	Sync struct {
		PollTimer    Timer `json:"poll_timer"`
		OverlapTimer Timer `json:"overlap_timer"`
	} `json:"sync"`
}

// APIKey is one configured client/secret pair.
type APIKey struct {
	ClientID  string `json:"client_id"`
	SecretKey string `json:"secret_key"`
}

// RateLimitConfig allows Requests per Window for each client. Zero requests disables limiting.
type RateLimitConfig struct {
	Requests uint32 `json:"requests"`
	Burst    uint32 `json:"burst"`
	Window   Timer  `json:"window"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const DefaultSettingsPath = "data/settings.json"

var ErrFileNotFound = errors.New("config: settings file not found")

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
)

func init() {
	configValue.Store(Config{})
}

// ReadSettings loads path into the process-wide configuration. A missing file
// is created from the embedded defaults first.
func ReadSettings(path string) (Config, error) {
	if path == "" {
		path = DefaultSettingsPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read settings %s: %w", path, err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)
		if err := writeDefaults(path); err != nil {
			return Config{}, err
		}
		data = defaultConfig
	}

	cfg, err := ParseSettings(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse settings %s: %w", path, err)
	}

	SetConfig(cfg)
	log.Debug("Settings file loaded successfully", "path", path, "api_keys", len(cfg.APIKeys))
	return cfg, nil
}

// LoadSettings reads an existing file without creating it.
func LoadSettings(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return Config{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	return ParseSettings(data)
}

func ParseSettings(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func DefaultConfig() Config {
	cfg, err := ParseSettings(defaultConfig)
	if err != nil {
		log.Error("Embedded default settings are invalid", "error", err)
	}
	return cfg
}

func writeDefaults(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, defaultConfig, 0o600); err != nil {
		return fmt.Errorf("write default settings: %w", err)
	}
	return nil
}

func SetConfig(cfg Config) {
	configValue.Store(cfg)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}
