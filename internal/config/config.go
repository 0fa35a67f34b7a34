package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel        = "google/gemini-2.5-flash"
	DefaultBaseURL      = "https://openrouter.ai/api/v1"
	DefaultUserName     = "Arvin"
	DefaultPronouns     = "he, him, his"
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 18890
	DefaultBufSize      = 100
	DefaultMaxTurns     = 10
	DefaultContextChars = 800
	DefaultSessionGap   = "6h"
)

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Identity IdentityConfig `json:"identity"`
	Memory   MemoryConfig   `json:"memory"`
	Session  SessionConfig  `json:"session"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model,omitempty"`
}

// IdentityConfig names the person the pipeline remembers facts about.
type IdentityConfig struct {
	UserName string `json:"userName,omitempty"`
	Pronouns string `json:"pronouns,omitempty"`
}

// MemoryConfig selects the fact store backend. StoreURL points at a remote
// action-tagged endpoint; LocalPath enables the embedded SQLite store when
// no remote endpoint is configured. With neither set, memory is disabled and
// the pipeline answers statelessly.
type MemoryConfig struct {
	StoreURL  string `json:"storeUrl,omitempty"`
	LocalPath string `json:"localPath,omitempty"`
}

type SessionConfig struct {
	MaxTurns     int    `json:"maxTurns,omitempty"`
	ContextChars int    `json:"contextChars,omitempty"`
	Gap          string `json:"gap,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WebUI    WebUIConfig    `json:"webui"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL: DefaultBaseURL,
			Model:   DefaultModel,
		},
		Identity: IdentityConfig{
			UserName: DefaultUserName,
			Pronouns: DefaultPronouns,
		},
		Memory: MemoryConfig{
			LocalPath: filepath.Join(ConfigDir(), "data", "facts.db"),
		},
		Session: SessionConfig{
			MaxTurns:     DefaultMaxTurns,
			ContextChars: DefaultContextChars,
			Gap:          DefaultSessionGap,
		},
		Channels: ChannelsConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".symbiont")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("SYMBIONT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("SYMBIONT_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("SYMBIONT_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if url := os.Getenv("SYMBIONT_STORE_URL"); url != "" {
		cfg.Memory.StoreURL = url
	}
	if path := os.Getenv("SYMBIONT_MEMORY_PATH"); path != "" {
		cfg.Memory.LocalPath = path
	}
	if token := os.Getenv("SYMBIONT_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if turns := os.Getenv("SYMBIONT_MAX_TURNS"); turns != "" {
		if parsed, err := strconv.Atoi(turns); err == nil && parsed > 0 {
			cfg.Session.MaxTurns = parsed
		}
	}

	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = DefaultBaseURL
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Identity.UserName == "" {
		cfg.Identity.UserName = DefaultUserName
	}
	if cfg.Identity.Pronouns == "" {
		cfg.Identity.Pronouns = DefaultPronouns
	}
	if cfg.Session.MaxTurns <= 0 {
		cfg.Session.MaxTurns = DefaultMaxTurns
	}
	if cfg.Session.ContextChars <= 0 {
		cfg.Session.ContextChars = DefaultContextChars
	}
	if cfg.Session.Gap == "" {
		cfg.Session.Gap = DefaultSessionGap
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
