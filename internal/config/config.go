package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	JWTSecret     string           `json:"jwt_secret"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Database      DatabaseConfig   `json:"database"`
	Search        SearchConfig     `json:"search"`
	AI            AIConfig         `json:"ai"`
	Extract       ExtractConfig    `json:"extract"`
	RateLimitMS   int              `json:"rate_limit_ms"`
	CORSAllowlist []string         `json:"cors_allowlist"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	DSN    string `json:"dsn"`
}

type SearchConfig struct {
	AdapterTimeoutMS int `json:"adapter_timeout_ms"`
	CandidateLimit   int `json:"candidate_limit"`
	MaxQueryChars    int `json:"max_query_chars"`
	TopN             int `json:"top_n"`
	HistoryTurns     int `json:"history_turns"`
	ExcerptChars     int `json:"excerpt_chars"`
	MaxPromptChars   int `json:"max_prompt_chars"`
}

type AIConfig struct {
	Timeout       int              `json:"timeout"`
	MaxInputChars int              `json:"max_input_chars"`
	Retries       int              `json:"retries"`
	Providers     []ProviderConfig `json:"providers"`
}

type ProviderConfig struct {
	Name  string      `json:"name"`
	Model string      `json:"model"`
	Data  interface{} `json:"data"`
}

type ExtractConfig struct {
	Cron            string `json:"cron"`
	Batch           int    `json:"batch"`
	CacheSize       int    `json:"cache_size"`
	CacheTTLMinutes int    `json:"cache_ttl_minutes"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres")
	}
	cfg.Search.ApplyDefaults()
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 30
	}
	if cfg.AI.MaxInputChars <= 0 {
		cfg.AI.MaxInputChars = 2000
	}
	if cfg.AI.Retries <= 0 {
		cfg.AI.Retries = 2
	}
	for i, p := range cfg.AI.Providers {
		if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Model) == "" {
			return fmt.Errorf("ai.providers[%d] requires name and model", i)
		}
	}
	if cfg.Extract.Cron == "" {
		cfg.Extract.Cron = "*/5 * * * *"
	}
	if cfg.Extract.Batch <= 0 {
		cfg.Extract.Batch = 50
	}
	if cfg.Extract.CacheSize <= 0 {
		cfg.Extract.CacheSize = 1024
	}
	if cfg.Extract.CacheTTLMinutes <= 0 {
		cfg.Extract.CacheTTLMinutes = 60
	}
	if cfg.RateLimitMS == 0 {
		cfg.RateLimitMS = 1000
	}
	return nil
}

func (s *SearchConfig) ApplyDefaults() {
	if s.AdapterTimeoutMS <= 0 {
		s.AdapterTimeoutMS = 300
	}
	if s.CandidateLimit <= 0 {
		s.CandidateLimit = 200
	}
	if s.MaxQueryChars <= 0 {
		s.MaxQueryChars = 60
	}
	if s.TopN <= 0 {
		s.TopN = 5
	}
	if s.HistoryTurns <= 0 {
		s.HistoryTurns = 6
	}
	if s.ExcerptChars <= 0 {
		s.ExcerptChars = 300
	}
	if s.MaxPromptChars <= 0 {
		s.MaxPromptChars = 12000
	}
}
