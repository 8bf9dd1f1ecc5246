// Package config loads application configuration from JSONC files and the
// environment. The result is an explicit *types.Config constructed once at
// startup and handed to each component; nothing in this package is a
// process-wide singleton.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/tidwall/jsonc"

	"github.com/telnet2/go-practice/go-chat/pkg/types"
)

// Up to 1000 memory-resident sessions, 60 ticks at 500 ms per open stream.
const (
	DefaultMaxActiveSessions = 1000
	DefaultTickMillis        = 500
	DefaultTimeoutTicks      = 60
)

// Default returns the built-in configuration.
func Default() *types.Config {
	return &types.Config{
		Server: types.ServerConfig{
			Port:       8080,
			DataDir:    ".go-chat",
			EnableCORS: true,
		},
		Cache: types.CacheConfig{
			MaxActiveSessions: DefaultMaxActiveSessions,
		},
		Stream: types.StreamConfig{
			TickMillis:   DefaultTickMillis,
			TimeoutTicks: DefaultTimeoutTicks,
		},
		Bridge: types.BridgeConfig{
			Workers:   0, // sized from NumCPU
			QueueSize: 256,
		},
		Limits: types.LimitsConfig{
			MaxTokensPerMessage: 2000,
		},
		Providers: types.ProvidersConfig{
			Qwen: types.QwenConfig{
				BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
				Model:   "qwen-plus",
			},
			Ark: types.ArkConfig{
				BaseURL: "https://ark.cn-beijing.volces.com/api/v3",
			},
			Claude: types.ClaudeConfig{
				Model: "claude-sonnet-4-20250514",
			},
			RAG: types.RAGConfig{
				URLPrefix: "https://dashscope.aliyuncs.com/api/v1/apps/",
				URLSuffix: "/completion",
			},
			Speech: types.SpeechConfig{
				TokenURL: "https://aip.baidubce.com/oauth/2.0/token",
				TTSURL:   "https://aip.baidubce.com/rpc/2.0/tts/v1",
			},
		},
		Queue: types.QueueConfig{
			Topic:     "chat.messages",
			Consumers: 2,
		},
		Log: types.LogConfig{
			Level: "INFO",
		},
	}
}

// Load builds the configuration: defaults, then the config file if present,
// then environment overrides (highest priority).
func Load(path string) (*types.Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Cache.MaxActiveSessions <= 0 {
		return nil, fmt.Errorf("cache.maxActiveSessions must be positive, got %d", cfg.Cache.MaxActiveSessions)
	}
	if cfg.Stream.TickMillis <= 0 || cfg.Stream.TimeoutTicks <= 0 {
		return nil, fmt.Errorf("stream tick settings must be positive")
	}

	return cfg, nil
}

// loadFile merges a single JSONC config file into cfg.
func loadFile(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Strip JSONC comments, then resolve {env:VAR} placeholders.
	data = jsonc.ToJSON(data)
	data = interpolate(data)

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR_NAME} placeholders with environment values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// applyEnvOverrides applies well-known environment variables on top of the
// file configuration.
func applyEnvOverrides(cfg *types.Config) {
	if v := os.Getenv("DASHSCOPE_API_KEY"); v != "" {
		cfg.Providers.Qwen.APIKey = v
		if cfg.Providers.RAG.APIKey == "" {
			cfg.Providers.RAG.APIKey = v
		}
	}
	if v := os.Getenv("ARK_API_KEY"); v != "" {
		cfg.Providers.Ark.APIKey = v
	}
	if v := os.Getenv("ARK_MODEL_ID"); v != "" {
		cfg.Providers.Ark.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Claude.APIKey = v
	}
	if v := os.Getenv("KNOWLEDGE_BASE_ID"); v != "" {
		cfg.Providers.RAG.KnowledgeBaseID = v
	}
	if v := os.Getenv("BAIDU_CLIENT_ID"); v != "" {
		cfg.Providers.Speech.ClientID = v
	}
	if v := os.Getenv("BAIDU_CLIENT_SECRET"); v != "" {
		cfg.Providers.Speech.ClientSecret = v
	}
	if v := os.Getenv("GOCHAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GOCHAT_DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("GOCHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
