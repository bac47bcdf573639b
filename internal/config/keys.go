package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "NOTELINK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ai.base_url", typ: kString, env: "NOTELINK_AI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.BaseURL },
	},
	{
		key: "ai.api_key", typ: kString, env: "NOTELINK_AI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.AI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.APIKey },
	},
	{
		key: "ai.embed_model", typ: kString, env: "NOTELINK_AI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.EmbedModel },
	},
	{
		key: "ai.extract_model", typ: kString, env: "NOTELINK_AI_EXTRACT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.ExtractModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.ExtractModel },
	},
	{
		key: "ai.timeout", typ: kString, env: "NOTELINK_AI_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.AI.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Timeout },
	},
	{
		key: "ai.rate_limit", typ: kInt, env: "NOTELINK_AI_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.AI.RateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.AI.RateLimit },
	},
	{
		key: "ai.rate_window", typ: kString, env: "NOTELINK_AI_RATE_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.AI.RateWindow = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.RateWindow },
	},
	{
		key: "storage.data_dir", typ: kString, env: "NOTELINK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "sync.debounce", typ: kString, env: "NOTELINK_SYNC_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Sync.Debounce = v.(string) },
		extract: func(cfg Config) any { return cfg.Sync.Debounce },
	},
	{
		key: "log.level", typ: kString, env: "NOTELINK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "auth.mcp_owner", typ: kString, env: "NOTELINK_MCP_OWNER",
		apply:   func(cfg *Config, v any) { cfg.Auth.MCPOwner = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.MCPOwner },
	},
	{
		key: "auth.tokens", typ: kString, env: "NOTELINK_AUTH_TOKENS",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.Tokens = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Tokens },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
