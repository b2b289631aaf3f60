// Package config loads docent configuration: defaults, then a TOML file,
// then DOCENT_* environment variables (env wins).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/docent-ai/docent/ingest"
)

type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Index     IndexConfig     `toml:"index"`
	Store     StoreConfig     `toml:"store"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Observer  ObserverConfig  `toml:"observer"`
}

type LLMConfig struct {
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

type EmbeddingConfig struct {
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
}

type IndexConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`         // sqlite file path
	PostgresURL string `toml:"postgres_url"` // pgx pool connection string
}

type StoreConfig struct {
	// ParentDir holds one JSON file per parent section.
	ParentDir string `toml:"parent_dir"`
	// CheckpointPath is the sqlite session checkpoint database.
	CheckpointPath string `toml:"checkpoint_path"`
}

type ChunkingConfig struct {
	MinParentSize int `toml:"min_parent_size"`
	MaxParentSize int `toml:"max_parent_size"`
	ChildSize     int `toml:"child_size"`
	ChildOverlap  int `toml:"child_overlap"`
}

type RetrievalConfig struct {
	TopK          int     `toml:"top_k"`
	MinScore      float64 `toml:"min_score"`
	KeywordWeight float64 `toml:"keyword_weight"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
	// Endpoint is the OTLP/HTTP trace collector (host:port).
	Endpoint string `toml:"endpoint"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Model:   "deepseek-chat",
			BaseURL: "https://api.deepseek.com/v1",
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BaseURL:    "https://api.openai.com/v1",
		},
		Index: IndexConfig{Backend: "sqlite", Path: "docent.db"},
		Store: StoreConfig{ParentDir: "parents", CheckpointPath: "sessions.db"},
		Chunking: ChunkingConfig{
			MinParentSize: ingest.DefaultMinParentSize,
			MaxParentSize: ingest.DefaultMaxParentSize,
			ChildSize:     ingest.DefaultChildSize,
			ChildOverlap:  ingest.DefaultChildOverlap,
		},
		Retrieval: RetrievalConfig{TopK: 5, MinScore: 0.7, KeywordWeight: 0.3},
		Observer:  ObserverConfig{Endpoint: "localhost:4318"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "docent.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("DOCENT_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("DOCENT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("DOCENT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("DOCENT_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("DOCENT_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("DOCENT_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("DOCENT_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("DOCENT_POSTGRES_URL"); v != "" {
		cfg.Index.PostgresURL = v
	}
	if v := os.Getenv("DOCENT_OBSERVER_ENDPOINT"); v != "" {
		cfg.Observer.Endpoint = v
	}
	if v := os.Getenv("DOCENT_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// The embedding endpoint often shares the chat provider's credentials.
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	return cfg
}

// Validate rejects configurations the system refuses to start with.
// A missing LLM credential is fatal at startup, never a degraded run.
func (c Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is required (set DOCENT_LLM_API_KEY or llm.api_key)")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding api key is required (set DOCENT_EMBEDDING_API_KEY or embedding.api_key)")
	}
	switch c.Index.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown index backend %q (want sqlite or postgres)", c.Index.Backend)
	}
	if c.Index.Backend == "postgres" && c.Index.PostgresURL == "" {
		return fmt.Errorf("postgres_url is required for the postgres index backend")
	}
	return nil
}
