package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Redis       RedisConfig               `json:"redis"`
	Index       IndexConfig               `json:"index"`
	Retrieval   RetrievalConfig           `json:"retrieval"`
	Session     SessionConfig             `json:"session"`
	Ingest      IngestConfig              `json:"ingest"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases"`
}

type BasicConfig struct {
	ServerAddress string   `json:"server_address"`
	CORSOrigins   []string `json:"cors_origins"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// IndexConfig describes the embedded vector index and the embedding function
// feeding it. Dimension must match the embedding model output.
type IndexConfig struct {
	Dimension         int    `json:"dimension"`
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	EmbeddingAPIKey   string `json:"embedding_api_key"`
}

type RetrievalConfig struct {
	TopK   int `json:"top_k"`
	FetchK int `json:"fetch_k"`
	// ScoreThreshold left unset defaults to 0.3; an explicit 0 disables the
	// relevance cut-off.
	ScoreThreshold *float64 `json:"score_threshold"`
	AnswerLanguage string   `json:"answer_language"`
}

type SessionConfig struct {
	TTLSeconds int `json:"ttl_seconds"`
}

type IngestConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = 384
	}
	if cfg.Index.EmbeddingProvider == "" {
		cfg.Index.EmbeddingProvider = "hash"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.FetchK == 0 {
		cfg.Retrieval.FetchK = 8
	}
	if cfg.Retrieval.ScoreThreshold == nil {
		threshold := 0.3
		cfg.Retrieval.ScoreThreshold = &threshold
	}
	if cfg.Retrieval.AnswerLanguage == "" {
		cfg.Retrieval.AnswerLanguage = "Arabic"
	}
	if cfg.Session.TTLSeconds == 0 {
		cfg.Session.TTLSeconds = 86400
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1500
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 300
	}
}
