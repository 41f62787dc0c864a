package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Policy corpus loaded at boot (optional).
	PolicyPath string

	// Embedding backend: tfidf, openai or gemini.
	Embedder string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey string
	GeminiModel  string

	// Chunking
	ChunkMaxTokens     int
	ChunkOverlapTokens int

	// Retrieval
	TopK          int
	MinSimilarity float64

	// Snapshot persistence (optional).
	IndexPath    string
	SnapshotKeep int

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	MaxConcurrentEmbed int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration
}

// fileConfig is the optional YAML overlay, applied on top of environment
// values when SPENDGUARD_CONFIG points at a file.
type fileConfig struct {
	Port               string   `yaml:"port"`
	PolicyPath         string   `yaml:"policy_path"`
	Embedder           string   `yaml:"embedder"`
	ChunkMaxTokens     *int     `yaml:"chunk_max_tokens"`
	ChunkOverlapTokens *int     `yaml:"chunk_overlap_tokens"`
	TopK               *int     `yaml:"top_k"`
	MinSimilarity      *float64 `yaml:"min_similarity"`
	IndexPath          string   `yaml:"index_path"`
	SnapshotKeep       *int     `yaml:"snapshot_keep"`
	WorkerCount        *int     `yaml:"worker_count"`
	MaxQueueSize       *int     `yaml:"max_queue_size"`
	MaxConcurrentEmbed *int     `yaml:"max_concurrent_embed"`
}

func Load() (Config, error) {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("SPENDGUARD_API_KEY"),

		PolicyPath: os.Getenv("SPENDGUARD_POLICY_PATH"),

		Embedder: envOr("SPENDGUARD_EMBEDDER", "tfidf"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   envOr("OPENAI_EMBED_MODEL", "text-embedding-3-small"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envOr("GEMINI_EMBED_MODEL", "text-embedding-004"),

		ChunkMaxTokens:     envInt("SPENDGUARD_CHUNK_MAX_TOKENS", 300),
		ChunkOverlapTokens: envInt("SPENDGUARD_CHUNK_OVERLAP_TOKENS", 40),

		TopK:          envInt("SPENDGUARD_TOP_K", 3),
		MinSimilarity: envFloat("SPENDGUARD_MIN_SIMILARITY", 0.3),

		IndexPath:    os.Getenv("SPENDGUARD_INDEX_PATH"),
		SnapshotKeep: envInt("SPENDGUARD_SNAPSHOT_KEEP", 3),

		WorkerCount:        envInt("WORKER_COUNT", 2),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 16),
		MaxConcurrentEmbed: envInt("MAX_CONCURRENT_EMBED", 4),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 20971520), // 20MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	if path := os.Getenv("SPENDGUARD_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if cfg.ChunkMaxTokens <= 0 {
		cfg.ChunkMaxTokens = 300
	}
	if cfg.ChunkOverlapTokens < 0 {
		cfg.ChunkOverlapTokens = 40
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.SnapshotKeep <= 0 {
		cfg.SnapshotKeep = 3
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 16
	}
	if cfg.MaxConcurrentEmbed <= 0 {
		cfg.MaxConcurrentEmbed = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20971520
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.PolicyPath != "" {
		c.PolicyPath = fc.PolicyPath
	}
	if fc.Embedder != "" {
		c.Embedder = fc.Embedder
	}
	if fc.ChunkMaxTokens != nil {
		c.ChunkMaxTokens = *fc.ChunkMaxTokens
	}
	if fc.ChunkOverlapTokens != nil {
		c.ChunkOverlapTokens = *fc.ChunkOverlapTokens
	}
	if fc.TopK != nil {
		c.TopK = *fc.TopK
	}
	if fc.MinSimilarity != nil {
		c.MinSimilarity = *fc.MinSimilarity
	}
	if fc.IndexPath != "" {
		c.IndexPath = fc.IndexPath
	}
	if fc.SnapshotKeep != nil {
		c.SnapshotKeep = *fc.SnapshotKeep
	}
	if fc.WorkerCount != nil {
		c.WorkerCount = *fc.WorkerCount
	}
	if fc.MaxQueueSize != nil {
		c.MaxQueueSize = *fc.MaxQueueSize
	}
	if fc.MaxConcurrentEmbed != nil {
		c.MaxConcurrentEmbed = *fc.MaxConcurrentEmbed
	}
	return nil
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("SPENDGUARD_API_KEY is required")
	}
	switch c.Embedder {
	case "tfidf":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when SPENDGUARD_EMBEDDER=openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when SPENDGUARD_EMBEDDER=gemini")
		}
	default:
		return fmt.Errorf("unknown embedder %q (want tfidf, openai or gemini)", c.Embedder)
	}
	if c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("chunk overlap (%d) must be smaller than max tokens (%d)", c.ChunkOverlapTokens, c.ChunkMaxTokens)
	}
	if c.MinSimilarity < -1 || c.MinSimilarity > 1 {
		return fmt.Errorf("min similarity %.2f outside [-1, 1]", c.MinSimilarity)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
