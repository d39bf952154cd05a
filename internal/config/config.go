package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AIConfig selects the completion and embedding models as "provider:model" identifiers.
type AIConfig struct {
	ModelName      string `yaml:"model_name"`
	EmbeddingModel string `yaml:"embedding_model"`
	// BaseURL and EmbeddingBaseURL override the default endpoint of OpenAI-compatible providers.
	BaseURL          string  `yaml:"base_url,omitempty"`
	EmbeddingBaseURL string  `yaml:"embedding_base_url,omitempty"`
	Temperature      float64 `yaml:"temperature,omitempty"`
	TimeoutSecs      int     `yaml:"timeout_secs"`
}

// AgentConfig configures the grounded responder.
type AgentConfig struct {
	Name           string `yaml:"name"`
	Curriculum     string `yaml:"curriculum"`
	Instruction    string `yaml:"instruction,omitempty"`
	DeclineMessage string `yaml:"decline_message"`
	MaxSteps       int    `yaml:"max_steps"`
	Stream         bool   `yaml:"stream"`
}

// RetrievalConfig configures the retriever.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Table    string          `yaml:"table"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
	Hybrid   *HybridConfig   `yaml:"hybrid,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
}

// PostgresConfig contains connection details for a pgvector-enabled database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the lib/pq keyword/value connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// HybridConfig configures the embedded vector + full-text store.
type HybridConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress,omitempty"`
	// RRFConstant is the k in 1/(rank+k).
	RRFConstant int `yaml:"rrf_constant"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type      string `yaml:"type"`
	MaxTokens int    `yaml:"max_tokens"`
	Encoding  string `yaml:"encoding"`
	BatchSize int    `yaml:"batch_size"`

	// Used by the sentence chunker only.
	SentencesPerChunk int `yaml:"sentences_per_chunk,omitempty"`
	OverlapSentences  int `yaml:"overlap_sentences,omitempty"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// ServerConfig configures the chat page.
type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Title string `yaml:"title"`
	// SessionTTL is how long an idle page session keeps its store handle.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	AI          AIConfig          `yaml:"ai"`
	Agent       AgentConfig       `yaml:"agent"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// ${VAR} and $VAR references are expanded from the environment before parsing.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*AppConfig, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/syllabiq/config.yaml.
// If neither exists, it writes defaults to ~/.config/syllabiq/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the store selection.
func (c *AppConfig) Validate() error {
	switch c.VectorStore.Type {
	case "pgvector", "hybrid", "qdrant", "memory":
	default:
		return fmt.Errorf("unknown vector store: %q", c.VectorStore.Type)
	}
	if c.AI.ModelName == "" {
		return errors.New("ai.model_name is required")
	}
	if c.AI.EmbeddingModel == "" {
		return errors.New("ai.embedding_model is required")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "syllabiq", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		AI: AIConfig{
			ModelName:      "groq:llama-3.1-8b-instant",
			EmbeddingModel: "gemini:text-embedding-004",
		},
		Agent: AgentConfig{
			Name:       "SyllabiQ",
			Curriculum: "KTU B.Tech CSE",
			Stream:     true,
		},
		VectorStore: VectorStoreConfig{Type: "pgvector"},
		Chunker:     ChunkerConfig{Type: "hybrid"},
		Summarizer:  SummarizerConfig{Type: "frequency"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.AI.TimeoutSecs == 0 {
		cfg.AI.TimeoutSecs = 60
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "SyllabiQ"
	}
	if cfg.Agent.DeclineMessage == "" {
		cfg.Agent.DeclineMessage = "I'm sorry, but I couldn't find anything about that in the course material, so I can't answer it."
	}
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 6
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.VectorStore.Table == "" {
		cfg.VectorStore.Table = "engineering_notes"
	}
	switch cfg.VectorStore.Type {
	case "pgvector":
		if cfg.VectorStore.Postgres == nil {
			cfg.VectorStore.Postgres = &PostgresConfig{}
		}
		pg := cfg.VectorStore.Postgres
		if pg.Host == "" {
			pg.Host = "localhost"
		}
		if pg.Port == 0 {
			pg.Port = 5432
		}
		if pg.User == "" {
			pg.User = "postgres"
		}
		if pg.Password == "" {
			pg.Password = "password"
		}
		if pg.Database == "" {
			pg.Database = "vectordb"
		}
		if pg.SSLMode == "" {
			pg.SSLMode = "disable"
		}
	case "hybrid":
		if cfg.VectorStore.Hybrid == nil {
			cfg.VectorStore.Hybrid = &HybridConfig{}
		}
		if cfg.VectorStore.Hybrid.Path == "" {
			cfg.VectorStore.Hybrid.Path = "./syllabiq_data"
		}
		if cfg.VectorStore.Hybrid.RRFConstant == 0 {
			cfg.VectorStore.Hybrid.RRFConstant = 60
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.Host == "" {
			cfg.VectorStore.Qdrant.Host = "localhost"
		}
		if cfg.VectorStore.Qdrant.Port == 0 {
			cfg.VectorStore.Qdrant.Port = 6334
		}
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 256
	}
	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = "cl100k_base"
	}
	if cfg.Chunker.BatchSize == 0 {
		cfg.Chunker.BatchSize = 32
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8501"
	}
	if cfg.Server.SessionTTL == 0 {
		cfg.Server.SessionTTL = 30 * time.Minute
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = cfg.Agent.Name
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
