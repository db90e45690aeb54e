package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"watchrag/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	Model             string  `yaml:"model" toml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size" toml:"batch_size"`
	Concurrency       int     `yaml:"concurrency" toml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// HashingEmbedderConfig configures the offline hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" toml:"dimension"`
}

// MiniLMEmbedderConfig configures the local MiniLM embedder.
type MiniLMEmbedderConfig struct {
	Model    string `yaml:"model" toml:"model"`
	ModelDir string `yaml:"model_dir" toml:"model_dir"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type" toml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty" toml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty" toml:"openai,omitempty"`
	MiniLM  *MiniLMEmbedderConfig  `yaml:"minilm,omitempty" toml:"minilm,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string          `yaml:"type" toml:"type"`
	MaxRetries uint64          `yaml:"max_retries" toml:"max_retries"`
	SQLite     *SQLiteConfig   `yaml:"sqlite,omitempty" toml:"sqlite,omitempty"`
	Qdrant     *QdrantConfig   `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
	PGVector   *PGVectorConfig `yaml:"pgvector,omitempty" toml:"pgvector,omitempty"`
}

// SQLiteConfig points at the local vector database file.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Collection  string `yaml:"collection" toml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// PGVectorConfig contains connection details for PostgreSQL with pgvector.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env" toml:"dsn_env"`
	Table  string `yaml:"table" toml:"table"`
}

// IngestConfig configures document ingestion.
type IngestConfig struct {
	BatchSize int `yaml:"batch_size" toml:"batch_size"`
}

// RetrievalConfig configures search and confidence calibration.
type RetrievalConfig struct {
	TopK        int     `yaml:"top_k" toml:"top_k"`
	ScaleFactor float64 `yaml:"scale_factor" toml:"scale_factor"`
}

// GeneratorConfig configures the chat-completion model.
type GeneratorConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	Model             string  `yaml:"model" toml:"model"`
	Persona           string  `yaml:"persona,omitempty" toml:"persona,omitempty"`
	Template          string  `yaml:"template,omitempty" toml:"template,omitempty"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries        uint64  `yaml:"max_retries" toml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

// SMTPConfig configures alert mail delivery.
type SMTPConfig struct {
	Host         string `yaml:"host" toml:"host"`
	Port         int    `yaml:"port" toml:"port"`
	Username     string `yaml:"username" toml:"username"`
	PasswordEnv  string `yaml:"password_env" toml:"password_env"`
	From         string `yaml:"from" toml:"from"`
	RecipientEnv string `yaml:"recipient_env" toml:"recipient_env"`
}

// AlertConfig configures refusal detection and delivery.
type AlertConfig struct {
	Notifier  string      `yaml:"notifier" toml:"notifier"`
	Threshold float64     `yaml:"threshold" toml:"threshold"`
	Phrases   []string    `yaml:"phrases" toml:"phrases"`
	QueueSize int         `yaml:"queue_size" toml:"queue_size"`
	SMTP      *SMTPConfig `yaml:"smtp,omitempty" toml:"smtp,omitempty"`
}

// AuditConfig points at the audit database.
type AuditConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AnswerConfig bounds a single question/answer cycle.
type AnswerConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	Fallback    string `yaml:"fallback" toml:"fallback"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator" toml:"generator"`
	Alert       AlertConfig       `yaml:"alert" toml:"alert"`
	Audit       AuditConfig       `yaml:"audit" toml:"audit"`
	Answer      AnswerConfig      `yaml:"answer" toml:"answer"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// DefaultFallback is returned to the customer when answering fails.
const DefaultFallback = "Lo siento, tuve un problema interno al procesar tu solicitud."

// Load reads a config from a specified path. Files ending in .toml are
// decoded as TOML, anything else as YAML. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml and ./config.toml first, then
// ~/.config/watchrag/config.yaml. If none exists, it writes defaults to
// ~/.config/watchrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, cwdPath := range []string{"config.yaml", "config.toml"} {
		if _, err := os.Stat(cwdPath); err == nil {
			cfg, err := Load(cwdPath)
			return cfg, cwdPath, err
		}
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
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects values the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	var problems []string
	if c.Ingest.BatchSize <= 0 {
		problems = append(problems, "ingest.batch_size must be positive")
	}
	if c.Retrieval.TopK <= 0 {
		problems = append(problems, "retrieval.top_k must be positive")
	}
	if c.Retrieval.ScaleFactor <= 0 {
		problems = append(problems, "retrieval.scale_factor must be positive")
	}
	if c.Alert.Threshold < 0 || c.Alert.Threshold > 1 {
		problems = append(problems, "alert.threshold must be within [0, 1]")
	}
	if c.Answer.TimeoutSecs <= 0 {
		problems = append(problems, "answer.timeout_secs must be positive")
	}
	switch c.Embedder.Type {
	case "hashing", "openai", "minilm":
	default:
		problems = append(problems, fmt.Sprintf("unknown embedder %q", c.Embedder.Type))
	}
	switch c.VectorStore.Type {
	case "memory", "sqlite":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			problems = append(problems, "vector_store.qdrant.url is required")
		}
	case "pgvector":
		if c.VectorStore.PGVector == nil {
			problems = append(problems, "vector_store.pgvector section is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown vector store %q", c.VectorStore.Type))
	}
	switch c.Alert.Notifier {
	case "log":
	case "smtp":
		if c.Alert.SMTP == nil || c.Alert.SMTP.Host == "" {
			problems = append(problems, "alert.smtp.host is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown alert notifier %q", c.Alert.Notifier))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// AnswerTimeout returns the bound on one question/answer cycle.
func (c *AppConfig) AnswerTimeout() time.Duration {
	return time.Duration(c.Answer.TimeoutSecs) * time.Second
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "watchrag", "config.yaml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "watchrag")
}

func defaultConfig() *AppConfig {
	dataDir := defaultDataDir()
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing", Hashing: &HashingEmbedderConfig{Dimension: 512}},
		VectorStore: VectorStoreConfig{Type: "sqlite", MaxRetries: 3, SQLite: &SQLiteConfig{Path: filepath.Join(dataDir, "vectors.db")}},
		Ingest:      IngestConfig{BatchSize: 500},
		Retrieval:   RetrievalConfig{TopK: 3, ScaleFactor: 2.0},
		Generator: GeneratorConfig{
			BaseURL:     "https://api.deepseek.com",
			APIKeyEnv:   "DEEPSEEK_API_KEY",
			Model:       "deepseek-chat",
			TimeoutSecs: 60,
			MaxRetries:  2,
		},
		Alert: AlertConfig{
			Notifier:  "log",
			Threshold: 0.60,
			Phrases:   []string{"no tengo información", "no encuentro", "lo siento", "no sé", "disculpa"},
			QueueSize: 64,
		},
		Audit:  AuditConfig{Path: filepath.Join(dataDir, "audit.db")},
		Answer: AnswerConfig{TimeoutSecs: 90, Fallback: DefaultFallback},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Type == "sqlite" && (cfg.VectorStore.SQLite == nil || cfg.VectorStore.SQLite.Path == "") {
		cfg.VectorStore.SQLite = &SQLiteConfig{Path: filepath.Join(defaultDataDir(), "vectors.db")}
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "watchrag"
	}
	if cfg.VectorStore.Type == "pgvector" && cfg.VectorStore.PGVector != nil && cfg.VectorStore.PGVector.DSNEnv == "" {
		cfg.VectorStore.PGVector.DSNEnv = "DATABASE_URL"
	}
	if cfg.Alert.Notifier == "" {
		cfg.Alert.Notifier = "log"
	}
	if cfg.Alert.SMTP != nil && cfg.Alert.SMTP.RecipientEnv == "" {
		cfg.Alert.SMTP.RecipientEnv = "CORREO"
	}
	if cfg.Answer.Fallback == "" {
		cfg.Answer.Fallback = DefaultFallback
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(defaultDataDir(), "audit.db")
	}
}
