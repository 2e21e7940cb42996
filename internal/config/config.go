package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Source types understood by the retriever.
const (
	SourceTypeRSS    = "rss"
	SourceTypeGitHub = "github"
	SourceTypeReddit = "reddit"
)

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// SourceConfig describes one named news source.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	TokenEnv string `yaml:"token_env,omitempty"`
}

// RetrieverConfig holds fetch limits shared by all sources.
// InterSourceDelayMS is the pause after each source finishes: 0 or unset
// means the 500ms default and a negative value disables the pause.
type RetrieverConfig struct {
	UserAgent          string `yaml:"user_agent"`
	TimeoutSecs        int    `yaml:"timeout_secs"`
	InterSourceDelayMS int    `yaml:"inter_source_delay_ms"`
	FeedLimit          int    `yaml:"feed_limit"`
	APILimit           int    `yaml:"api_limit"`
	ContentMaxChars    int    `yaml:"content_max_chars"`
}

// Timeout returns the HTTP timeout as a duration.
func (r RetrieverConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSecs) * time.Second
}

// InterSourceDelay returns the pause between two sources, 0 when disabled.
func (r RetrieverConfig) InterSourceDelay() time.Duration {
	if r.InterSourceDelayMS < 0 {
		return 0
	}
	return time.Duration(r.InterSourceDelayMS) * time.Millisecond
}

// OpenAIEmbedderConfig holds configuration for the OpenAI embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// OllamaEmbedderConfig holds configuration for an OpenAI-compatible HTTP
// embeddings endpoint such as Ollama.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type         string                 `yaml:"type"`
	CacheTTLSecs int                    `yaml:"cache_ttl_secs"`
	OpenAI       *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Ollama       *OllamaEmbedderConfig  `yaml:"ollama,omitempty"`
	Hashing      *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string          `yaml:"type"`
	Collection string          `yaml:"collection"`
	SQLite     *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Qdrant     *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector   *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// SQLiteConfig places the embedded index on disk.
type SQLiteConfig struct {
	Dir string `yaml:"dir"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PGVectorConfig contains connection details for PostgreSQL with pgvector.
type PGVectorConfig struct {
	DSN string `yaml:"dsn"`
}

// LLMConfig configures the chat-completion endpoint.
type LLMConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SessionConfig bounds what an interactive session retrieves and shows.
type SessionConfig struct {
	TopK           int    `yaml:"top_k"`
	HistoryDisplay int    `yaml:"history_display"`
	UpdatesDisplay int    `yaml:"updates_display"`
	Style          string `yaml:"style"`
}

// MaintenanceConfig configures pruning and the watch schedule.
// MaxAgeDays 0 or unset means 7 days; a negative value turns pruning off
// unless prune is given --days.
type MaintenanceConfig struct {
	MaxAgeDays    int    `yaml:"max_age_days"`
	WatchSchedule string `yaml:"watch_schedule"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	Sources     []SourceConfig    `yaml:"sources"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Session     SessionConfig     `yaml:"session"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	defaults := cfg.Sources
	// Explicit sources replace the defaults rather than merging with them.
	cfg.Sources = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = defaults
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/technews/config.yaml.
// If neither exists, it writes defaults to ~/.config/technews/config.yaml and returns them.
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
	cfg := Default()
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

// Validate checks the parts of the config that cannot be defaulted.
func (c *AppConfig) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("no sources configured")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return errors.New("source without a name")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate source %q", s.Name)
		}
		seen[s.Name] = struct{}{}
		switch s.Type {
		case SourceTypeRSS, SourceTypeGitHub, SourceTypeReddit:
		default:
			return fmt.Errorf("source %q: unknown type %q", s.Name, s.Type)
		}
		if s.URL == "" && s.Type != SourceTypeGitHub {
			return fmt.Errorf("source %q: url is required", s.Name)
		}
	}
	return nil
}

// SourceNames lists the configured source names in config order.
func (c *AppConfig) SourceNames() []string {
	names := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		names[i] = s.Name
	}
	return names
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "technews", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		Log: LogConfig{Level: "info", Format: "text"},
		Sources: []SourceConfig{
			{Name: "hackernews", Type: SourceTypeRSS, URL: "https://hnrss.org/frontpage?count=20"},
			{Name: "techcrunch", Type: SourceTypeRSS, URL: "https://techcrunch.com/feed/"},
			{Name: "github_trending", Type: SourceTypeGitHub, URL: "https://api.github.com/", TokenEnv: "GITHUB_TOKEN"},
			{Name: "reddit_programming", Type: SourceTypeReddit, URL: "https://www.reddit.com/r/programming/hot.json?limit=20"},
		},
		Embedder:    EmbedderConfig{Type: "openai"},
		VectorStore: VectorStoreConfig{Type: "sqlite"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	r := &cfg.Retriever
	if r.UserAgent == "" {
		r.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if r.TimeoutSecs == 0 {
		r.TimeoutSecs = 30
	}
	if r.InterSourceDelayMS == 0 { // negative disables
		r.InterSourceDelayMS = 500
	}
	if r.FeedLimit == 0 {
		r.FeedLimit = 15
	}
	if r.APILimit == 0 {
		r.APILimit = 10
	}
	if r.ContentMaxChars == 0 {
		r.ContentMaxChars = 500
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.CacheTTLSecs == 0 {
		cfg.Embedder.CacheTTLSecs = 3600
	}
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		if cfg.Embedder.Ollama.BaseURL == "" {
			cfg.Embedder.Ollama.BaseURL = "http://localhost:11434/v1"
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "nomic-embed-text"
		}
		if cfg.Embedder.Ollama.TimeoutSecs == 0 {
			cfg.Embedder.Ollama.TimeoutSecs = 30
		}
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 384
		}
	}

	vs := &cfg.VectorStore
	if vs.Type == "" {
		vs.Type = "sqlite"
	}
	if vs.Collection == "" {
		vs.Collection = "tech_updates"
	}
	switch vs.Type {
	case "sqlite":
		if vs.SQLite == nil {
			vs.SQLite = &SQLiteConfig{}
		}
		if vs.SQLite.Dir == "" {
			vs.SQLite.Dir = "./data"
		}
	case "qdrant":
		if vs.Qdrant == nil {
			vs.Qdrant = &QdrantConfig{}
		}
		if vs.Qdrant.URL == "" {
			vs.Qdrant.URL = "http://localhost:6333"
		}
		if vs.Qdrant.TimeoutSecs == 0 {
			vs.Qdrant.TimeoutSecs = 15
		}
	case "pgvector":
		if vs.PGVector == nil {
			vs.PGVector = &PGVectorConfig{}
		}
		if vs.PGVector.DSN == "" {
			vs.PGVector.DSN = "postgres://localhost:5432/technews?sslmode=disable"
		}
	}

	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-3.5-turbo"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}

	if cfg.Session.TopK == 0 {
		cfg.Session.TopK = 5
	}
	if cfg.Session.HistoryDisplay == 0 {
		cfg.Session.HistoryDisplay = 5
	}
	if cfg.Session.UpdatesDisplay == 0 {
		cfg.Session.UpdatesDisplay = 10
	}
	if cfg.Session.Style == "" {
		cfg.Session.Style = "structured"
	}

	if cfg.Maintenance.MaxAgeDays == 0 { // negative disables
		cfg.Maintenance.MaxAgeDays = 7
	}
	if cfg.Maintenance.WatchSchedule == "" {
		cfg.Maintenance.WatchSchedule = "*/30 * * * *"
	}
}
