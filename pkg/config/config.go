// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, SQLite, Redis, Kafka, Search, Lexical,
// Semantic, Autocomplete, Cache, LLM, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	SQLite       SQLiteConfig       `yaml:"sqlite"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Corpus       CorpusConfig       `yaml:"corpus"`
	Search       SearchConfig       `yaml:"search"`
	Lexical      LexicalConfig      `yaml:"lexical"`
	Semantic     SemanticConfig     `yaml:"semantic"`
	Fulltext     FulltextConfig     `yaml:"fulltext"`
	Autocomplete AutocompleteConfig `yaml:"autocomplete"`
	Cache        CacheConfig        `yaml:"cache"`
	LLM          LLMConfig          `yaml:"llm"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	CORS         CORSConfig         `yaml:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig points at the embedded database holding the corpus and,
// unless Postgres is selected, the autocomplete items.
type SQLiteConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busyTimeout"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// CorpusConfig locates the raw documents loaded by the indexer.
type CorpusConfig struct {
	DataDir    string   `yaml:"dataDir"`
	Extensions []string `yaml:"extensions"`
}

// SearchConfig controls fusion weights and request limits.
type SearchConfig struct {
	MethodWeights      map[string]float64 `yaml:"methodWeights"`
	DefaultAggregation string             `yaml:"defaultAggregation"`
	RRFK               float64            `yaml:"rrfK"`
	CascadeThreshold   float64            `yaml:"cascadeThreshold"`
	CascadeFallback    int                `yaml:"cascadeFallback"`
	DefaultK           int                `yaml:"defaultK"`
	MaxResults         int                `yaml:"maxResults"`
	ProviderTimeout    time.Duration      `yaml:"providerTimeout"`
}

// LexicalConfig controls the BM25-style scorer.
type LexicalConfig struct {
	IndexPath string  `yaml:"indexPath"`
	K1        float64 `yaml:"k1"`
	B         float64 `yaml:"b"`
}

// SemanticConfig controls the embedding provider and its vector index.
type SemanticConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BaseURL        string        `yaml:"baseUrl"`
	Token          string        `yaml:"token"`
	Model          string        `yaml:"model"`
	ChunkSize      int           `yaml:"chunkSize"`
	ChunkOverlap   int           `yaml:"chunkOverlap"`
	IndexPath      string        `yaml:"indexPath"`
	M              int           `yaml:"m"`
	EfSearch       int           `yaml:"efSearch"`
	EmbedCacheSize int           `yaml:"embedCacheSize"`
	BatchSize      int           `yaml:"batchSize"`
	Workers        int           `yaml:"workers"`
	Timeout        time.Duration `yaml:"timeout"`
}

// FulltextConfig controls the bleve full-text index.
type FulltextConfig struct {
	Enabled   bool   `yaml:"enabled"`
	IndexPath string `yaml:"indexPath"`
}

// AutocompleteConfig controls suggestion building and ranking.
type AutocompleteConfig struct {
	Backend          string  `yaml:"backend"`
	Limit            int     `yaml:"limit"`
	MaxPhraseLength  int     `yaml:"maxPhraseLength"`
	TopWords         int     `yaml:"topWords"`
	WordThreshold    float64 `yaml:"wordThreshold"`
	PhraseThreshold  float64 `yaml:"phraseThreshold"`
	DocNameThreshold float64 `yaml:"docNameThreshold"`
	SalienceWeight   float64 `yaml:"salienceWeight"`
	ClickWeight      float64 `yaml:"clickWeight"`
	DocNameWeight    float64 `yaml:"docNameWeight"`
}

// CacheConfig selects the fused-response cache backend.
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	BadgerPath string        `yaml:"badgerPath"`
	TTL        time.Duration `yaml:"ttl"`
}

// LLMConfig controls AI answer synthesis.
type LLMConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"baseUrl"`
	Token        string        `yaml:"token"`
	Model        string        `yaml:"model"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"maxTokens"`
	ContextChars int           `yaml:"contextChars"`
	Timeout      time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// Validate rejects settings the search path cannot run with.
func (c *Config) Validate() error {
	if c.Lexical.K1 < 0 || c.Lexical.B < 0 || c.Lexical.B > 1 {
		return fmt.Errorf("lexical: k1 must be >= 0 and b in [0,1], got k1=%v b=%v", c.Lexical.K1, c.Lexical.B)
	}
	if c.Search.RRFK <= 0 {
		return fmt.Errorf("search: rrfK must be positive, got %v", c.Search.RRFK)
	}
	for method, w := range c.Search.MethodWeights {
		if w < 0 {
			return fmt.Errorf("search: weight for %q must not be negative", method)
		}
	}
	if c.Semantic.ChunkOverlap >= c.Semantic.ChunkSize {
		return fmt.Errorf("semantic: chunkOverlap %d must be smaller than chunkSize %d",
			c.Semantic.ChunkOverlap, c.Semantic.ChunkSize)
	}
	switch c.Autocomplete.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("autocomplete: unknown backend %q", c.Autocomplete.Backend)
	}
	switch c.Cache.Backend {
	case "redis", "badger", "none":
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}
	return nil
}

// DefaultMethodWeights is the per-method fusion weight table.
func DefaultMethodWeights() map[string]float64 {
	return map[string]float64{
		"fulltext": 0.3,
		"bm25":     0.4,
		"openai":   0.6,
		"tfidf":    0.15,
		"st_1":     0.2,
		"st_2":     0.1,
		"st_3":     0.1,
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  45 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "fusionsearch",
			User:            "fusionsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path:        "data/fusion.db",
			BusyTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "fusionsearch-analytics",
			Topics: KafkaTopics{
				AnalyticsEvents: "search-analytics",
			},
		},
		Corpus: CorpusConfig{
			DataDir:    "data/documents",
			Extensions: []string{".txt", ".md"},
		},
		Search: SearchConfig{
			MethodWeights:      DefaultMethodWeights(),
			DefaultAggregation: "linear",
			RRFK:               60,
			CascadeThreshold:   0.65,
			CascadeFallback:    5,
			DefaultK:           5,
			MaxResults:         10,
			ProviderTimeout:    10 * time.Second,
		},
		Lexical: LexicalConfig{
			IndexPath: "data/bm25.idx",
			K1:        1.5,
			B:         0.75,
		},
		Semantic: SemanticConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "text-embedding-3-small",
			ChunkSize:      2000,
			ChunkOverlap:   20,
			IndexPath:      "data/semantic",
			M:              16,
			EfSearch:       20,
			EmbedCacheSize: 1024,
			BatchSize:      32,
			Workers:        4,
			Timeout:        15 * time.Second,
		},
		Fulltext: FulltextConfig{
			Enabled:   true,
			IndexPath: "data/fulltext.bleve",
		},
		Autocomplete: AutocompleteConfig{
			Backend:          "sqlite",
			Limit:            10,
			MaxPhraseLength:  5,
			TopWords:         20,
			WordThreshold:    0.01,
			PhraseThreshold:  0.02,
			DocNameThreshold: 0.005,
			SalienceWeight:   0.3,
			ClickWeight:      0.3,
			DocNameWeight:    0.4,
		},
		Cache: CacheConfig{
			Backend:    "badger",
			BadgerPath: "data/cache",
			TTL:        24 * time.Hour,
		},
		LLM: LLMConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-3.5-turbo",
			Temperature:  0.2,
			MaxTokens:    1000,
			ContextChars: 2000,
			Timeout:      30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"http://localhost:3000"},
		},
	}
}

// applyEnvOverrides reads FS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FS_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("FS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("FS_CORPUS_DIR"); v != "" {
		cfg.Corpus.DataDir = v
	}
	if v := os.Getenv("FS_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Semantic.Token == "" {
			cfg.Semantic.Token = v
			cfg.Semantic.Enabled = true
		}
		if cfg.LLM.Token == "" {
			cfg.LLM.Token = v
			cfg.LLM.Enabled = true
		}
	}
	if v := os.Getenv("FS_EMBEDDING_URL"); v != "" {
		cfg.Semantic.BaseURL = v
	}
	if v := os.Getenv("FS_LLM_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("FS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
