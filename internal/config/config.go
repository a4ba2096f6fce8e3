// Package config provides unified configuration loading for the knowledge engine.
// Supports .env files, YAML files and environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Retrieval modes accepted by the retriever.
const (
	ModeStructured = "structured"
	ModeSemantic   = "semantic"
	ModeHybrid     = "hybrid"
)

// Vector index backends.
const (
	IndexDatabase = "database"
	IndexMemory   = "memory"
)

// Config holds all configuration for the knowledge engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Semantic      SemanticConfig      `yaml:"semantic"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	CORSOrigins      []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds relational store settings.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres or sqlite
	// DSN overrides the discrete connection fields when set.
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	Tables          TablesConfig  `yaml:"tables"`
}

// TablesConfig names the (schema-qualified) tables the engines read from.
type TablesConfig struct {
	Products      string `yaml:"products"`
	Cities        string `yaml:"cities"`
	Tours         string `yaml:"tours"`
	Bookings      string `yaml:"bookings"`
	BookingItems  string `yaml:"booking_items"`
	Chunks        string `yaml:"chunks"`
	Documents     string `yaml:"documents"`
	MatchFunction string `yaml:"match_function"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// RetrievalConfig holds structured retrieval and facade settings.
type RetrievalConfig struct {
	Mode                  string        `yaml:"mode"`
	SemanticOptional      bool          `yaml:"semantic_optional"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	CacheResults          bool          `yaml:"cache_results"`
	ProductLimit          int           `yaml:"product_limit"`
	CityLimit             int           `yaml:"city_limit"`
	StatsLimit            int           `yaml:"stats_limit"`
	ListLimit             int           `yaml:"list_limit"`
	MaxContentChars       int           `yaml:"max_content_chars"`
	ShortDescriptionChars int           `yaml:"short_description_chars"`
	LongDescriptionChars  int           `yaml:"long_description_chars"`
	CityDescriptionChars  int           `yaml:"city_description_chars"`
}

// SemanticConfig holds semantic search thresholds and limits.
type SemanticConfig struct {
	Threshold         float64 `yaml:"threshold"`
	MatchCount        int     `yaml:"match_count"`
	PerDocumentLimit  int     `yaml:"per_document_limit"`
	TopK              int     `yaml:"top_k"`
	ScanLimit         int     `yaml:"scan_limit"`
	ScanTopK          int     `yaml:"scan_top_k"`
	CityFallbackLimit int     `yaml:"city_fallback_limit"`
	// Index is "database" (match function) or "memory" (preloaded brute force).
	Index        string `yaml:"index"`
	PreloadLimit int    `yaml:"preload_limit"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	ServiceName    string `yaml:"service_name"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load reads configuration from an optional .env file, a YAML file and
// environment overrides, in that order.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			CORSOrigins:      []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Port:            25060,
			SSLMode:         "require",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 30 * time.Second,
			Tables:          DefaultTables(),
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "kb:",
			},
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			Timeout:   30 * time.Second,
			CacheTTL:  24 * time.Hour,
		},
		Retrieval: RetrievalConfig{
			Mode:                  ModeHybrid,
			SemanticOptional:      true,
			RequestTimeout:        15 * time.Second,
			CacheResults:          true,
			ProductLimit:          10,
			CityLimit:             5,
			StatsLimit:            5,
			ListLimit:             50,
			MaxContentChars:       1000,
			ShortDescriptionChars: 300,
			LongDescriptionChars:  800,
			CityDescriptionChars:  500,
		},
		Semantic: SemanticConfig{
			Threshold:         0.4,
			MatchCount:        50,
			PerDocumentLimit:  2,
			TopK:              10,
			ScanLimit:         100,
			ScanTopK:          5,
			CityFallbackLimit: 10,
			Index:             IndexDatabase,
			PreloadLimit:      10000,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			ServiceName:    "knowledge-engine",
			MetricsEnabled: true,
		},
	}
}

// DefaultTables returns the production table layout.
func DefaultTables() TablesConfig {
	return TablesConfig{
		Products:      "main.products_product",
		Cities:        "public.cities_city",
		Tours:         "main.tours_tour",
		Bookings:      "main.bookings_booking",
		BookingItems:  "main.bookings_bookingitem",
		Chunks:        "knowledge.chunks",
		Documents:     "knowledge.documents",
		MatchFunction: "knowledge.match_chunks",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Retrieval.Mode {
	case ModeStructured, ModeSemantic, ModeHybrid:
	default:
		return fmt.Errorf("invalid retrieval mode: %s", c.Retrieval.Mode)
	}

	if c.Semantic.Index != IndexDatabase && c.Semantic.Index != IndexMemory {
		return fmt.Errorf("invalid semantic index: %s", c.Semantic.Index)
	}
	if c.Semantic.Index == IndexMemory && c.Semantic.PreloadLimit <= 0 {
		return fmt.Errorf("semantic preload_limit must be positive")
	}

	if c.Semantic.Threshold < 0 || c.Semantic.Threshold > 1 {
		return fmt.Errorf("semantic threshold must be between 0 and 1")
	}

	if c.Retrieval.MaxContentChars < 1 {
		return fmt.Errorf("max_content_chars must be positive")
	}

	if c.Semantic.PerDocumentLimit < 1 || c.Semantic.TopK < 1 {
		return fmt.Errorf("per_document_limit and top_k must be positive")
	}

	return nil
}

// DatabaseDSN returns the connection string for the configured driver.
func (c *Config) DatabaseDSN() string {
	db := c.Database
	if db.DSN != "" || db.Driver == "sqlite" {
		return db.DSN
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   db.Host + ":" + strconv.Itoa(db.Port),
		Path:   "/" + db.Name,
	}
	if db.User != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	q := u.Query()
	q.Set("sslmode", db.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.DSN = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.DSN = v
		}
	}

	if v := os.Getenv("DO_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DO_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DO_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DO_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DO_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DO_DB_SSL"); v == "false" {
		cfg.Database.SSLMode = "disable"
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("RETRIEVAL_MODE"); v != "" {
		cfg.Retrieval.Mode = v
	}

	if v := os.Getenv("SEMANTIC_INDEX"); v != "" {
		cfg.Semantic.Index = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
