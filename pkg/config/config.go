package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig     `envconfig:"SERVER"`
	Database   DatabaseConfig   `envconfig:"DB"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	JWT        JWTConfig        `envconfig:"JWT"`
	Embedding  EmbeddingConfig  `envconfig:"EMBEDDING"`
	Chunking   ChunkingConfig   `envconfig:"CHUNK"`
	Pipeline   PipelineConfig   `envconfig:"INDEX"`
	Recovery   RecoveryConfig   `envconfig:"RECOVERY"`
	Queue      QueueConfig      `envconfig:"QUEUE"`
	Enrichment EnrichmentConfig `envconfig:"ENRICHMENT"`
}

// ServerConfig holds server configuration. Bare names (PORT, HOST, ...) are
// accepted as fallbacks for the SERVER_ prefixed ones.
type ServerConfig struct {
	Port            string   `envconfig:"PORT" default:"8080"`
	Host            string   `envconfig:"HOST" default:"0.0.0.0"`
	Environment     string   `envconfig:"ENVIRONMENT" default:"development"`
	AllowedOrigins  []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout int      `envconfig:"SHUTDOWN_TIMEOUT" default:"10"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string `split_words:"true" default:"localhost"`
	Port        string `split_words:"true" default:"5432"`
	User        string `split_words:"true" default:"postgres"`
	Password    string `split_words:"true" default:"postgres"`
	Name        string `split_words:"true" default:"transcript_indexer"`
	SSLMode     string `envconfig:"SSLMODE" default:"disable"`
	MaxConns    int    `split_words:"true" default:"25"`
	MinConns    int    `split_words:"true" default:"5"`
	AutoMigrate bool   `split_words:"true" default:"false"`
	// MigrationsDir holds the sql-migrate files applied by AutoMigrate and cmd/migrate.
	MigrationsDir string        `split_words:"true" default:"migrations"`
	ConnectWait   time.Duration `split_words:"true" default:"30s"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `split_words:"true" default:"true"`
	Host     string `split_words:"true" default:"localhost"`
	Port     string `split_words:"true" default:"6379"`
	Password string `split_words:"true"`
	DB       int    `split_words:"true" default:"0"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	AccessSecret string        `split_words:"true" default:"your-access-secret-change-in-production"`
	AccessExpiry time.Duration `split_words:"true" default:"15m"`
	Issuer       string        `split_words:"true" default:"transcript-indexer"`
	// ServiceRole marks schedulers allowed to recover any user's tasks.
	ServiceRole string `split_words:"true" default:"service"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	// Provider is one of "openai", "langchain-openai" or "ollama".
	Provider   string        `split_words:"true" default:"openai"`
	APIKey     string        `envconfig:"OPENAI_API_KEY"`
	BaseURL    string        `split_words:"true" default:"https://api.openai.com/v1"`
	Model      string        `split_words:"true" default:"text-embedding-3-small"`
	Dimensions int           `split_words:"true" default:"1536"`
	BatchSize  int           `split_words:"true" default:"100"`
	Timeout    time.Duration `split_words:"true" default:"60s"`

	// RateLimit is requests per RateWindow across all replicas; 0 disables.
	RateLimit  int           `split_words:"true" default:"0"`
	RateWindow time.Duration `split_words:"true" default:"1m"`
}

// ChunkingConfig holds the primary path chunk sizes
type ChunkingConfig struct {
	TargetTokens  int    `split_words:"true" default:"400"`
	OverlapTokens int    `split_words:"true" default:"100"`
	MaxTokens     int    `split_words:"true" default:"1200"`
	Tokenizer     string `split_words:"true" default:"heuristic"`
	Encoding      string `split_words:"true" default:"cl100k_base"`
}

// PipelineConfig holds primary path tuning
type PipelineConfig struct {
	InsertBatchSize int           `split_words:"true" default:"50"`
	Budget          time.Duration `split_words:"true" default:"5m"`
}

// RecoveryConfig holds dead-letter recovery tuning
type RecoveryConfig struct {
	TargetTokens    int           `split_words:"true" default:"500"`
	OverlapTokens   int           `split_words:"true" default:"100"`
	MaxTokens       int           `split_words:"true" default:"1200"`
	InsertBatchSize int           `split_words:"true" default:"5"`
	Budget          time.Duration `split_words:"true" default:"120s"`
	Cooldown        time.Duration `split_words:"true" default:"1h"`
	MaxCooldown     time.Duration `split_words:"true" default:"24h"`
	LockTTL         time.Duration `envconfig:"LOCK_TTL" default:"10m"`
}

// QueueConfig holds retry scheduling for queue tasks
type QueueConfig struct {
	MaxAttempts    int           `split_words:"true" default:"3"`
	BaseDelay      time.Duration `split_words:"true" default:"30s"`
	Multiplier     float64       `split_words:"true" default:"3"`
	MaxDelay       time.Duration `split_words:"true" default:"1h"`
	DrainBatchSize int           `split_words:"true" default:"10"`
	DrainBudget    time.Duration `split_words:"true" default:"90s"`
}

// EnrichmentConfig holds the downstream enrichment trigger configuration
type EnrichmentConfig struct {
	Enabled  bool   `split_words:"true" default:"true"`
	QueueKey string `split_words:"true" default:"chunk-enrichment"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "langchain-openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Embedding.Provider)
		}
	case "ollama":
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize < 1 || c.Embedding.BatchSize > 100 {
		return fmt.Errorf("EMBEDDING_BATCH_SIZE must be in 1..100, got %d", c.Embedding.BatchSize)
	}
	if err := validateChunking(c.Chunking.TargetTokens, c.Chunking.OverlapTokens, c.Chunking.MaxTokens); err != nil {
		return fmt.Errorf("CHUNK_*: %w", err)
	}
	if err := validateChunking(c.Recovery.TargetTokens, c.Recovery.OverlapTokens, c.Recovery.MaxTokens); err != nil {
		return fmt.Errorf("RECOVERY_*: %w", err)
	}
	if c.Pipeline.InsertBatchSize < 1 || c.Recovery.InsertBatchSize < 1 {
		return fmt.Errorf("insert batch sizes must be positive")
	}
	if c.Recovery.Budget >= c.Pipeline.Budget {
		return fmt.Errorf("RECOVERY_BUDGET (%s) must be stricter than INDEX_BUDGET (%s)", c.Recovery.Budget, c.Pipeline.Budget)
	}
	if c.Recovery.LockTTL < 2*c.Recovery.Budget {
		return fmt.Errorf("RECOVERY_LOCK_TTL (%s) must be at least twice RECOVERY_BUDGET", c.Recovery.LockTTL)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func validateChunking(target, overlap, max int) error {
	if target <= 0 || max < target || overlap < 0 || overlap >= target {
		return fmt.Errorf("need 0 <= overlap < target <= max, got %d/%d/%d", overlap, target, max)
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}
