package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	AWS         AWSConfig         `yaml:"aws"`
	Queues      QueueConfig       `yaml:"queues"`
	Storage     StorageConfig     `yaml:"storage"`
	Webhooks    WebhookConfig     `yaml:"webhooks"`
	Redis       RedisConfig       `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	FileService FileServiceConfig `yaml:"file_service"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the relational store settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the configured connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// AWSConfig holds shared AWS client settings
type AWSConfig struct {
	Region      string `yaml:"region"`
	Profile     string `yaml:"profile"`      // Empty string uses default credential chain (IAM role on ECS)
	EndpointURL string `yaml:"endpoint_url"` // Non-empty points SDK clients at a local stack
}

// GetProfile returns the AWS profile, with environment variable override
func (c AWSConfig) GetProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// QueueConfig names the four SQS queues between pipeline stages
type QueueConfig struct {
	ValidatedURL    string `yaml:"validated_url"`
	EnrichedURL     string `yaml:"enriched_url"`
	SendURL         string `yaml:"send_url"`
	ResumeBufferURL string `yaml:"resume_buffer_url"`
}

// StorageConfig holds object storage settings
type StorageConfig struct {
	Bucket                 string `yaml:"bucket"`
	CertificateTemplateKey string `yaml:"certificate_template_key"`
	CacheDir               string `yaml:"cache_dir"`
}

// WebhookConfig holds the webhook definition store settings
type WebhookConfig struct {
	DynamoDBTable string `yaml:"dynamodb_table"`
}

// RedisConfig holds the delivery dedup store settings
type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	DedupTTLMinutes int    `yaml:"dedup_ttl_minutes"`
	Enabled         bool   `yaml:"enabled"`
}

// DedupTTL returns the dedup key lifetime as a duration
func (c RedisConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLMinutes) * time.Minute
}

// AuthConfig holds the token verification settings
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	JWKSURL string `yaml:"jwks_url"`
}

// FileServiceConfig holds the file and identity service endpoints
type FileServiceConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c FileServiceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PipelineConfig holds worker tuning and the auto-resume guard settings
type PipelineConfig struct {
	UpserterWorkers    int    `yaml:"upserter_workers"`
	ItemCreatorWorkers int    `yaml:"item_creator_workers"`
	SenderWorkers      int    `yaml:"sender_workers"`
	ResumeHealthURL    string `yaml:"resume_health_url"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 30
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "ap-northeast-1"
	}
	if cfg.Redis.DedupTTLMinutes == 0 {
		cfg.Redis.DedupTTLMinutes = 60
	}
	if cfg.FileService.TimeoutSeconds == 0 {
		cfg.FileService.TimeoutSeconds = 30
	}
	if cfg.Storage.CacheDir == "" {
		cfg.Storage.CacheDir = os.TempDir()
	}
	if cfg.Pipeline.UpserterWorkers == 0 {
		cfg.Pipeline.UpserterWorkers = 2
	}
	if cfg.Pipeline.ItemCreatorWorkers == 0 {
		cfg.Pipeline.ItemCreatorWorkers = 2
	}
	if cfg.Pipeline.SenderWorkers == 0 {
		cfg.Pipeline.SenderWorkers = 4
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ENDPOINT_URL"); v != "" {
		cfg.AWS.EndpointURL = v
	}
	if v := os.Getenv("VALIDATED_QUEUE_URL"); v != "" {
		cfg.Queues.ValidatedURL = v
	}
	if v := os.Getenv("ENRICHED_QUEUE_URL"); v != "" {
		cfg.Queues.EnrichedURL = v
	}
	if v := os.Getenv("SEND_QUEUE_URL"); v != "" {
		cfg.Queues.SendURL = v
	}
	if v := os.Getenv("RESUME_BUFFER_QUEUE_URL"); v != "" {
		cfg.Queues.ResumeBufferURL = v
	}
	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("WEBHOOK_TABLE"); v != "" {
		cfg.Webhooks.DynamoDBTable = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.Auth.JWKSURL = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("FILE_SERVICE_URL"); v != "" {
		cfg.FileService.BaseURL = v
	}
	if v := os.Getenv("RESUME_HEALTH_URL"); v != "" {
		cfg.Pipeline.ResumeHealthURL = v
	}

	return cfg, nil
}
