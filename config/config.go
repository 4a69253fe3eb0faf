package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the clipsync service
type Config struct {
	// Server configuration
	Port int    `json:"port"`
	URL  string `json:"url"`

	// Storage configuration
	StorageType          string        `json:"storage_type"` // "memory", "mongodb", "dynamodb"
	MongoDBURI           string        `json:"mongodb_uri"`
	MongoDBDatabase      string        `json:"mongodb_database"`
	MongoDBCollection    string        `json:"mongodb_collection"`
	DynamoDBTable        string        `json:"dynamodb_table"`
	DynamoDBRegion       string        `json:"dynamodb_region"`
	DynamoDBPollInterval time.Duration `json:"dynamodb_poll_interval"`

	// Blob upload configuration
	BlobBackend  string `json:"blob_backend"` // "filesystem", "s3"
	DataDir      string `json:"data_dir"`
	S3Bucket     string `json:"s3_bucket"`
	S3Prefix     string `json:"s3_prefix"`
	S3PublicURL  string `json:"s3_public_url"`
	MaxImageSize int64  `json:"max_image_size"`

	// Sync configuration
	HistoryLimit         int           `json:"history_limit"`
	ClientSweepCap       int           `json:"client_sweep_cap"`
	ClientSweepInterval  time.Duration `json:"client_sweep_interval"`
	BackendSweepCap      int           `json:"backend_sweep_cap"`
	BackendSweepInterval time.Duration `json:"backend_sweep_interval"`
	RefilterInterval     time.Duration `json:"refilter_interval"`
	CaptureInterval      time.Duration `json:"capture_interval"`

	// Identity and rate limiting
	JWTSecret      string        `json:"-"`
	JWTExpiry      time.Duration `json:"jwt_expiry"`
	RateLimitRPS   float64       `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`

	// Operational configuration
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
	Device   string `json:"device"`

	// Lambda is set when running inside AWS Lambda, where only /tmp is writable
	Lambda bool `json:"lambda"`

	Version    string `json:"version"`
	BuildTime  string `json:"build_time"`
	CommitHash string `json:"commit_hash"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:                 8080,
		StorageType:          "memory",
		MongoDBURI:           "mongodb://localhost:27017",
		MongoDBDatabase:      "clipsync",
		MongoDBCollection:    "clips",
		DynamoDBTable:        "clipsync-clips",
		DynamoDBPollInterval: 2 * time.Second,
		BlobBackend:          "filesystem",
		DataDir:              "./data",
		MaxImageSize:         5 * 1024 * 1024, // 5MB
		HistoryLimit:         10,
		ClientSweepCap:       50,
		ClientSweepInterval:  5 * time.Minute,
		BackendSweepCap:      400,
		BackendSweepInterval: 10 * time.Minute,
		RefilterInterval:     time.Second,
		CaptureInterval:      time.Second,
		JWTExpiry:            30 * 24 * time.Hour,
		RateLimitRPS:         10,
		RateLimitBurst:       20,
		LogLevel:             "info",
		Device:               "Agent",
	}
}

// LambdaDataDir is the default blob directory inside AWS Lambda
const LambdaDataDir = "/tmp/clipsync"

// Load builds the configuration from defaults, CLIPSYNC_* environment variables (a .env file
// in the working directory is loaded first if present) and the given command-line args.
// Flags win over environment variables.
func Load(args []string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		cfg.Lambda = true
		cfg.DataDir = LambdaDataDir
	}
	fs := flag.NewFlagSet("clipsync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.IntVar(&cfg.Port, "port", getEnvInt("CLIPSYNC_PORT", cfg.Port), "Port to listen on")
	fs.StringVar(&cfg.URL, "url", getEnvString("CLIPSYNC_URL", cfg.URL), "Public base URL of the service")

	fs.StringVar(&cfg.StorageType, "storage-type", getEnvString("CLIPSYNC_STORAGE_TYPE", cfg.StorageType), "Storage backend: memory, mongodb, dynamodb")
	fs.StringVar(&cfg.MongoDBURI, "mongodb-uri", getEnvString("CLIPSYNC_MONGODB_URI", cfg.MongoDBURI), "MongoDB connection URI")
	fs.StringVar(&cfg.MongoDBDatabase, "mongodb-database", getEnvString("CLIPSYNC_MONGODB_DATABASE", cfg.MongoDBDatabase), "MongoDB database name")
	fs.StringVar(&cfg.MongoDBCollection, "mongodb-collection", getEnvString("CLIPSYNC_MONGODB_COLLECTION", cfg.MongoDBCollection), "MongoDB collection name")
	fs.StringVar(&cfg.DynamoDBTable, "dynamodb-table", getEnvString("CLIPSYNC_DYNAMODB_TABLE", cfg.DynamoDBTable), "DynamoDB table name")
	fs.StringVar(&cfg.DynamoDBRegion, "dynamodb-region", getEnvString("CLIPSYNC_DYNAMODB_REGION", cfg.DynamoDBRegion), "DynamoDB region (default from AWS config)")
	fs.DurationVar(&cfg.DynamoDBPollInterval, "dynamodb-poll", getEnvDuration("CLIPSYNC_DYNAMODB_POLL", cfg.DynamoDBPollInterval), "DynamoDB live subscription poll interval")

	fs.StringVar(&cfg.BlobBackend, "blob-backend", getEnvString("CLIPSYNC_BLOB_BACKEND", cfg.BlobBackend), "Image blob backend: filesystem, s3")
	fs.StringVar(&cfg.DataDir, "data-dir", getEnvString("CLIPSYNC_DATA_DIR", cfg.DataDir), "Directory for filesystem blobs")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", getEnvString("CLIPSYNC_S3_BUCKET", cfg.S3Bucket), "S3 bucket for image blobs")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", getEnvString("CLIPSYNC_S3_PREFIX", cfg.S3Prefix), "S3 key prefix for image blobs")
	fs.StringVar(&cfg.S3PublicURL, "s3-public-url", getEnvString("CLIPSYNC_S3_PUBLIC_URL", cfg.S3PublicURL), "Public base URL of the S3 bucket")
	fs.Int64Var(&cfg.MaxImageSize, "max-image-size", getEnvInt64("CLIPSYNC_MAX_IMAGE_SIZE", cfg.MaxImageSize), "Maximum image size in bytes")

	fs.IntVar(&cfg.HistoryLimit, "history-limit", getEnvInt("CLIPSYNC_HISTORY_LIMIT", cfg.HistoryLimit), "Number of live clips delivered to clients")
	fs.IntVar(&cfg.ClientSweepCap, "client-sweep-cap", getEnvInt("CLIPSYNC_CLIENT_SWEEP_CAP", cfg.ClientSweepCap), "Maximum clips deleted per client sweep")
	fs.DurationVar(&cfg.ClientSweepInterval, "client-sweep-interval", getEnvDuration("CLIPSYNC_CLIENT_SWEEP_INTERVAL", cfg.ClientSweepInterval), "Client sweep interval")
	fs.IntVar(&cfg.BackendSweepCap, "backend-sweep-cap", getEnvInt("CLIPSYNC_BACKEND_SWEEP_CAP", cfg.BackendSweepCap), "Maximum clips deleted per partition by the backend sweep")
	fs.DurationVar(&cfg.BackendSweepInterval, "backend-sweep-interval", getEnvDuration("CLIPSYNC_BACKEND_SWEEP_INTERVAL", cfg.BackendSweepInterval), "Backend sweep interval")
	fs.DurationVar(&cfg.RefilterInterval, "refilter-interval", getEnvDuration("CLIPSYNC_REFILTER_INTERVAL", cfg.RefilterInterval), "Local expiry refilter interval")
	fs.DurationVar(&cfg.CaptureInterval, "capture-interval", getEnvDuration("CLIPSYNC_CAPTURE_INTERVAL", cfg.CaptureInterval), "Clipboard poll interval")

	fs.StringVar(&cfg.JWTSecret, "jwt-secret", getEnvString("CLIPSYNC_JWT_SECRET", cfg.JWTSecret), "HMAC secret for identity tokens")
	fs.DurationVar(&cfg.JWTExpiry, "jwt-expiry", getEnvDuration("CLIPSYNC_JWT_EXPIRY", cfg.JWTExpiry), "Lifetime of issued identity tokens")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", getEnvFloat("CLIPSYNC_RATE_LIMIT_RPS", cfg.RateLimitRPS), "Requests per second per client")
	fs.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", getEnvInt("CLIPSYNC_RATE_LIMIT_BURST", cfg.RateLimitBurst), "Rate limit burst per client")

	fs.StringVar(&cfg.LogLevel, "log-level", getEnvString("CLIPSYNC_LOG_LEVEL", cfg.LogLevel), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", getEnvString("CLIPSYNC_LOG_FILE", cfg.LogFile), "Path to log file")
	fs.StringVar(&cfg.Device, "device", getEnvString("CLIPSYNC_DEVICE", cfg.Device), "Origin label written with every clip")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.StorageType {
	case "memory", "mongodb":
	case "dynamodb":
		if c.DynamoDBTable == "" {
			return fmt.Errorf("dynamodb table cannot be empty")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (valid: memory, mongodb, dynamodb)", c.StorageType)
	}

	switch c.BlobBackend {
	case "filesystem":
		if c.DataDir == "" {
			return fmt.Errorf("data dir cannot be empty")
		}
		if c.Lambda && !underTmp(c.DataDir) {
			return fmt.Errorf("data dir %s is read-only in AWS Lambda; use a directory under /tmp or the s3 blob backend", c.DataDir)
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 bucket is required for the s3 blob backend")
		}
	default:
		return fmt.Errorf("invalid blob backend: %s (valid: filesystem, s3)", c.BlobBackend)
	}

	if c.MaxImageSize < 1024 || c.MaxImageSize > 100*1024*1024 {
		return fmt.Errorf("max image size must be between 1KB and 100MB: %d", c.MaxImageSize)
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("history limit must be positive: %d", c.HistoryLimit)
	}
	if c.ClientSweepCap < 1 || c.BackendSweepCap < 1 {
		return fmt.Errorf("sweep caps must be positive: client=%d backend=%d", c.ClientSweepCap, c.BackendSweepCap)
	}

	for name, d := range map[string]time.Duration{
		"client sweep interval":  c.ClientSweepInterval,
		"backend sweep interval": c.BackendSweepInterval,
		"refilter interval":      c.RefilterInterval,
		"capture interval":       c.CaptureInterval,
		"dynamodb poll interval": c.DynamoDBPollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive: %v", name, d)
		}
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return fmt.Errorf("jwt secret must be at least 16 characters")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	return nil
}

// GetBaseURL returns the public base URL used in blob links
func (c *Config) GetBaseURL() string {
	if c.URL != "" {
		return strings.TrimRight(c.URL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func underTmp(dir string) bool {
	clean := filepath.Clean(dir)
	return clean == "/tmp" || strings.HasPrefix(clean, "/tmp/")
}
