package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Naming schemes accepted by NAMING_SCHEME.
const (
	NamingUUID      = "uuid"
	NamingTimestamp = "timestamp"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServiceName  string
	Host         string
	Port         string
	UploadDir    string
	PublicDir    string
	UploadField  string
	NamingScheme string
	MaxUploadMB  int
	ChunkSizeKB  int

	// OpenTelemetry configuration
	OTelEndpoint string

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// Catalog configuration
	DBDriver string
	DBDSN    string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka configuration
	KafkaBrokers string
	KafkaTopic   string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to read .env file: %v", err)
	}

	config := &Config{
		// Service defaults
		ServiceName:  getEnv("SERVICE_NAME", "videodrop"),
		Host:         getEnv("HOST", "0.0.0.0"),
		Port:         getEnv("PORT", "3000"),
		UploadDir:    getEnv("UPLOAD_DIR", "uploads"),
		PublicDir:    getEnv("PUBLIC_DIR", "public"),
		UploadField:  getEnv("UPLOAD_FIELD", "video"),
		NamingScheme: getEnv("NAMING_SCHEME", NamingUUID),
		MaxUploadMB:  getEnvAsInt("MAX_UPLOAD_MB", 0),
		ChunkSizeKB:  getEnvAsInt("CHUNK_SIZE_KB", 1024),

		OTelEndpoint: getEnv("OTEL_ENDPOINT", ""),

		// MinIO defaults
		MinIOEndpoint:   getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucketName: getEnv("MINIO_BUCKET_NAME", "videodrop"),
		MinIOUseSSL:     getEnvAsBool("MINIO_USE_SSL", false),

		// Catalog defaults
		DBDriver: getEnv("DB_DRIVER", "mysql"),
		DBDSN:    getEnv("DB_DSN", ""),

		// Redis defaults
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Kafka defaults
		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "video-uploads"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	switch c.NamingScheme {
	case NamingUUID, NamingTimestamp:
	default:
		return fmt.Errorf("unknown naming scheme %q", c.NamingScheme)
	}
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.DBDriver)
	}
	if c.ChunkSizeKB <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d KB", c.ChunkSizeKB)
	}
	if c.MaxUploadMB < 0 {
		return fmt.Errorf("max upload size must not be negative, got %d MB", c.MaxUploadMB)
	}
	if c.UploadField == "" {
		return fmt.Errorf("upload field name must not be empty")
	}
	return nil
}

// GetListenAddr returns the host:port the server binds to
func (c *Config) GetListenAddr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// GetPublicURL returns the URL announced in the startup log
func (c *Config) GetPublicURL() string {
	return "http://" + c.GetListenAddr()
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return net.JoinHostPort(c.RedisHost, c.RedisPort)
}

// GetChunkSizeBytes returns chunk size in bytes
func (c *Config) GetChunkSizeBytes() int64 {
	return int64(c.ChunkSizeKB) * 1024
}

// GetMaxUploadBytes returns the upload limit in bytes, 0 meaning unlimited
func (c *Config) GetMaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// Feature switches: an empty endpoint leaves the component out.
func (c *Config) TracingEnabled() bool { return c.OTelEndpoint != "" }
func (c *Config) MirrorEnabled() bool  { return c.MinIOEndpoint != "" }
func (c *Config) CatalogEnabled() bool { return c.DBDSN != "" }
func (c *Config) CacheEnabled() bool   { return c.RedisHost != "" }
func (c *Config) EventsEnabled() bool  { return c.KafkaBrokers != "" }

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
