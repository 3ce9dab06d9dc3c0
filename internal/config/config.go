// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
	RequestTimeout time.Duration
	// RepairInterval is how often the post actor replays pending intents.
	// Zero disables background repair.
	RepairInterval time.Duration
	// RepairMinAge is how old an intent must be before it is replayed.
	RepairMinAge time.Duration
}

// DatabaseConfig holds document store settings
type DatabaseConfig struct {
	Type string // "mongodb" or "memory"
	URI  string
	Name string
}

// StorageConfig selects the object storage backend for post attachments
type StorageConfig struct {
	Provider           string // "local", "gcs" or "s3"
	LocalPath          string
	PublicBaseURL      string
	GCSProjectID       string
	GCSBucket          string
	GCSCredentialsFile string
	S3Region           string
	S3Bucket           string
}

type CacheConfig struct {
	RedisURL   string
	ProfileTTL time.Duration
}

// FeedConfig bounds the feed query
type FeedConfig struct {
	AllowListCap int
	Limit        int
}

// AIConfig configures the generative AI collaborator
type AIConfig struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	ImageModel      string
	VideoModel      string
	LiveModel       string
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	MaxVideoWait    time.Duration
}

type PushConfig struct {
	FirebaseCredentialsPath string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// CORSConfig lists the browser origins allowed to call the API and the
// request headers they may send. "*" in AllowedOrigins matches any origin.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Storage        *StorageConfig
	Cache          *CacheConfig
	Feed           *FeedConfig
	AI             *AIConfig
	Push           *PushConfig
	Auth     *AuthConfig
	CORS     *CORSConfig
	LogLevel string
	Debug    bool
}

// Development-only signing key, used when DEBUG=true and JWT_SECRET is unset.
const devJWTSecret = "thoth-development-secret"

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
		RequestTimeout: 5 * time.Second,
		RepairInterval: 30 * time.Second,
		RepairMinAge:   30 * time.Second,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type: "mongodb",
		URI:  "mongodb://localhost:27017",
		Name: "thoth",
	}
}

func DefaultFeedConfig() *FeedConfig {
	return &FeedConfig{
		AllowListCap: 30,
		Limit:        50,
	}
}

func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
}

func DefaultAIConfig() *AIConfig {
	return &AIConfig{
		BaseURL:         "https://generativelanguage.googleapis.com",
		ChatModel:       "gemini-2.5-flash",
		ImageModel:      "imagen-4.0-generate-001",
		VideoModel:      "veo-2.0-generate-001",
		LiveModel:       "gemini-2.0-flash-live-001",
		Timeout:         60 * time.Second,
		PollInterval:    10 * time.Second,
		MaxPollInterval: 60 * time.Second,
		MaxVideoWait:    10 * time.Minute,
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from the working directory or the project root
	for _, location := range []string{".env", "../../.env"} {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	serverConfig := DefaultConfig()
	serverConfig.Port = getIntOrDefault("PORT", serverConfig.Port)
	serverConfig.Host = getEnvOrDefault("HOST", serverConfig.Host)
	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}
	serverConfig.RequestTimeout = getDurationOrDefault("REQUEST_TIMEOUT", serverConfig.RequestTimeout)
	serverConfig.RepairInterval = getDurationOrDefault("REPAIR_INTERVAL", serverConfig.RepairInterval)
	serverConfig.RepairMinAge = getDurationOrDefault("REPAIR_MIN_AGE", serverConfig.RepairMinAge)

	dbConfig := DefaultDatabaseConfig()
	dbConfig.Type = getEnvOrDefault("DB_TYPE", dbConfig.Type)
	dbConfig.URI = getEnvOrDefault("MONGODB_URI", dbConfig.URI)
	dbConfig.Name = getEnvOrDefault("DB_NAME", dbConfig.Name)
	switch dbConfig.Type {
	case "mongodb", "memory":
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q (want mongodb or memory)", dbConfig.Type)
	}

	storageConfig := &StorageConfig{
		Provider:           getEnvOrDefault("STORAGE_PROVIDER", "local"),
		LocalPath:          getEnvOrDefault("STORAGE_LOCAL_PATH", "./uploads"),
		PublicBaseURL:      getEnvOrDefault("STORAGE_PUBLIC_BASE_URL", "http://localhost:8080/uploads"),
		GCSProjectID:       os.Getenv("GCS_PROJECT_ID"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
		S3Region:           getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
	}
	switch storageConfig.Provider {
	case "local":
	case "gcs":
		if storageConfig.GCSBucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET is required when STORAGE_PROVIDER is gcs")
		}
	case "s3":
		if storageConfig.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_PROVIDER is s3")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_PROVIDER %q", storageConfig.Provider)
	}

	cacheConfig := &CacheConfig{
		RedisURL:   os.Getenv("REDIS_URL"),
		ProfileTTL: getDurationOrDefault("PROFILE_CACHE_TTL", 5*time.Minute),
	}

	feedConfig := DefaultFeedConfig()
	feedConfig.AllowListCap = getIntOrDefault("FEED_ALLOW_LIST_CAP", feedConfig.AllowListCap)
	feedConfig.Limit = getIntOrDefault("FEED_LIMIT", feedConfig.Limit)

	aiConfig := DefaultAIConfig()
	aiConfig.APIKey = os.Getenv("GEMINI_API_KEY")
	aiConfig.BaseURL = getEnvOrDefault("GEMINI_BASE_URL", aiConfig.BaseURL)
	aiConfig.ChatModel = getEnvOrDefault("GEMINI_CHAT_MODEL", aiConfig.ChatModel)
	aiConfig.ImageModel = getEnvOrDefault("GEMINI_IMAGE_MODEL", aiConfig.ImageModel)
	aiConfig.VideoModel = getEnvOrDefault("GEMINI_VIDEO_MODEL", aiConfig.VideoModel)
	aiConfig.LiveModel = getEnvOrDefault("GEMINI_LIVE_MODEL", aiConfig.LiveModel)
	aiConfig.Timeout = getDurationOrDefault("AI_TIMEOUT", aiConfig.Timeout)
	aiConfig.PollInterval = getDurationOrDefault("VIDEO_POLL_INTERVAL", aiConfig.PollInterval)
	aiConfig.MaxPollInterval = getDurationOrDefault("VIDEO_MAX_POLL_INTERVAL", aiConfig.MaxPollInterval)
	aiConfig.MaxVideoWait = getDurationOrDefault("VIDEO_MAX_WAIT", aiConfig.MaxVideoWait)

	corsConfig := DefaultCORSConfig()
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		corsConfig.AllowedOrigins = strings.Split(origins, ",")
	}
	corsConfig.MaxAge = getDurationOrDefault("CORS_MAX_AGE", corsConfig.MaxAge)

	config := &Config{
		Server:   serverConfig,
		Database: dbConfig,
		Storage:  storageConfig,
		Cache:    cacheConfig,
		Feed:     feedConfig,
		AI:       aiConfig,
		Push: &PushConfig{
			FirebaseCredentialsPath: os.Getenv("FIREBASE_CREDENTIALS_PATH"),
		},
		Auth: &AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  getDurationOrDefault("TOKEN_TTL", 24*time.Hour),
		},
		CORS:     corsConfig,
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		Debug:    os.Getenv("DEBUG") == "true",
	}

	if config.Auth.JWTSecret == "" {
		if !config.Debug {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required unless DEBUG=true")
		}
		config.Auth.JWTSecret = devJWTSecret
	}

	return config, nil
}

// UsesDevSecret reports whether the development signing key is in effect.
func (c *Config) UsesDevSecret() bool {
	return c.Auth.JWTSecret == devJWTSecret
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
