package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port           string
	PostgresDSN    string
	RedisAddr      string
	RedisPassword  string
	MongoURI       string
	MongoDB        string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	CORSOrigins    []string

	RateLimitLimit  int
	RateLimitWindow time.Duration
	RateLimitPrefix string

	LogLevel       string
	LogDevelopment bool
}

var defaults = map[string]any{
	"PORT":             "8080",
	"POSTGRES_DSN":     "",
	"REDIS_ADDR":       "redis:6379",
	"REDIS_PASSWORD":   "",
	"MONGO_URI":        "",
	"MONGO_DB":         "fitness_ai",
	"MINIO_ENDPOINT":   "",
	"MINIO_ACCESS_KEY": "",
	"MINIO_SECRET_KEY": "",
	"MINIO_BUCKET":     "avatars",
	"MINIO_USE_SSL":    false,
	"CORS_ORIGINS":     "http://localhost:5173,http://localhost:3000",
	"RATELIMIT_LIMIT":  3,
	"RATELIMIT_WINDOW": "1m",
	"RATELIMIT_PREFIX": "ratelimit:plans",
	"LOG_LEVEL":        "info",
	"LOG_DEVELOPMENT":  false,
}

// Load reads the process environment.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:            v.GetString("PORT"),
		PostgresDSN:     v.GetString("POSTGRES_DSN"),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		MongoURI:        v.GetString("MONGO_URI"),
		MongoDB:         v.GetString("MONGO_DB"),
		MinioEndpoint:   v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:  v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey:  v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:     v.GetString("MINIO_BUCKET"),
		MinioUseSSL:     v.GetBool("MINIO_USE_SSL"),
		CORSOrigins:     splitList(v.GetString("CORS_ORIGINS")),
		RateLimitLimit:  v.GetInt("RATELIMIT_LIMIT"),
		RateLimitWindow: v.GetDuration("RATELIMIT_WINDOW"),
		RateLimitPrefix: v.GetString("RATELIMIT_PREFIX"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogDevelopment:  v.GetBool("LOG_DEVELOPMENT"),
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	if c.RateLimitLimit <= 0 {
		errs = append(errs, errors.New("RATELIMIT_LIMIT must be positive"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATELIMIT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

// AnalyticsEnabled reports whether rate-limit decisions go to MongoDB.
func (c *Config) AnalyticsEnabled() bool { return c.MongoURI != "" }

// AvatarsEnabled reports whether profile images can be stored in MinIO.
func (c *Config) AvatarsEnabled() bool { return c.MinioEndpoint != "" }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
