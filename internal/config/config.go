package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	ServerPort  string `mapstructure:"SERVER_PORT"`

	CrawlWorkers    int `mapstructure:"CRAWL_WORKERS"`
	CrawlMaxPages   int `mapstructure:"CRAWL_MAX_PAGES"`
	CrawlMaxQueue   int `mapstructure:"CRAWL_MAX_QUEUE"`
	NavTimeoutSec   int `mapstructure:"NAV_TIMEOUT"`
	RecentTTLHours  int `mapstructure:"RECENT_TTL_HOURS"`
	EnrichTimeout   int `mapstructure:"ENRICH_TIMEOUT"`
	RetryMaxRetries int `mapstructure:"RETRY_MAX_RETRIES"`

	LLMEndpoint string `mapstructure:"LLM_ENDPOINT"`
	LLMModel    string `mapstructure:"LLM_MODEL"`
	LLMAPIKey   string `mapstructure:"LLM_API_KEY"`

	ImageEndpoint string `mapstructure:"IMAGE_ENDPOINT"`
	ImageAPIKey   string `mapstructure:"IMAGE_API_KEY"`

	TTSEndpoint    string `mapstructure:"TTS_ENDPOINT"`
	TTSAPIKey      string `mapstructure:"TTS_API_KEY"`
	TTSVoice       string `mapstructure:"TTS_VOICE"`
	TTSCallbackURL string `mapstructure:"TTS_CALLBACK_URL"`

	MinioEndpoint   string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey  string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey  string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket     string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL     bool   `mapstructure:"MINIO_USE_SSL"`
	MinioPublicBase string `mapstructure:"MINIO_PUBLIC_BASE"`

	Locales        string `mapstructure:"LOCALES"`
	ScrapeSchedule string `mapstructure:"SCRAPE_SCHEDULE"`
	DigestSchedule string `mapstructure:"DIGEST_SCHEDULE"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables in production.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("CRAWL_WORKERS", 4)
	viper.SetDefault("CRAWL_MAX_PAGES", 50)
	viper.SetDefault("CRAWL_MAX_QUEUE", 100)
	viper.SetDefault("NAV_TIMEOUT", 30) // in seconds
	viper.SetDefault("RECENT_TTL_HOURS", 48)
	viper.SetDefault("ENRICH_TIMEOUT", 120) // in seconds
	viper.SetDefault("RETRY_MAX_RETRIES", 3)
	viper.SetDefault("TTS_VOICE", "narrator-en")
	viper.SetDefault("MINIO_BUCKET", "article-images")
	viper.SetDefault("LOCALES", "")
	viper.SetDefault("SCRAPE_SCHEDULE", "0 6 * * *") // daily at 06:00
	viper.SetDefault("DIGEST_SCHEDULE", "0 8 * * 0") // Sundays at 08:00

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NavTimeout returns the page navigation timeout as a duration.
func (c *Config) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// EnrichmentTimeout bounds a single external enrichment call.
func (c *Config) EnrichmentTimeout() time.Duration {
	return time.Duration(c.EnrichTimeout) * time.Second
}

// RecentTTL is how long a scraped URL stays in the redis skip cache.
func (c *Config) RecentTTL() time.Duration {
	return time.Duration(c.RecentTTLHours) * time.Hour
}

// TargetLocales parses the comma-separated LOCALES value.
func (c *Config) TargetLocales() []string {
	if strings.TrimSpace(c.Locales) == "" {
		return nil
	}
	parts := strings.Split(c.Locales, ",")
	locales := make([]string, 0, len(parts))
	for _, p := range parts {
		if l := strings.TrimSpace(p); l != "" {
			locales = append(locales, l)
		}
	}
	return locales
}
