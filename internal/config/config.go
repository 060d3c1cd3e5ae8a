// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
)

const EnvConfigPath = "CONFIG_PATH"

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	RateLimiter RateLimiterConfig
	Analysis    AnalysisConfig
	Fetcher     FetcherConfig
	Database    DatabaseConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port string
}

type StorageConfig struct {
	Type  string
	Redis RedisConfig
}

// RedisConfig aceita uma URL com credencial (REDIS_URL + REDIS_TOKEN) ou host/porta.
type RedisConfig struct {
	URL      string
	Token    string
	Host     string
	Port     int
	Password string
	DB       int
	// ServerClock usa o TIME do Redis como relógio da janela.
	ServerClock bool
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type RateLimiterConfig struct {
	General      domain.Bucket
	Privileged   domain.Bucket
	APIPrefix    string
	StoreTimeout time.Duration
	FailOpen     bool
	Analytics    bool
}

type AnalysisConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	RPS     float64
}

type FetcherConfig struct {
	ReaderURL string
	APIKey    string
	Timeout   time.Duration
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type LogConfig struct {
	Level  string
	Format string
}

// fileConfig mapeia o YAML opcional. Só os buckets vêm daqui; o resto é ambiente.
type fileConfig struct {
	RateLimit struct {
		General    *bucketFile `yaml:"general"`
		Privileged *bucketFile `yaml:"privileged"`
	} `yaml:"rate-limit"`
}

type bucketFile struct {
	Capacity int           `yaml:"capacity"`
	Window   time.Duration `yaml:"window"`
	Prefix   string        `yaml:"prefix"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	rateLimiterConfig, err := buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	analysisConfig, err := buildAnalysisConfig()
	if err != nil {
		return Config{}, err
	}

	fetcherTimeout, err := getDuration("JINA_READER_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{Port: getEnv("SERVER_PORT", "8080")},
		Storage: StorageConfig{
			Type:  strings.ToLower(getEnv("STORAGE_TYPE", "redis")),
			Redis: redisConfig,
		},
		RateLimiter: rateLimiterConfig,
		Analysis:    analysisConfig,
		Fetcher: FetcherConfig{
			ReaderURL: getEnv("JINA_READER_URL", "https://r.jina.ai"),
			APIKey:    os.Getenv("JINA_READER_API_KEY"),
			Timeout:   fetcherTimeout,
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
			DSN:    strings.TrimSpace(os.Getenv("DATABASE_DSN")),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage.Type {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if err := c.RateLimiter.General.Validate(); err != nil {
		return err
	}
	if err := c.RateLimiter.Privileged.Validate(); err != nil {
		return err
	}
	if c.RateLimiter.General.Prefix == c.RateLimiter.Privileged.Prefix {
		return errors.New("general and privileged rate limit prefixes must differ")
	}
	if !strings.HasPrefix(c.RateLimiter.APIPrefix, "/") {
		return fmt.Errorf("invalid RATE_LIMIT_API_PREFIX: %q", c.RateLimiter.APIPrefix)
	}
	return nil
}

func buildRedisConfig() (RedisConfig, error) {
	port, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	serverClock, err := getBool("RATE_LIMIT_SERVER_CLOCK", true)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		URL:         strings.TrimSpace(os.Getenv("REDIS_URL")),
		Token:       strings.TrimSpace(os.Getenv("REDIS_TOKEN")),
		Host:        getEnv("REDIS_HOST", "localhost"),
		Port:        port,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DB:          db,
		ServerClock: serverClock,
	}, nil
}

func buildRateLimiterConfig() (RateLimiterConfig, error) {
	general := domain.DefaultGeneralBucket()
	privileged := domain.DefaultPrivilegedBucket()

	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		var err error
		general, privileged, err = loadBucketsFile(path, general, privileged)
		if err != nil {
			return RateLimiterConfig{}, err
		}
	}

	storeTimeout, err := getDuration("RATE_LIMIT_STORE_TIMEOUT", 2*time.Second)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	failOpen, err := getBool("RATE_LIMIT_FAIL_OPEN", true)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	analytics, err := getBool("RATE_LIMIT_ANALYTICS", true)
	if err != nil {
		return RateLimiterConfig{}, err
	}

	return RateLimiterConfig{
		General:      general,
		Privileged:   privileged,
		APIPrefix:    getEnv("RATE_LIMIT_API_PREFIX", "/api/"),
		StoreTimeout: storeTimeout,
		FailOpen:     failOpen,
		Analytics:    analytics,
	}, nil
}

// loadBucketsFile sobrepõe os buckets padrão com os valores presentes no arquivo.
func loadBucketsFile(path string, general, privileged domain.Bucket) (domain.Bucket, domain.Bucket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return general, privileged, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &fc); errUnmarshal != nil {
		return general, privileged, fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	return mergeBucket(general, fc.RateLimit.General), mergeBucket(privileged, fc.RateLimit.Privileged), nil
}

func mergeBucket(base domain.Bucket, override *bucketFile) domain.Bucket {
	if override == nil {
		return base
	}
	if override.Capacity != 0 {
		base.Capacity = override.Capacity
	}
	if override.Window != 0 {
		base.Window = override.Window
	}
	if prefix := strings.TrimSpace(override.Prefix); prefix != "" {
		base.Prefix = prefix
	}
	return base
}

func buildAnalysisConfig() (AnalysisConfig, error) {
	timeout, err := getDuration("ANALYSIS_TIMEOUT", 60*time.Second)
	if err != nil {
		return AnalysisConfig{}, err
	}
	rps, err := strconv.ParseFloat(getEnv("ANALYSIS_RPS", "2"), 64)
	if err != nil {
		return AnalysisConfig{}, fmt.Errorf("invalid ANALYSIS_RPS: %w", err)
	}

	return AnalysisConfig{
		BaseURL: getEnv("DEEPSEEK_API_URL", "https://api.deepseek.com"),
		APIKey:  strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY")),
		Model:   getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		Timeout: timeout,
		RPS:     rps,
	}, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
