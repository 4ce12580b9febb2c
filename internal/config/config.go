package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the discovery service.
type Config struct {
	DB        DBConfig
	Redis     RedisConfig
	TMDB      TMDBConfig
	Cache     CacheConfig
	Search    SearchConfig
	Batch     BatchConfig
	Recommend RecommendConfig
	Port      string
}

// DBConfig holds PostgreSQL configuration.
type DBConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	SSLRootCert string
}

// DSN returns the PostgreSQL connection string.
func (d DBConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
	if d.SSLRootCert != "" {
		dsn += fmt.Sprintf(" sslrootcert=%s", d.SSLRootCert)
	}
	return dsn
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TMDBConfig holds TMDB API client configuration.
type TMDBConfig struct {
	APIKey     string
	BaseURL    string
	KeyFile    string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// CacheConfig holds coalescer and offline cache configuration.
type CacheConfig struct {
	DefaultTTL    time.Duration
	Dir           string
	MaxEntries    int
	DiskRetention time.Duration
}

// SearchConfig holds search debouncer configuration.
type SearchConfig struct {
	DebounceInterval time.Duration
}

// BatchConfig holds batch request manager configuration.
type BatchConfig struct {
	ChunkSize  int
	ChunkPause time.Duration
}

// RecommendConfig holds preference scorer configuration.
type RecommendConfig struct {
	ProfileFile    string
	MaxHistorySize int
	Retention      time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	maxRetries, _ := strconv.Atoi(getEnv("TMDB_MAX_RETRIES", "3"))
	cacheEntries, _ := strconv.Atoi(getEnv("CACHE_MAX_ENTRIES", "200"))
	chunkSize, _ := strconv.Atoi(getEnv("BATCH_CHUNK_SIZE", "4"))
	historySize, _ := strconv.Atoi(getEnv("RECOMMEND_MAX_HISTORY", "500"))

	cfg := &Config{
		DB: DBConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        dbPort,
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "movie_discovery"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			SSLRootCert: getEnv("DB_SSLROOTCERT", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		TMDB: TMDBConfig{
			APIKey:     getEnv("TMDB_API_KEY", ""),
			BaseURL:    getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
			KeyFile:    getEnv("TMDB_KEY_FILE", "data/tmdb_key.json"),
			MaxRetries: maxRetries,
			BaseDelay:  getDuration("TMDB_RETRY_BASE_DELAY", time.Second),
			MaxDelay:   getDuration("TMDB_RETRY_MAX_DELAY", 30*time.Second),
		},
		Cache: CacheConfig{
			DefaultTTL:    getDuration("COALESCE_DEFAULT_TTL", 10*time.Minute),
			Dir:           getEnv("CACHE_DIR", "data/cache"),
			MaxEntries:    cacheEntries,
			DiskRetention: getDuration("CACHE_DISK_RETENTION", 7*24*time.Hour),
		},
		Search: SearchConfig{
			DebounceInterval: getDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),
		},
		Batch: BatchConfig{
			ChunkSize:  chunkSize,
			ChunkPause: getDuration("BATCH_CHUNK_PAUSE", 100*time.Millisecond),
		},
		Recommend: RecommendConfig{
			ProfileFile:    getEnv("RECOMMEND_PROFILE_FILE", "data/preferences.json"),
			MaxHistorySize: historySize,
			Retention:      getDuration("RECOMMEND_RETENTION", 90*24*time.Hour),
		},
		Port: getEnv("SERVER_PORT", "8080"),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
