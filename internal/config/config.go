package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストレージバックエンド種別
const (
	StorageFile    = "file"
	StorageLevelDB = "leveldb"
	StorageBadger  = "badger"
	StorageMemory  = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	APIBaseURL   string
	HTTPTimeout  time.Duration
	APIRateLimit float64 // req/sec
	APIRateBurst int

	// Storage
	DataDir        string
	StorageBackend string

	// Upload
	MaxUploadBytes    int64
	ThumbnailMaxBytes int64

	// Sync
	SyncInterval time.Duration

	// Cleanup
	LocalRetentionDays int
	CleanupInterval    time.Duration

	// Router
	AllowOffline bool

	// Logging
	LogLevel string

	// Server（ダッシュボードAPI）
	ServerPort        string
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 30*time.Second)
	cfg.APIRateLimit = getEnvFloat("API_RATE_LIMIT", 5)
	cfg.APIRateBurst = getEnvInt("API_RATE_BURST", 10)
	cfg.DataDir = getEnvString("DATA_DIR", defaultDataDir())
	cfg.StorageBackend = getEnvString("STORAGE_BACKEND", StorageFile)
	cfg.MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", 10<<20)
	cfg.ThumbnailMaxBytes = getEnvInt64("THUMBNAIL_MAX_BYTES", 256<<10)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", time.Minute)
	cfg.LocalRetentionDays = getEnvInt("LOCAL_RETENTION_DAYS", 180)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.AllowOffline = getEnvBool("ALLOW_OFFLINE", false)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8765")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// 範囲外の値は既定値に戻す
	if cfg.LocalRetentionDays < 0 {
		cfg.LocalRetentionDays = 180
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}

	switch cfg.StorageBackend {
	case StorageFile, StorageLevelDB, StorageBadger, StorageMemory:
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND: %q", cfg.StorageBackend)
	}

	return cfg, nil
}

// defaultDataDir はユーザー設定ディレクトリ配下の既定データディレクトリを返す。
func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".dermadash"
	}
	return dir + string(os.PathSeparator) + "dermadash"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
