// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity Provider（セッション検証・ユーザーメタデータ取得）
	AuthBaseURL        string
	AuthServiceRoleKey string
	AuthAnonKey        string

	// Object Storage
	StorageBaseURL string
	StorageBucket  string

	// Embedding
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int

	// 画像フェッチ
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Rate Limit（req/min単位）
	RateLimitGeneral    int
	RateLimitContribute int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// AUTH_BASE_URLとSTORAGE_BASE_URLは同一のプラットフォームURLを指すことが
// 多いため、STORAGE_BASE_URL未設定時はAUTH_BASE_URLを流用する。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthBaseURL = strings.TrimSuffix(os.Getenv("AUTH_BASE_URL"), "/")
	if cfg.AuthBaseURL == "" {
		missing = append(missing, "AUTH_BASE_URL")
	}

	cfg.AuthServiceRoleKey = os.Getenv("AUTH_SERVICE_ROLE_KEY")
	if cfg.AuthServiceRoleKey == "" {
		missing = append(missing, "AUTH_SERVICE_ROLE_KEY")
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AuthAnonKey = getEnvString("AUTH_ANON_KEY", cfg.AuthServiceRoleKey)
	cfg.StorageBaseURL = strings.TrimSuffix(getEnvString("STORAGE_BASE_URL", cfg.AuthBaseURL), "/")
	cfg.StorageBucket = getEnvString("STORAGE_BUCKET", "images")
	cfg.EmbeddingModel = getEnvString("EMBEDDING_MODEL", "text-embedding-3-small")
	cfg.EmbeddingDimensions = getEnvInt("EMBEDDING_DIMENSIONS", 1536)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 10*1024*1024)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitContribute = getEnvInt("RATE_LIMIT_CONTRIBUTE", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
