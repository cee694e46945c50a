package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/socialdash/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitConnect int

	// Token Refresh
	TokenRefreshInterval      time.Duration
	TokenRefreshWindow        time.Duration
	TokenRefreshMaxConcurrent int
	TokenRefreshTimeout       time.Duration

	// Session Cleanup
	SessionCleanupInterval time.Duration

	// OAuthClients はトークンリフレッシュが可能なプラットフォームのOAuthクライアント設定。
	// キーはプラットフォーム識別子。
	OAuthClients map[string]OAuthClientConfig
}

// OAuthClientConfig はプラットフォームごとのOAuthクライアント設定。
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// LoadDotEnv は指定パスの .env ファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf(".envファイルの読み込みに失敗しました: %w", err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitConnect = getEnvInt("RATE_LIMIT_CONNECT", 10)
	cfg.TokenRefreshInterval = getEnvDuration("TOKEN_REFRESH_INTERVAL", 10*time.Minute)
	cfg.TokenRefreshWindow = getEnvDuration("TOKEN_REFRESH_WINDOW", time.Hour)
	cfg.TokenRefreshMaxConcurrent = getEnvInt("TOKEN_REFRESH_MAX_CONCURRENT", 5)
	cfg.TokenRefreshTimeout = getEnvDuration("TOKEN_REFRESH_TIMEOUT", 10*time.Second)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.OAuthClients = loadOAuthClients(model.KnownPlatforms)

	return cfg, nil
}

// loadOAuthClients は OAUTH_<PLATFORM>_CLIENT_ID / _CLIENT_SECRET / _TOKEN_URL を読み込む。
// 3つすべてが設定されたプラットフォームのみ返す。
func loadOAuthClients(platforms []string) map[string]OAuthClientConfig {
	clients := make(map[string]OAuthClientConfig)
	for _, platform := range platforms {
		prefix := "OAUTH_" + strings.ToUpper(platform) + "_"
		c := OAuthClientConfig{
			ClientID:     os.Getenv(prefix + "CLIENT_ID"),
			ClientSecret: os.Getenv(prefix + "CLIENT_SECRET"),
			TokenURL:     os.Getenv(prefix + "TOKEN_URL"),
		}
		if c.ClientID == "" || c.ClientSecret == "" || c.TokenURL == "" {
			continue
		}
		clients[platform] = c
	}
	return clients
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
	if err != nil || i <= 0 {
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
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
