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

	// App
	AppName     string
	Environment string
	Production  bool
	FrontendURL string

	// Auth token
	AuthTokenSecret string
	AuthTokenTTL    time.Duration

	// Password
	PasswordPepper  string
	BcryptCost      int
	ResetTokenTTL   time.Duration
	ResetRetention  time.Duration
	CleanupInterval time.Duration

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
	GoogleEnabled      bool

	// SMTP
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
	SMTPFrom       string
	SMTPSecure     bool
	MailConfigured bool

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins  []string
	AllowVercelPreviews bool
}

const (
	defaultTokenTTLDays = 30
	defaultBcryptCost   = 10
	minBcryptCost       = 4
	maxBcryptCost       = 31
)

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	// 署名鍵は AUTH_TOKEN_SECRET を優先し、未設定なら SESSION_SECRET を使う。
	// 既定値は持たない。
	cfg.AuthTokenSecret = getEnvString("AUTH_TOKEN_SECRET", os.Getenv("SESSION_SECRET"))
	if cfg.AuthTokenSecret == "" {
		missing = append(missing, "AUTH_TOKEN_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppName = getEnvString("APP_NAME", "PlayNet")
	cfg.Environment = getEnvString("APP_ENV", "development")
	cfg.Production = strings.EqualFold(cfg.Environment, "production")
	cfg.FrontendURL = strings.TrimRight(getEnvString("FRONTEND_URL", "http://localhost:5173"), "/")

	ttlDays := getEnvInt("AUTH_TOKEN_TTL_DAYS", defaultTokenTTLDays)
	if ttlDays <= 0 {
		ttlDays = defaultTokenTTLDays
	}
	cfg.AuthTokenTTL = time.Duration(ttlDays) * 24 * time.Hour

	cfg.PasswordPepper = os.Getenv("PASSWORD_PEPPER")
	cfg.BcryptCost = getEnvInt("BCRYPT_SALT_ROUNDS", defaultBcryptCost)
	if cfg.BcryptCost < minBcryptCost || cfg.BcryptCost > maxBcryptCost {
		cfg.BcryptCost = defaultBcryptCost
	}
	cfg.ResetTokenTTL = getEnvDuration("RESET_TOKEN_TTL", time.Hour)
	cfg.ResetRetention = time.Duration(getEnvInt("RESET_RETENTION_DAYS", 7)) * 24 * time.Hour
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleCallbackURL = os.Getenv("GOOGLE_CALLBACK_URL")
	cfg.GoogleEnabled = cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" && cfg.GoogleCallbackURL != ""

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", cfg.SMTPUser)
	cfg.SMTPSecure = getEnvBool("SMTP_SECURE", cfg.SMTPPort == 465)
	cfg.MailConfigured = cfg.SMTPHost != "" && cfg.SMTPFrom != ""

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "4000")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", cfg.Production)
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = splitList(getEnvString("CLIENT_ORIGIN", "http://localhost:5173"))
	cfg.AllowVercelPreviews = getEnvBool("ALLOW_VERCEL_PREVIEWS", false)

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

// splitList はカンマ区切りの値を空要素を除いて分割する。
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
