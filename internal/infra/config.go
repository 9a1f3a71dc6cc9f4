package infra

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	RedisURL      string
	JWTSecret     string
	DefaultLocale string
	GeoIPDBPath   string

	StoragePath          string
	StorageBaseURL       string
	ImageSourceAllowlist []string
	MaxUploadBytes       int64

	FittingBaseURL string
	FittingAPIKey  string
	VideoBaseURL   string
	VideoAPIKey    string
	GeminiAPIKey   string
	GeminiModel    string
	BackendBaseURL string

	S3Endpoint          string
	S3Region            string
	S3Bucket            string
	S3AccessKey         string
	S3SecretKey         string
	S3PublicBaseURL     string
	S3UsePathStyle      bool
	S3PresignExpiration time.Duration

	ImageTimeout           time.Duration
	BackgroundImageTimeout time.Duration
	VideoTimeout           time.Duration
	ImageProgressDuration  time.Duration
	VideoProgressDuration  time.Duration

	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := loadConfig()
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// LoadToolConfig is LoadConfig for command-line tools that never verify tokens.
func LoadToolConfig() *Config {
	return loadConfig()
}

func loadConfig() *Config {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "ko"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		FittingBaseURL: os.Getenv("FITTING_BASE_URL"),
		FittingAPIKey:  os.Getenv("FITTING_API_KEY"),
		VideoBaseURL:   os.Getenv("VIDEO_BASE_URL"),
		VideoAPIKey:    os.Getenv("VIDEO_API_KEY"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		BackendBaseURL: os.Getenv("BACKEND_BASE_URL"),

		S3Endpoint:          os.Getenv("S3_ENDPOINT"),
		S3Region:            getEnv("S3_REGION", "ap-northeast-2"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3AccessKey:         os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("S3_SECRET_KEY"),
		S3PublicBaseURL:     os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:      getEnvBool("S3_USE_PATH_STYLE", true),
		S3PresignExpiration: time.Second * time.Duration(getEnvInt("S3_PRESIGN_EXPIRATION_SECONDS", 900)),

		ImageTimeout:           time.Second * time.Duration(getEnvInt("IMAGE_TIMEOUT_SECONDS", 120)),
		BackgroundImageTimeout: time.Second * time.Duration(getEnvInt("IMAGE_BACKGROUND_TIMEOUT_SECONDS", 300)),
		VideoTimeout:           time.Second * time.Duration(getEnvInt("VIDEO_TIMEOUT_SECONDS", 300)),
		ImageProgressDuration:  time.Second * time.Duration(getEnvInt("PROGRESS_IMAGE_SECONDS", 40)),
		VideoProgressDuration:  time.Second * time.Duration(getEnvInt("PROGRESS_VIDEO_SECONDS", 90)),

		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	cfg.ImageSourceAllowlist = buildAllowlist(cfg.StorageBaseURL, cfg.S3PublicBaseURL, os.Getenv("IMAGE_SOURCE_HOST_ALLOWLIST"))

	if cfg.BackgroundImageTimeout < cfg.ImageTimeout {
		cfg.BackgroundImageTimeout = cfg.ImageTimeout
	}
	return cfg
}

// S3Enabled reports whether object storage credentials are configured.
func (c *Config) S3Enabled() bool {
	return c != nil && c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func buildAllowlist(storageBaseURL, publicBaseURL, explicit string) []string {
	seen := map[string]struct{}{}
	for _, raw := range []string{storageBaseURL, publicBaseURL} {
		if host := hostOf(raw); host != "" {
			seen[host] = struct{}{}
		}
	}
	for _, host := range splitList(explicit) {
		seen[strings.ToLower(host)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
