// Package config loads the server configuration from the environment.
//
// A .env file in the working directory is read first if present (handy in
// development); real environment variables always win over it. Every value
// has a default except the secrets, and a missing optional secret simply
// turns the matching feature off.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	DBPath   string
	LogLevel slog.Level

	Auth   AuthConfig
	GitHub GitHubConfig
	Gemini GeminiConfig
	TMDB   TMDBConfig
	Redis  RedisConfig
	News   NewsConfig

	// AppURL is the web client's origin; OAuth redirects land there.
	AppURL             string
	CORSOrigins        []string
	RateLimitPerMinute int
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// GitHubConfig holds the OAuth app credentials. GitHub login is offered only
// when both the ID and the secret are set.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// GeminiConfig points the OpenAI-compatible client at Gemini.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type TMDBConfig struct {
	APIKey       string
	BaseURL      string
	ImageBaseURL string
}

// RedisConfig is optional: with an empty Addr the search cache is disabled.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NewsConfig struct {
	Enabled    bool
	FeedURL    string
	Schedule   string
	CronSecret string
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	var errs []error

	port, err := getInt("PORT", 8080)
	errs = append(errs, err)
	redisDB, err := getInt("REDIS_DB", 0)
	errs = append(errs, err)
	rateLimit, err := getInt("RATE_LIMIT_PER_MINUTE", 120)
	errs = append(errs, err)
	ttl, err := getDuration("TOKEN_TTL", 7*24*time.Hour)
	errs = append(errs, err)
	newsEnabled, err := getBool("NEWS_BOT_ENABLED", true)
	errs = append(errs, err)
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	errs = append(errs, err)

	cfg := &Config{
		Port:     port,
		DBPath:   getEnv("DB_PATH", "data/maratonei.db"),
		LogLevel: level,
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  ttl,
		},
		GitHub: GitHubConfig{
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			CallbackURL:  getEnv("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
		},
		Gemini: GeminiConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		TMDB: TMDBConfig{
			APIKey:       os.Getenv("TMDB_API_KEY"),
			BaseURL:      getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
			ImageBaseURL: getEnv("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p/w500"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		News: NewsConfig{
			Enabled:    newsEnabled,
			FeedURL:    getEnv("NEWS_FEED_URL", "https://www.omelete.com.br/rss/series-tv"),
			Schedule:   getEnv("NEWS_BOT_SCHEDULE", "@every 30m"),
			CronSecret: os.Getenv("CRON_SECRET"),
		},
		AppURL:             strings.TrimSuffix(getEnv("APP_URL", "http://localhost:5173"), "/"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		RateLimitPerMinute: rateLimit,
	}

	errs = append(errs, cfg.validate())
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.News.Enabled {
		if _, err := url.ParseRequestURI(c.News.FeedURL); err != nil {
			errs = append(errs, fmt.Errorf("NEWS_FEED_URL: %w", err))
		}
		if c.News.Schedule == "" {
			errs = append(errs, errors.New("NEWS_BOT_SCHEDULE must not be empty"))
		}
	}
	for name, raw := range map[string]string{
		"APP_URL":             c.AppURL,
		"GEMINI_BASE_URL":     c.Gemini.BaseURL,
		"TMDB_BASE_URL":       c.TMDB.BaseURL,
		"TMDB_IMAGE_BASE_URL": c.TMDB.ImageBaseURL,
	} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// splitList parses a comma-separated env value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
