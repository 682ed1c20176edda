// Package config loads run configuration from the environment. Flags in cmd/
// take their defaults from here and override individual fields.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	PlacesAPIKey  string
	PlacesBaseURL string `validate:"omitempty,url"`

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string `validate:"omitempty,url"`

	Workers        int           `validate:"gte=1,lte=64"`
	MaxRetries     int           `validate:"gte=0,lte=10"`
	RequestTimeout time.Duration `validate:"gt=0"`
	FetchTimeout   time.Duration `validate:"gt=0"`
	RateLimitRPS   float64       `validate:"gte=0"`
	FailFast       bool

	RolesFile   string `validate:"omitempty,file"`
	CacheDir    string
	RedisURL    string `validate:"omitempty,url"`
	ArchiveFile string `validate:"required"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

// Load reads .env (when present) into the process environment and then
// builds a Config from it. Variables already set win over .env values.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv with defaults for unset variables.
func FromEnv(getenv func(string) string) (Config, error) {
	e := envReader{getenv: getenv}
	cfg := Config{
		PlacesAPIKey:  e.str("GOOGLE_PLACES_API_KEY", ""),
		PlacesBaseURL: e.str("PLACES_BASE_URL", ""),
		GeminiAPIKey:  e.str("GEMINI_API_KEY", ""),
		GeminiModel:   e.str("GEMINI_MODEL", ""),
		GeminiBaseURL: e.str("GEMINI_BASE_URL", ""),

		Workers:        e.integer("WORKERS", 1),
		MaxRetries:     e.integer("MAX_RETRIES", 2),
		RequestTimeout: e.duration("REQUEST_TIMEOUT", 2*time.Minute),
		FetchTimeout:   e.duration("FETCH_TIMEOUT", 10*time.Second),
		RateLimitRPS:   e.float("RATE_LIMIT_RPS", 0),
		FailFast:       e.boolean("FAIL_FAST"),

		RolesFile:   e.str("ROLES_FILE", ""),
		CacheDir:    e.str("CACHE_DIR", ".cache/search"),
		RedisURL:    e.str("REDIS_URL", ""),
		ArchiveFile: e.str("ARCHIVE_FILE", "lead_archive.csv"),

		LogLevel:  strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(e.str("LOG_FORMAT", "text")),
	}
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints. Call it after flag overrides are applied.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// RequirePlaces reports a usage error when the Places key is missing.
func (c Config) RequirePlaces() error {
	if strings.TrimSpace(c.PlacesAPIKey) == "" {
		return fmt.Errorf("GOOGLE_PLACES_API_KEY is required")
	}
	return nil
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(name, fallback string) string {
	v := strings.TrimSpace(e.getenv(name))
	if v == "" {
		return fallback
	}
	return v
}

func (e *envReader) integer(name string, fallback int) int {
	v := strings.TrimSpace(e.getenv(name))
	if v == "" {
		return fallback
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", name, v, err))
		return fallback
	}
	return out
}

func (e *envReader) float(name string, fallback float64) float64 {
	v := strings.TrimSpace(e.getenv(name))
	if v == "" {
		return fallback
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", name, v, err))
		return fallback
	}
	return out
}

func (e *envReader) duration(name string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(name))
	if v == "" {
		return fallback
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", name, v, err))
		return fallback
	}
	return out
}

func (e *envReader) boolean(name string) bool {
	v := strings.TrimSpace(e.getenv(name))
	if v == "" {
		return false
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", name, v, err))
		return false
	}
	return out
}
