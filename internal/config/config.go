package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type CompletionBackend string

const (
	BackendOpenAI CompletionBackend = "openai"
	BackendVertex CompletionBackend = "vertex"
	BackendMock   CompletionBackend = "mock"
)

type StorageBackend string

const (
	StorageMemory    StorageBackend = "memory"
	StorageFirestore StorageBackend = "firestore"
	StorageSQLite    StorageBackend = "sqlite"
)

type Config struct {
	DiscordToken  string
	CommandPrefix string
	HTTPAddr      string

	CompletionBackend CompletionBackend
	CompletionTimeout time.Duration

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	GCPProjectID string
	GCPLocation  string
	VertexModel  string

	StorageBackend      StorageBackend
	SQLitePath          string
	FirestoreDatabaseID string

	PersonaFile      string
	PersonaUser      string
	PersonaAssistant string

	LogLevel  string
	LogFormat string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return d, nil
}

// Load reads a .env file if present, then the environment, and validates
// the result. Surface-specific checks (discord token) live in Require*.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	timeout, timeoutErr := getDurationEnv("COMPLETION_TIMEOUT", 60*time.Second)

	cfg := &Config{
		DiscordToken:  getEnv("DISCORD_TOKEN", os.Getenv("TOKEN")),
		CommandPrefix: getEnv("COMMAND_PREFIX", "gpt!"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),

		CompletionBackend: CompletionBackend(strings.ToLower(getEnv("COMPLETION_BACKEND", string(BackendOpenAI)))),
		CompletionTimeout: timeout,

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", os.Getenv("APIKEY")),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		GCPProjectID: getEnv("GCP_PROJECT", ""),
		GCPLocation:  getEnv("GCP_LOCATION", "us-central1"),
		VertexModel:  getEnv("VERTEX_MODEL", "gemini-2.5-flash"),

		StorageBackend:      StorageBackend(strings.ToLower(getEnv("STORAGE_BACKEND", string(StorageMemory)))),
		SQLitePath:          getEnv("SQLITE_PATH", "file:gpt-relay.db?_busy_timeout=5000"),
		FirestoreDatabaseID: getEnv("FIRESTORE_DATABASE", ""),

		PersonaFile:      getEnv("PERSONA_FILE", ""),
		PersonaUser:      getEnv("PERSONA_USER", ""),
		PersonaAssistant: getEnv("PERSONA_ASSISTANT", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := errors.Join(timeoutErr, cfg.Validate()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every surface needs.
func (c *Config) Validate() error {
	var errs []error

	switch c.CompletionBackend {
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY must be set for the openai backend"))
		}
	case BackendVertex:
		if c.GCPProjectID == "" {
			errs = append(errs, errors.New("GCP_PROJECT must be set for the vertex backend"))
		}
	case BackendMock:
	default:
		errs = append(errs, fmt.Errorf("unknown COMPLETION_BACKEND %q", c.CompletionBackend))
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageFirestore:
		if c.GCPProjectID == "" {
			errs = append(errs, errors.New("GCP_PROJECT must be set for the firestore storage backend"))
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	if c.CompletionTimeout < 0 {
		errs = append(errs, fmt.Errorf("COMPLETION_TIMEOUT must not be negative, got %s", c.CompletionTimeout))
	}

	if strings.TrimSpace(c.CommandPrefix) == "" {
		errs = append(errs, errors.New("COMMAND_PREFIX must not be blank"))
	}

	return errors.Join(errs...)
}

// RequireDiscord reports whether the discord surface can start.
func (c *Config) RequireDiscord() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN must be set to run the discord gateway")
	}
	return nil
}
