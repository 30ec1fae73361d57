package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Auth      AuthConfig
	Providers ProviderConfig
	Twilio    TwilioConfig
	Pipeline  PipelineConfig
	Jobs      JobsConfig
	Server    ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// AuthConfig holds authentication-related configuration
type AuthConfig struct {
	JWTSecret string
}

// ProviderConfig selects the AI vendors used for a call. A vendor is only
// used when its credentials are present; otherwise the factory falls back to
// deterministic mock providers.
type ProviderConfig struct {
	ASRVendor           string // "openai" or "mock"
	TTSVendor           string // "openai" or "mock"
	LLMVendor           string // "openai", "google", or "mock"
	VoiceID             string
	OpenAIAPIKey        string
	GoogleAIAPIKey      string
	ConfidenceThreshold float64
}

// TwilioConfig holds credentials for placing the outbound call leg.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	AnswerURL  string // public URL Twilio fetches TwiML from on answer
	MediaWSURL string // public wss:// URL Twilio streams call media to
}

// PipelineConfig holds call pipeline tuning knobs.
type PipelineConfig struct {
	MaxTurns           int
	MaxDurationMinutes int
	MaxRetryAttempts   int
	RendezvousWait     time.Duration
}

// JobsConfig holds the background job queue configuration.
type JobsConfig struct {
	RedisAddr string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port      int
	WebAppURI string
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Auth configuration
	if cfg.Auth.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return nil, err
	}

	// Provider configuration. Vendor keys are advisory; missing credentials
	// downgrade the vendor to mock at factory time.
	cfg.Providers.ASRVendor = getEnvWithDefault("ASR_VENDOR", "openai")
	cfg.Providers.TTSVendor = getEnvWithDefault("TTS_VENDOR", "openai")
	cfg.Providers.LLMVendor = getEnvWithDefault("LLM_VENDOR", "openai")
	cfg.Providers.VoiceID = getEnvWithDefault("TTS_VOICE_ID", "alloy")
	cfg.Providers.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Providers.GoogleAIAPIKey = os.Getenv("GOOGLE_AI_API_KEY")

	confidenceThreshold := getEnvWithDefault("CONFIDENCE_THRESHOLD", "0.4")
	cfg.Providers.ConfidenceThreshold, err = strconv.ParseFloat(confidenceThreshold, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CONFIDENCE_THRESHOLD: %w", err)
	}

	// Twilio configuration (optional; absent credentials mean no live leg is
	// placed and calls run against the in-memory transport).
	cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Twilio.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	cfg.Twilio.AnswerURL = os.Getenv("TWILIO_ANSWER_URL")
	cfg.Twilio.MediaWSURL = os.Getenv("TWILIO_MEDIA_WS_URL")

	// Pipeline configuration
	maxTurns := getEnvWithDefault("CALL_MAX_TURNS", "20")
	cfg.Pipeline.MaxTurns, err = strconv.Atoi(maxTurns)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CALL_MAX_TURNS: %w", err)
	}

	maxDuration := getEnvWithDefault("CALL_MAX_DURATION_MINUTES", "10")
	cfg.Pipeline.MaxDurationMinutes, err = strconv.Atoi(maxDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CALL_MAX_DURATION_MINUTES: %w", err)
	}

	maxAttempts := getEnvWithDefault("CALL_MAX_RETRY_ATTEMPTS", "3")
	cfg.Pipeline.MaxRetryAttempts, err = strconv.Atoi(maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CALL_MAX_RETRY_ATTEMPTS: %w", err)
	}

	rendezvousWait := getEnvWithDefault("CALL_RENDEZVOUS_WAIT_SECONDS", "15")
	waitSeconds, err := strconv.Atoi(rendezvousWait)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CALL_RENDEZVOUS_WAIT_SECONDS: %w", err)
	}
	cfg.Pipeline.RendezvousWait = time.Duration(waitSeconds) * time.Second

	// Jobs configuration. An empty address means pipeline runs are scheduled
	// in-process instead of through Redis.
	cfg.Jobs.RedisAddr = os.Getenv("REDIS_HOST")

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}
	cfg.Server.WebAppURI = getEnvWithDefault("WEBAPP_URI", "http://localhost:3000")

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
