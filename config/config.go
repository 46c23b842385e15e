package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Generation    GenerationConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// GenerationConfig holds the budget and cascade defaults
type GenerationConfig struct {
	DefaultBudget      time.Duration // used when a request carries no deadline
	MaxBudget          time.Duration // upper bound on a requested deadline
	SafetyMargin       time.Duration
	AttemptCeiling     time.Duration
	FastAttemptCeiling time.Duration
	AttemptFloor       time.Duration
	FastMaxTokens      int
	RepairMinBudget    time.Duration
	RepairCeiling      time.Duration
	RepairProvider     string // empty disables the secondary repair call
	RepairModel        string
}

// ProvidersConfig holds provider client configurations
type ProvidersConfig struct {
	OpenAI     OpenAIConfig
	Ollama     OllamaConfig
	GroupsFile string // YAML provider-group manifest; empty derives groups from env
}

// OpenAIConfig holds the remote-metered provider configuration
type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	FastModel         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// OllamaConfig holds the local-unmetered provider configuration
type OllamaConfig struct {
	Enabled bool
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool

	TracingEnabled     bool
	TracingEndpoint    string // OTLP/HTTP URL; empty exports to stdout
	TracingSampleRatio float64
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Generation: GenerationConfig{
			DefaultBudget:      getEnvAsDuration("GENERATION_DEFAULT_BUDGET", 60*time.Second),
			MaxBudget:          getEnvAsDuration("GENERATION_MAX_BUDGET", 110*time.Second),
			SafetyMargin:       getEnvAsDuration("GENERATION_SAFETY_MARGIN", 250*time.Millisecond),
			AttemptCeiling:     getEnvAsDuration("GENERATION_ATTEMPT_CEILING", 45*time.Second),
			FastAttemptCeiling: getEnvAsDuration("GENERATION_FAST_ATTEMPT_CEILING", 15*time.Second),
			AttemptFloor:       getEnvAsDuration("GENERATION_ATTEMPT_FLOOR", 2*time.Second),
			FastMaxTokens:      getEnvAsInt("GENERATION_FAST_MAX_TOKENS", 1024),
			RepairMinBudget:    getEnvAsDuration("GENERATION_REPAIR_MIN_BUDGET", 3*time.Second),
			RepairCeiling:      getEnvAsDuration("GENERATION_REPAIR_CEILING", 10*time.Second),
			RepairProvider:     getEnv("GENERATION_REPAIR_PROVIDER", ""),
			RepairModel:        getEnv("GENERATION_REPAIR_MODEL", ""),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:            getEnv("OPENAI_API_KEY", ""),
				BaseURL:           getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
				FastModel:         getEnv("OPENAI_FAST_MODEL", ""),
				Timeout:           getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				RequestsPerSecond: getEnvAsFloat("OPENAI_REQUESTS_PER_SECOND", 0),
				Burst:             getEnvAsInt("OPENAI_BURST", 1),
			},
			Ollama: OllamaConfig{
				Enabled: getEnvAsBool("OLLAMA_ENABLED", true),
				BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   getEnv("OLLAMA_MODEL", "llama3.1:8b"),
				Timeout: getEnvAsDuration("OLLAMA_TIMEOUT", 120*time.Second),
			},
			GroupsFile: getEnv("PROVIDER_GROUPS_FILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),

			TracingEnabled:     getEnvAsBool("TRACING_ENABLED", false),
			TracingEndpoint:    getEnv("TRACING_ENDPOINT", ""),
			TracingSampleRatio: getEnvAsFloat("TRACING_SAMPLE_RATIO", 1.0),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	g := c.Generation
	if g.DefaultBudget <= 0 {
		return fmt.Errorf("generation default budget must be positive")
	}
	if g.MaxBudget < g.DefaultBudget {
		return fmt.Errorf("generation max budget must not be below the default budget")
	}
	if g.SafetyMargin < 0 || g.SafetyMargin >= g.DefaultBudget {
		return fmt.Errorf("generation safety margin must be non-negative and below the default budget")
	}
	if g.AttemptCeiling <= 0 || g.FastAttemptCeiling <= 0 {
		return fmt.Errorf("generation attempt ceilings must be positive")
	}
	if g.AttemptFloor < 0 || g.AttemptFloor > g.AttemptCeiling {
		return fmt.Errorf("generation attempt floor must be between 0 and the attempt ceiling")
	}
	if g.RepairProvider != "" && g.RepairModel == "" {
		return fmt.Errorf("generation repair model is required when a repair provider is set")
	}

	// At least one provider is required in production
	if c.IsProduction() && c.Providers.OpenAI.APIKey == "" && !c.Providers.Ollama.Enabled && c.Providers.GroupsFile == "" {
		return fmt.Errorf("at least one provider must be configured in production")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if r := c.Observability.TracingSampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("tracing sample ratio must be within [0, 1]")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
