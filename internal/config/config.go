package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/trial-match-server/internal/domain"
)

// Manager loads and validates service configuration using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment, and defaults
func (m *Manager) loadConfig() error {
	m.v.SetConfigName("config")
	m.v.SetConfigType("yaml")
	m.v.AddConfigPath(".")
	m.v.AddConfigPath("./config")
	m.v.AddConfigPath("/etc/trial-match-server/")

	m.v.SetEnvPrefix("TRIAL_MATCH")
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()

	m.setDefaults()
	m.bindLegacyEnv()

	// Config file is optional; defaults and environment variables suffice
	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := m.v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	m.v.SetDefault("server.host", "0.0.0.0")
	m.v.SetDefault("server.port", 8080)
	m.v.SetDefault("server.read_timeout", "30s")
	m.v.SetDefault("server.write_timeout", "60s")
	m.v.SetDefault("server.idle_timeout", "120s")

	// LLM inference defaults
	m.v.SetDefault("llm.api_key", "")
	m.v.SetDefault("llm.base_url", "https://api.cerebras.ai/v1")
	m.v.SetDefault("llm.model", "llama-3.3-70b")
	m.v.SetDefault("llm.max_tokens", 2048)
	m.v.SetDefault("llm.temperature", 0.1)
	m.v.SetDefault("llm.timeout", "60s")
	m.v.SetDefault("llm.rate_limit", 60)
	m.v.SetDefault("llm.max_retries", 3)
	m.v.SetDefault("llm.max_concurrent", 5)

	// Trial registry defaults
	m.v.SetDefault("registry.base_url", "https://clinicaltrials.gov/api/v2")
	m.v.SetDefault("registry.timeout", "30s")
	m.v.SetDefault("registry.rate_limit", 100)
	m.v.SetDefault("registry.rate_window", "60s")
	m.v.SetDefault("registry.max_retries", 3)
	m.v.SetDefault("registry.page_size", 100)
	m.v.SetDefault("registry.cache_ttl", "15m")

	// Search defaults
	m.v.SetDefault("search.vector_dimension", 384)
	m.v.SetDefault("search.similarity_threshold", 0.1)
	m.v.SetDefault("search.seed_on_start", false)
	m.v.SetDefault("search.seed_conditions", []string{})

	// Matching defaults
	m.v.SetDefault("matching.candidate_source", "index")
	m.v.SetDefault("matching.cache_results", false)
	m.v.SetDefault("matching.cache_size", 256)

	// Logging defaults
	m.v.SetDefault("logging.level", "info")
	m.v.SetDefault("logging.format", "json")
	m.v.SetDefault("logging.hipaa_safe", true)
}

// bindLegacyEnv binds the unprefixed environment variable names that
// deployments already use for the external services.
func (m *Manager) bindLegacyEnv() {
	bindings := map[string]string{
		"llm.api_key":                 "CEREBRAS_API_KEY",
		"llm.base_url":                "CEREBRAS_BASE_URL",
		"llm.model":                   "CEREBRAS_MODEL",
		"llm.max_tokens":              "CEREBRAS_MAX_TOKENS",
		"llm.timeout":                 "CEREBRAS_TIMEOUT",
		"registry.base_url":           "CLINICALTRIALS_BASE_URL",
		"registry.rate_limit":         "CLINICALTRIALS_RATE_LIMIT",
		"search.similarity_threshold": "SIMILARITY_THRESHOLD",
		"search.vector_dimension":     "VECTOR_DIMENSION",
		"logging.hipaa_safe":          "HIPAA_SAFE_LOGGING",
	}
	for key, env := range bindings {
		// BindEnv only errors on an empty key
		_ = m.v.BindEnv(key, env)
	}
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetLLMConfig returns inference service configuration
func (m *Manager) GetLLMConfig() *domain.LLMConfig {
	return &m.config.LLM
}

// GetRegistryConfig returns trial registry client configuration
func (m *Manager) GetRegistryConfig() *domain.RegistryConfig {
	return &m.config.Registry
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.LLM.BaseURL == "" {
		return fmt.Errorf("llm base URL is required")
	}
	if config.LLM.RateLimit <= 0 {
		return fmt.Errorf("llm rate limit must be positive, got %d", config.LLM.RateLimit)
	}
	if config.LLM.Temperature < 0 || config.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2, got %g", config.LLM.Temperature)
	}

	if config.Registry.BaseURL == "" {
		return fmt.Errorf("registry base URL is required")
	}
	if config.Registry.RateLimit <= 0 {
		return fmt.Errorf("registry rate limit must be positive, got %d", config.Registry.RateLimit)
	}
	if config.Registry.PageSize <= 0 || config.Registry.PageSize > 1000 {
		return fmt.Errorf("registry page size must be between 1 and 1000, got %d", config.Registry.PageSize)
	}

	if config.Search.VectorDimension <= 0 {
		return fmt.Errorf("search vector dimension must be positive, got %d", config.Search.VectorDimension)
	}
	if config.Search.SimilarityThreshold < 0 || config.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("search similarity threshold must be between 0 and 1, got %g", config.Search.SimilarityThreshold)
	}

	switch config.Matching.CandidateSource {
	case "index", "registry":
	default:
		return fmt.Errorf("invalid candidate source: %s", config.Matching.CandidateSource)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
