package domain

import "time"

// Configuration Models

// Config represents the main application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Registry RegistryConfig `mapstructure:"registry"`
	Search   SearchConfig   `mapstructure:"search"`
	Matching MatchingConfig `mapstructure:"matching"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LLMConfig represents the chat-completion inference service configuration
type LLMConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float64       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RateLimit     int           `mapstructure:"rate_limit"` // requests per minute
	MaxRetries    int           `mapstructure:"max_retries"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// RegistryConfig represents the clinical-trials registry client configuration
type RegistryConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   int           `mapstructure:"rate_limit"`   // requests per window
	RateWindow  time.Duration `mapstructure:"rate_window"`  // sliding window size
	MaxRetries  int           `mapstructure:"max_retries"`
	PageSize    int           `mapstructure:"page_size"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// SearchConfig represents the hybrid search engine configuration
type SearchConfig struct {
	VectorDimension     int      `mapstructure:"vector_dimension"`
	SimilarityThreshold float64  `mapstructure:"similarity_threshold"`
	SeedOnStart         bool     `mapstructure:"seed_on_start"`
	SeedConditions      []string `mapstructure:"seed_conditions"`
}

// MatchingConfig represents matching orchestrator configuration
type MatchingConfig struct {
	CandidateSource string `mapstructure:"candidate_source"` // "index" or "registry"
	CacheResults    bool   `mapstructure:"cache_results"`
	CacheSize       int    `mapstructure:"cache_size"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	HIPAASafe bool   `mapstructure:"hipaa_safe"`
}
