// Copyright 2025 SPL Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// Config represents the complete application configuration
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Server    ServerConfig    `mapstructure:"server"`
	Chroma    ChromaConfig    `mapstructure:"chroma"`
	Rerank    RerankConfig    `mapstructure:"rerank"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Relevance RelevanceConfig `mapstructure:"relevance"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
}

// LLMConfig contains language model provider configuration. An empty API
// key puts the service in degraded mode: model-dependent stages abstain
// and deterministic fallbacks take over.
type LLMConfig struct {
	APIKey         string `mapstructure:"apikey"`
	Endpoint       string `mapstructure:"endpoint"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// ChromaConfig contains ChromaDB configuration
type ChromaConfig struct {
	URL            string `mapstructure:"url"`
	CollectionName string `mapstructure:"collection_name"`
}

// RerankConfig contains the cross-encoder scoring sidecar configuration
type RerankConfig struct {
	URL string `mapstructure:"url"`
}

// CatalogConfig locates the reference catalog files
type CatalogConfig struct {
	DataDirs      []string `mapstructure:"data_dirs"`
	TenantsFile   string   `mapstructure:"tenants_file"`
	ExemplarsFile string   `mapstructure:"exemplars_file"`
	DocsFile      string   `mapstructure:"docs_file"`
}

// RelevanceConfig contains relevance classification thresholds
type RelevanceConfig struct {
	EmbeddingThreshold         float64 `mapstructure:"embedding_threshold"`
	GenerateEmbeddingThreshold float64 `mapstructure:"generate_embedding_threshold"`
}

// ResolverConfig contains tenant resolution thresholds
type ResolverConfig struct {
	CrossTenantThreshold float64 `mapstructure:"cross_tenant_threshold"`
	GenericConfidence    float64 `mapstructure:"generic_confidence"`
}

// RetrievalConfig contains retrieval depths
type RetrievalConfig struct {
	Overfetch          int `mapstructure:"overfetch"`
	TopK               int `mapstructure:"top_k"`
	ExemplarK          int `mapstructure:"exemplar_k"`
	SynthesisExemplarK int `mapstructure:"synthesis_exemplar_k"`
}

// SynthesisConfig contains query generation configuration
type SynthesisConfig struct {
	Temperature float64 `mapstructure:"temperature"`
}

// ChunkerConfig contains corpus splitting configuration
type ChunkerConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	Overlap   int `mapstructure:"overlap"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// FeedbackConfig contains feedback storage configuration
type FeedbackConfig struct {
	StorageType string `mapstructure:"storage_type"`
	FilePath    string `mapstructure:"file_path"`
	DBPath      string `mapstructure:"db_path"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	EnableHotReload  bool
	Environment      string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables
// Environment variables take precedence over config file values
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		EnableHotReload:  false,
		Environment:      getEnvironment(),
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set configuration file path
	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SPL_ASSISTANT")

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if env vars are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Set explicit environment variable mappings
	setEnvironmentMappings(v)

	// Unmarshal configuration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// LLM defaults (Groq OpenAI-compatible endpoint)
	v.SetDefault("llm.endpoint", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_origins", []string{"*"})

	// ChromaDB defaults
	v.SetDefault("chroma.url", "http://chromadb:8000")
	v.SetDefault("chroma.collection_name", "spl_docs")

	// Rerank sidecar defaults
	v.SetDefault("rerank.url", "http://rerank:8090")

	// Catalog defaults
	v.SetDefault("catalog.data_dirs", []string{"./data", "./configs/data"})
	v.SetDefault("catalog.tenants_file", "index-sourcetype.json")
	v.SetDefault("catalog.exemplars_file", "qa_pairs.json")
	v.SetDefault("catalog.docs_file", "splunk_docs.txt")

	// Relevance defaults
	v.SetDefault("relevance.embedding_threshold", 0.30)
	v.SetDefault("relevance.generate_embedding_threshold", 0.35)

	// Resolver defaults
	v.SetDefault("resolver.cross_tenant_threshold", 0.8)
	v.SetDefault("resolver.generic_confidence", 0.75)

	// Retrieval defaults
	v.SetDefault("retrieval.overfetch", 8)
	v.SetDefault("retrieval.top_k", 4)
	v.SetDefault("retrieval.exemplar_k", 5)
	v.SetDefault("retrieval.synthesis_exemplar_k", 10)

	// Synthesis defaults
	v.SetDefault("synthesis.temperature", 0.1)

	// Chunker defaults
	v.SetDefault("chunker.chunk_size", 25000)
	v.SetDefault("chunker.overlap", 3300)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Feedback defaults
	v.SetDefault("feedback.storage_type", "file")
	v.SetDefault("feedback.file_path", "./feedback.log")
	v.SetDefault("feedback.db_path", "./feedback.db")
}

// setConfigFile sets the configuration file path with fallback logic
func setConfigFile(v *viper.Viper, configPath string) error {
	// Check for CONFIG_PATH environment variable
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	// Use provided config path
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	// Default fallback locations; running on env vars alone is fine
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return nil
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	// Map common environment variables
	envMappings := map[string]string{
		"GROQ_API_KEY": "llm.apikey",
		"LLM_ENDPOINT": "llm.endpoint",
		"LLM_MODEL":    "llm.model",
		"CHROMA_URL":   "chroma.url",
		"RERANK_URL":   "rerank.url",
		"LOG_LEVEL":    "logging.level",
		"LOG_FORMAT":   "logging.format",
		"LOG_OUTPUT":   "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config) error {
	var errors []ValidationError

	// The API key is deliberately NOT required: without it the service
	// runs degraded on keyword and pattern stages alone.

	if config.Chroma.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "chroma.url",
			Message: "ChromaDB URL is required",
		})
	}

	// Validate numeric values
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	for field, value := range map[string]float64{
		"relevance.embedding_threshold":          config.Relevance.EmbeddingThreshold,
		"relevance.generate_embedding_threshold": config.Relevance.GenerateEmbeddingThreshold,
		"resolver.cross_tenant_threshold":        config.Resolver.CrossTenantThreshold,
		"resolver.generic_confidence":            config.Resolver.GenericConfidence,
	} {
		if value < 0 || value > 1 {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "threshold must be between 0 and 1",
			})
		}
	}

	if config.Retrieval.Overfetch <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.overfetch",
			Message: "overfetch must be greater than 0",
		})
	}

	if config.Retrieval.TopK <= 0 || config.Retrieval.TopK > config.Retrieval.Overfetch {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be greater than 0 and at most overfetch",
		})
	}

	if config.Retrieval.ExemplarK <= 0 || config.Retrieval.SynthesisExemplarK <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.exemplar_k",
			Message: "exemplar counts must be greater than 0",
		})
	}

	if config.Synthesis.Temperature < 0 || config.Synthesis.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "synthesis.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if config.Chunker.ChunkSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_size",
			Message: "chunk_size must be greater than 0",
		})
	}

	if config.Chunker.Overlap < 0 || config.Chunker.Overlap >= config.Chunker.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "chunker.overlap",
			Message: "overlap must be non-negative and smaller than chunk_size",
		})
	}

	// Validate enum values
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	validStorageTypes := []string{"file", "sqlite"}
	if !contains(validStorageTypes, config.Feedback.StorageType) {
		errors = append(errors, ValidationError{
			Field:   "feedback.storage_type",
			Message: fmt.Sprintf("storage type must be one of: %s", strings.Join(validStorageTypes, ", ")),
		})
	}

	// Return all validation errors
	if len(errors) > 0 {
		var errorMessages []string
		for _, err := range errors {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errorMessages, "\n"))
	}

	return nil
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	// Mask sensitive fields
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = maskValue(masked.LLM.APIKey)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// getEnvironment returns the current environment (development, production, etc.)
func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "development"
}

// WatchConfig enables configuration hot-reloading for development
func WatchConfig(configPath string, callback func(*Config)) error {
	v := viper.New()

	// Set up configuration
	if err := setConfigFile(v, configPath); err != nil {
		return err
	}

	// Enable watching
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Printf("Config file changed: %s\n", e.Name)

		// Reload configuration
		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       configPath,
			EnableHotReload:  true,
			Environment:      getEnvironment(),
			ValidateRequired: true,
		})
		if err != nil {
			fmt.Printf("Failed to reload config: %v\n", err)
			return
		}

		// Call callback with new config
		callback(config)
	})

	return nil
}
