package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CTAG07/Lyrian/pkg/markov"
	"github.com/CTAG07/Lyrian/pkg/templating"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the configuration for the HTTP server and storage.
type ServerConfig struct {
	ApiAddr      string `json:"api_addr" yaml:"api_addr"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	DatabasePath string `json:"database_path" yaml:"database_path"`
	HistoryFile  string `json:"history_file" yaml:"history_file"`
	// MaxTrainBytes caps the size of a training request body.
	MaxTrainBytes int64 `json:"max_train_bytes" yaml:"max_train_bytes"`
}

// GenerationConfig holds the defaults and limits for lyric generation requests.
type GenerationConfig struct {
	MaxAttempts   int    `json:"max_attempts" yaml:"max_attempts"`
	MaxSteps      int    `json:"max_steps" yaml:"max_steps"`
	DefaultMetric string `json:"default_metric" yaml:"default_metric"`
	DefaultLength int    `json:"default_length" yaml:"default_length"`
	// MaxLength caps the requested line length, in the request's metric.
	MaxLength int `json:"max_length" yaml:"max_length"`
	MaxLines  int `json:"max_lines" yaml:"max_lines"`
	// KeyMode is the state key used when training new models, "word" or "word_reading".
	KeyMode string `json:"key_mode" yaml:"key_mode"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server     *ServerConfig              `json:"server_config" yaml:"server_config"`
	Generation *GenerationConfig          `json:"generation_config" yaml:"generation_config"`
	Templates  *templating.TemplateConfig `json:"template_config" yaml:"template_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:       ":7378",
		LogLevel:      "info",
		DataDir:       "./data",
		DatabasePath:  "./data/lyrian.db",
		HistoryFile:   "./data/.lyrian_history",
		MaxTrainBytes: 32 << 20,
	}
}

// DefaultGenerationConfig creates a generation configuration with default values.
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		MaxAttempts:   markov.DefaultMaxAttempts,
		MaxSteps:      markov.DefaultMaxSteps,
		DefaultMetric: markov.MetricMora.String(),
		DefaultLength: 7,
		MaxLength:     64,
		MaxLines:      32,
		KeyMode:       markov.KeyWord.String(),
	}
}

func defaultConfig() *Config {
	tmplConfig := templating.DefaultConfig()
	return &Config{
		Server:     DefaultServerConfig(),
		Generation: DefaultGenerationConfig(),
		Templates:  &tmplConfig,
	}
}

// Validate reports the first setting that would make every request fail.
func (c *Config) Validate() error {
	if c.Server == nil || c.Generation == nil || c.Templates == nil {
		return fmt.Errorf("server_config, generation_config and template_config are required")
	}
	if c.Generation.MaxAttempts <= 0 || c.Generation.MaxSteps <= 0 {
		return fmt.Errorf("max_attempts and max_steps must be positive")
	}
	if c.Generation.MaxLines <= 0 {
		return fmt.Errorf("max_lines must be positive")
	}
	if c.Generation.MaxLength <= 0 || c.Generation.DefaultLength > c.Generation.MaxLength {
		return fmt.Errorf("max_length must be positive and at least default_length")
	}
	if _, err := markov.ParseMetric(c.Generation.DefaultMetric); err != nil {
		return fmt.Errorf("generation_config: %w", err)
	}
	if _, err := markov.ParseKeyMode(c.Generation.KeyMode); err != nil {
		return fmt.Errorf("generation_config: %w", err)
	}
	if _, err := markov.ParseMetric(c.Templates.DefaultMetric); err != nil {
		return fmt.Errorf("template_config: %w", err)
	}
	return nil
}

// isYAML reports whether the config path should be read and written as YAML.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func marshalConfig(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalConfig(path string, data []byte, config *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, config)
	}
	return json.Unmarshal(data, config)
}

// LoadConfig reads the configuration from a JSON or YAML file at the given
// path, picking the format from the extension. If the file doesn't exist, it
// creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := defaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = marshalConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = unmarshalConfig(path, file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return config, nil
}

// ConfigManager handles thread-safe access to the configuration and pushes
// template limits to the TemplateManager.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
	tm         *templating.TemplateManager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *templating.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
	if tm != nil {
		tm.SetConfig(*cm.config.Templates)
	}
}

// SetLogger sets the logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a copy of the current configuration. The nested structs are
// copied too, so callers may modify the result freely.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	server := *cm.config.Server
	generation := *cm.config.Generation
	templates := *cm.config.Templates
	return Config{Server: &server, Generation: &generation, Templates: &templates}
}

// Path returns the file the configuration is persisted to.
func (cm *ConfigManager) Path() string {
	return cm.configPath
}

// Update validates the configuration, applies it and saves it to disk. Server
// settings such as addresses only take effect after a restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := marshalConfig(cm.configPath, &newConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	server := *newConfig.Server
	generation := *newConfig.Generation
	templates := *newConfig.Templates
	cm.config = &Config{Server: &server, Generation: &generation, Templates: &templates}
	if cm.tm != nil {
		cm.tm.SetConfig(templates)
	}
	cm.logger.Info("Configuration updated", "path", cm.configPath)
	return nil
}
