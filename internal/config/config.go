// Package config provides configuration for the chatbot server and tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the persona seeded into every new session.
const DefaultSystemPrompt = "Eres un asistente relajado y divertido. Responde de manera amigable y útil."

// Config holds the chatbot configuration.
type Config struct {
	// Server settings
	HTTPPort      int    `yaml:"http_port"`
	SessionCookie string `yaml:"session_cookie"`

	// Database
	DatabaseDriver string `yaml:"database_driver"` // sqlite3, sqlite or postgres
	DatabaseURL    string `yaml:"database_url"`

	// Completion gateway
	Mode            string        `yaml:"mode"` // MOCK selects the offline client
	LLMBaseURL      string        `yaml:"llm_base_url"`
	LLMAPIKey       string        `yaml:"llm_api_key"`
	Model           string        `yaml:"model"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     float64       `yaml:"temperature"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`

	// Conversation
	SystemPrompt     string `yaml:"system_prompt"`
	ContextLimit     int    `yaml:"context_limit"`
	HistoryLimit     int    `yaml:"history_limit"`
	SessionListLimit int    `yaml:"session_list_limit"`
	MaxMessageChars  int    `yaml:"max_message_chars"`
	PolicyFile       string `yaml:"policy_file"`

	// Backups
	BackupDir      string `yaml:"backup_dir"`
	BackupSchedule string `yaml:"backup_schedule"`

	// WebSocket settings
	WSPingInterval   time.Duration `yaml:"ws_ping_interval"`
	WSWriteTimeout   time.Duration `yaml:"ws_write_timeout"`
	WSReadTimeout    time.Duration `yaml:"ws_read_timeout"`
	WSMaxMessageSize int64         `yaml:"ws_max_message_size"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		HTTPPort:         5000,
		SessionCookie:    "chatbot_session",
		DatabaseDriver:   "sqlite3",
		DatabaseURL:      "chatbot.db",
		LLMBaseURL:       "https://api.openai.com",
		Model:            "gpt-3.5-turbo",
		MaxOutputTokens:  500,
		Temperature:      0.7,
		LLMTimeout:       30 * time.Second,
		SystemPrompt:     DefaultSystemPrompt,
		ContextLimit:     20,
		HistoryLimit:     50,
		SessionListLimit: 10,
		MaxMessageChars:  4000,
		BackupDir:        "backups",
		WSPingInterval:   30 * time.Second,
		WSWriteTimeout:   10 * time.Second,
		WSReadTimeout:    60 * time.Second,
		WSMaxMessageSize: 65536,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom is Load with an explicit configuration file. An empty path skips
// the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.SessionCookie = getEnv("SESSION_COOKIE", cfg.SessionCookie)
	cfg.DatabaseDriver = getEnv("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Mode = getEnv("CHATBOT_MODE", cfg.Mode)
	cfg.LLMBaseURL = getEnv("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMAPIKey = getEnv("OPENAI_API_KEY", cfg.LLMAPIKey)
	cfg.Model = getEnv("LLM_MODEL", cfg.Model)
	cfg.MaxOutputTokens = getEnvInt("LLM_MAX_TOKENS", cfg.MaxOutputTokens)
	cfg.Temperature = getEnvFloat("LLM_TEMPERATURE", cfg.Temperature)
	cfg.LLMTimeout = getEnvMillis("LLM_TIMEOUT_MS", cfg.LLMTimeout)
	cfg.SystemPrompt = getEnv("SYSTEM_PROMPT", cfg.SystemPrompt)
	cfg.ContextLimit = getEnvInt("CONTEXT_LIMIT", cfg.ContextLimit)
	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.SessionListLimit = getEnvInt("SESSION_LIST_LIMIT", cfg.SessionListLimit)
	cfg.MaxMessageChars = getEnvInt("MAX_MESSAGE_CHARS", cfg.MaxMessageChars)
	cfg.PolicyFile = getEnv("POLICY_FILE", cfg.PolicyFile)
	cfg.BackupDir = getEnv("BACKUP_DIR", cfg.BackupDir)
	cfg.BackupSchedule = getEnv("BACKUP_SCHEDULE", cfg.BackupSchedule)
	cfg.WSPingInterval = getEnvMillis("WS_PING_INTERVAL_MS", cfg.WSPingInterval)
	cfg.WSWriteTimeout = getEnvMillis("WS_WRITE_TIMEOUT_MS", cfg.WSWriteTimeout)
	cfg.WSReadTimeout = getEnvMillis("WS_READ_TIMEOUT_MS", cfg.WSReadTimeout)
	cfg.WSMaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(cfg.WSMaxMessageSize)))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http_port %d out of range", c.HTTPPort))
	}
	switch c.DatabaseDriver {
	case "sqlite3", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported database_driver %q", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required"))
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		errs = append(errs, errors.New("system_prompt must not be empty"))
	}
	if c.MaxOutputTokens <= 0 {
		errs = append(errs, errors.New("max_output_tokens must be positive"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %.2f out of range [0, 2]", c.Temperature))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("llm_timeout must be positive"))
	}
	if c.SessionCookie == "" {
		errs = append(errs, errors.New("session_cookie is required"))
	}
	return errors.Join(errs...)
}

// MockMode reports whether the offline completion client should be used.
func (c *Config) MockMode() bool {
	return strings.EqualFold(c.Mode, "MOCK")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
