package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	MySQL   MySQLConfig   `yaml:"mysql"`
	Redis   RedisConfig   `yaml:"redis"`
	Worker  WorkerConfig  `yaml:"worker"`
	Logger  LoggerConfig  `yaml:"logger"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Google  GoogleConfig  `yaml:"google"`
	Hubspot HubspotConfig `yaml:"hubspot"`
	Limits  LimitsConfig  `yaml:"limits"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for webhook/task endpoints (optional, if empty, auth is disabled)
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN builds the MySQL connection string
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WorkerConfig task worker configuration
type WorkerConfig struct {
	PollInterval  int `yaml:"poll_interval"`  // seconds between poll ticks
	MaxConcurrent int `yaml:"max_concurrent"` // in-flight task ceiling per process
	LockTimeout   int `yaml:"lock_timeout"`   // seconds before an in_progress lock counts as orphaned
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// OpenAIConfig OpenAI configuration
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// GoogleConfig Google OAuth client configuration
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// HubspotConfig HubSpot configuration
type HubspotConfig struct {
	BaseURL string `yaml:"base_url"`
}

// LimitsConfig action rate limits. LLM request and token limits are
// per user; the global token limit caps total daily spend.
type LimitsConfig struct {
	MaxEmailsPerUserPerHour  int `yaml:"max_emails_per_user_per_hour"`
	MaxEmailsGlobalPerHour   int `yaml:"max_emails_global_per_hour"`
	MaxLLMRequestsPerHour    int `yaml:"max_llm_requests_per_hour"`
	MaxLLMTokensPerDay       int `yaml:"max_llm_tokens_per_day"`
	MaxLLMTokensGlobalPerDay int `yaml:"max_llm_tokens_global_per_day"`
}

// Init initializes configuration from CONFIG_PATH (default
// config/config.yaml). Secrets may be supplied via .env / environment and
// override the yaml values.
func Init() error {
	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	GlobalConfig = &cfg
	return nil
}

func (c *Config) applyDefaults() {
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = 5
	}
	if c.Worker.MaxConcurrent <= 0 {
		c.Worker.MaxConcurrent = 10
	}
	if c.Worker.LockTimeout <= 0 {
		c.Worker.LockTimeout = 300
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if c.Hubspot.BaseURL == "" {
		c.Hubspot.BaseURL = "https://api.hubapi.com"
	}
	if c.Limits.MaxEmailsPerUserPerHour <= 0 {
		c.Limits.MaxEmailsPerUserPerHour = 50
	}
	if c.Limits.MaxEmailsGlobalPerHour <= 0 {
		c.Limits.MaxEmailsGlobalPerHour = 500
	}
	if c.Limits.MaxLLMRequestsPerHour <= 0 {
		c.Limits.MaxLLMRequestsPerHour = 100
	}
	if c.Limits.MaxLLMTokensPerDay <= 0 {
		c.Limits.MaxLLMTokensPerDay = 100000
	}
	if c.Limits.MaxLLMTokensGlobalPerDay <= 0 {
		c.Limits.MaxLLMTokensGlobalPerDay = 1000000
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.Google.ClientSecret = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		c.MySQL.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SERVER_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
}
