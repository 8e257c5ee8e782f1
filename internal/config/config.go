// Package config provides YAML-based configuration loading for Lifeline.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "lifeline.yaml"

// Config is the top-level Lifeline configuration, loaded from lifeline.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	SMS      SMSConfig      `yaml:"sms"`
	Push     PushConfig     `yaml:"push"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Relay    RelayConfig    `yaml:"relay"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
	// IdentityHeader carries the caller's user ID, set by the gateway.
	IdentityHeader string `yaml:"identity_header"`
}

// DatabaseConfig selects and addresses the event store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// SMSConfig holds Twilio credentials. Missing values disable the channel
// rather than failing validation.
type SMSConfig struct {
	AccountSID          string  `yaml:"account_sid"`
	AuthToken           string  `yaml:"auth_token"`
	FromNumber          string  `yaml:"from_number"`
	MessagingServiceSID string  `yaml:"messaging_service_sid"`
	RatePerSecond       float64 `yaml:"rate_per_second"`
}

// PushConfig holds Firebase Cloud Messaging settings.
type PushConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	ProjectID       string `yaml:"project_id"`
}

// DispatchConfig tunes the fan-out.
type DispatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
}

// RelayConfig lists the ops sinks mirrored on every trigger and resolve.
type RelayConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

// SlackConfig holds Slack relay settings.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord relay settings.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// KafkaConfig holds the event-stream relay settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// SweepConfig schedules the stale-event sweep.
type SweepConfig struct {
	Enabled    *bool         `yaml:"enabled"`
	Schedule   string        `yaml:"schedule"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// LogConfig sets logrus level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SweepEnabled reports whether the sweep should run; it defaults to true.
func (c SweepConfig) SweepEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Enabled reports whether the Slack sink has enough to post.
func (c SlackConfig) Enabled() bool { return c.BotToken != "" && c.ChannelID != "" }

// Enabled reports whether the Discord sink has enough to post.
func (c DiscordConfig) Enabled() bool { return c.BotToken != "" && c.ChannelID != "" }

// Enabled reports whether the Kafka sink has enough to publish.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 && c.Topic != "" }

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the config, if present, is loaded into the process
// environment first so ${VAR} references in the YAML can resolve secrets.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references and unmarshals YAML bytes into a
// validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated Config with every default applied, used when
// no config file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.IdentityHeader == "" {
		c.Server.IdentityHeader = "X-User-ID"
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "lifeline.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "lifeline"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.SMS.RatePerSecond == 0 {
		c.SMS.RatePerSecond = 10
	}
	if c.Dispatch.MaxConcurrency == 0 {
		c.Dispatch.MaxConcurrency = 16
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "*/5 * * * *"
	}
	if c.Sweep.StaleAfter == 0 {
		c.Sweep.StaleAfter = 10 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// validate checks that all required fields are present and consistent.
// Missing channel or relay credentials are not errors; those components
// report themselves unusable at startup instead.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite":
	case "mysql":
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port %d out of range", c.Database.Port))
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.SMS.RatePerSecond < 0 {
		errs = append(errs, "sms.rate_per_second must not be negative")
	}
	if c.Dispatch.MaxConcurrency < 0 {
		errs = append(errs, "dispatch.max_concurrency must not be negative")
	}
	if (c.Relay.Slack.BotToken == "") != (c.Relay.Slack.ChannelID == "") {
		errs = append(errs, "relay.slack needs both bot_token and channel_id")
	}
	if (c.Relay.Discord.BotToken == "") != (c.Relay.Discord.ChannelID == "") {
		errs = append(errs, "relay.discord needs both bot_token and channel_id")
	}
	if (len(c.Relay.Kafka.Brokers) == 0) != (c.Relay.Kafka.Topic == "") {
		errs = append(errs, "relay.kafka needs both brokers and topic")
	}
	if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("sweep.schedule %q: %v", c.Sweep.Schedule, err))
	}
	if c.Sweep.StaleAfter < 0 {
		errs = append(errs, "sweep.stale_after must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn, or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
