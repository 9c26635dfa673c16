package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	TEPCO     TEPCOConfig     `yaml:"tepco"`
	Server    ServerConfig    `yaml:"server,omitempty"`
	Database  DatabaseConfig  `yaml:"database,omitempty"`
	Scheduler SchedulerConfig `yaml:"scheduler,omitempty"`
	Retention RetentionConfig `yaml:"retention,omitempty"`
	MQTT      MQTTConfig      `yaml:"mqtt,omitempty"`
	Browser   BrowserConfig   `yaml:"browser,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// TEPCOConfig holds portal credentials and contract identifiers
type TEPCOConfig struct {
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
	ContractNum   string `yaml:"contract_num"`
	AccountID     string `yaml:"account_id"`
	ContractClass string `yaml:"contract_class,omitempty"` // default "02"
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty"` // empty disables API auth
}

// DatabaseConfig holds the SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// SchedulerConfig controls the periodic collection tasks
type SchedulerConfig struct {
	Enabled             bool `yaml:"enabled"`
	CollectHour         int  `yaml:"collect_hour,omitempty"`          // local hour for the daily run (default 1)
	TokenCheckHours     int  `yaml:"token_check_hours,omitempty"`     // default 6
	ReconcileWindowDays int  `yaml:"reconcile_window_days,omitempty"` // default 30
}

// RetentionConfig controls collection-log pruning. Pruning is off by
// default; the monthly task then only logs what it would delete.
type RetentionConfig struct {
	Enabled bool `yaml:"enabled"`
	Days    int  `yaml:"days,omitempty"` // default 90
}

// MQTTConfig holds settings for publishing stored records to a broker
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// BrowserConfig controls the login browser session
type BrowserConfig struct {
	Headless       bool `yaml:"headless"`
	TimeoutSeconds int  `yaml:"timeout_seconds,omitempty"` // default 90
}

// LogConfig controls structured logging output
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // json or text
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// HasCredentials reports whether portal login credentials are configured
func (c *Config) HasCredentials() bool {
	return c.TEPCO.Username != "" && c.TEPCO.Password != ""
}

// GetContractClass returns the contract class with the portal default
func (c *Config) GetContractClass() string {
	if c.TEPCO.ContractClass == "" {
		return "02"
	}
	return c.TEPCO.ContractClass
}

// GetHost returns the HTTP bind host, defaulting to localhost
func (c *Config) GetHost() string {
	if c.Server.Host == "" {
		return "127.0.0.1"
	}
	return c.Server.Host
}

// GetPort returns the HTTP port with a default of 8686
func (c *Config) GetPort() int {
	if c.Server.Port <= 0 {
		return 8686
	}
	return c.Server.Port
}

// GetDBPath returns the database file path with a local default
func (c *Config) GetDBPath() string {
	if c.Database.Path == "" {
		return "denkiwatch.db"
	}
	return c.Database.Path
}

// GetCollectHour returns the local hour of the daily collection run.
// 1 AM gives TEPCO time to finalize the previous day's figures.
func (c *Config) GetCollectHour() int {
	if c.Scheduler.CollectHour <= 0 || c.Scheduler.CollectHour > 23 {
		return 1
	}
	return c.Scheduler.CollectHour
}

// GetTokenCheckHours returns the token check cadence with a default of 6
func (c *Config) GetTokenCheckHours() int {
	if c.Scheduler.TokenCheckHours <= 0 {
		return 6
	}
	return c.Scheduler.TokenCheckHours
}

// GetReconcileWindowDays returns the trailing gap-check window, default 30
func (c *Config) GetReconcileWindowDays() int {
	if c.Scheduler.ReconcileWindowDays <= 0 {
		return 30
	}
	return c.Scheduler.ReconcileWindowDays
}

// GetRetentionDays returns how long collection logs are kept, default 90
func (c *Config) GetRetentionDays() int {
	if c.Retention.Days <= 0 {
		return 90
	}
	return c.Retention.Days
}

// GetBrowserTimeoutSeconds returns the login flow timeout, default 90
func (c *Config) GetBrowserTimeoutSeconds() int {
	if c.Browser.TimeoutSeconds <= 0 {
		return 90
	}
	return c.Browser.TimeoutSeconds
}
