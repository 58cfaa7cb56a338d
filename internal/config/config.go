package config

import "time"

// Config is the root configuration for a bot manager process.
type Config struct {
	Manager ManagerConfig `yaml:"manager"`
	Slack   SlackConfig   `yaml:"slack"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ManagerConfig holds token bookkeeping and reconciliation settings.
type ManagerConfig struct {
	TokensKey          string        `yaml:"tokens_key"` // Registry bucket (team id -> token)
	TeamsKey           string        `yaml:"teams_key"`  // Command/status bucket (team id -> status)
	CheckInterval      time.Duration `yaml:"check_interval"`
	PassTimeout        time.Duration `yaml:"pass_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`

	baseDelaySet bool // reconnect_base_delay present in the file; 0s disables backoff
}

// SlackConfig holds Slack Web API and RTM settings.
type SlackConfig struct {
	APIURL       string        `yaml:"api_url"`
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	maxRetriesSet bool // max_retries present in the file; 0 disables retries
}

// StorageConfig selects and configures the shared store.
type StorageConfig struct {
	Driver   string      `yaml:"driver"` // "redis", "postgres", "bolt" or "memory"
	Redis    RedisConfig `yaml:"redis"`
	Postgres DBConfig    `yaml:"postgres"`
	Bolt     BoltConfig  `yaml:"bolt"`
}

// RedisConfig holds Redis pool settings.
type RedisConfig struct {
	URL         string        `yaml:"url"`
	MaxIdle     int           `yaml:"max_idle"`
	MaxActive   int           `yaml:"max_active"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
	Table    string `yaml:"table"`
}

// BoltConfig holds the embedded store file location.
type BoltConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"` // File lock wait
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig holds Prometheus and health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
