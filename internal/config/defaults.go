package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTokensKey          = "tokens:statuses"
	DefaultTeamsKey           = "tokens:teams"
	DefaultCheckInterval      = 5 * time.Second
	DefaultPassTimeout        = 30 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultSlackAPIURL        = "https://slack.com/api"
	DefaultUserAgent          = "botmanager (+https://github.com/rickgao/botmanager)"
	DefaultSlackTimeout       = 10 * time.Second
	DefaultMaxRetries         = 3
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 90 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultStorageDriver      = "memory"
	DefaultRedisURL           = "redis://localhost:6379/0"
	DefaultRedisMaxIdle       = 4
	DefaultRedisMaxActive     = 16
	DefaultRedisIdleTimeout   = 300 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultDBTable            = "botmanager_kv"
	DefaultBoltPath           = "botmanager.db"
	DefaultBoltTimeout        = 1 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

// ApplyDefaults fills zero-valued optional fields.
func (c *Config) ApplyDefaults() {
	// Manager defaults
	if c.Manager.TokensKey == "" {
		c.Manager.TokensKey = DefaultTokensKey
	}
	if c.Manager.TeamsKey == "" {
		c.Manager.TeamsKey = DefaultTeamsKey
	}
	if c.Manager.CheckInterval == 0 {
		c.Manager.CheckInterval = DefaultCheckInterval
	}
	if c.Manager.PassTimeout == 0 {
		c.Manager.PassTimeout = DefaultPassTimeout
	}
	if c.Manager.ReconnectBaseDelay == 0 && !c.Manager.baseDelaySet {
		c.Manager.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Manager.ReconnectMaxDelay == 0 {
		c.Manager.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// Slack defaults
	if c.Slack.APIURL == "" {
		c.Slack.APIURL = DefaultSlackAPIURL
	}
	if c.Slack.UserAgent == "" {
		c.Slack.UserAgent = DefaultUserAgent
	}
	if c.Slack.Timeout == 0 {
		c.Slack.Timeout = DefaultSlackTimeout
	}
	if c.Slack.MaxRetries == 0 && !c.Slack.maxRetriesSet {
		c.Slack.MaxRetries = DefaultMaxRetries
	}
	if c.Slack.PingInterval == 0 {
		c.Slack.PingInterval = DefaultPingInterval
	}
	if c.Slack.PingTimeout == 0 {
		c.Slack.PingTimeout = DefaultPingTimeout
	}
	if c.Slack.WriteTimeout == 0 {
		c.Slack.WriteTimeout = DefaultWriteTimeout
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Redis.URL == "" {
		c.Storage.Redis.URL = DefaultRedisURL
	}
	if c.Storage.Redis.MaxIdle == 0 {
		c.Storage.Redis.MaxIdle = DefaultRedisMaxIdle
	}
	if c.Storage.Redis.MaxActive == 0 {
		c.Storage.Redis.MaxActive = DefaultRedisMaxActive
	}
	if c.Storage.Redis.IdleTimeout == 0 {
		c.Storage.Redis.IdleTimeout = DefaultRedisIdleTimeout
	}
	applyDBDefaults(&c.Storage.Postgres)
	if c.Storage.Bolt.Path == "" {
		c.Storage.Bolt.Path = DefaultBoltPath
	}
	if c.Storage.Bolt.Timeout == 0 {
		c.Storage.Bolt.Timeout = DefaultBoltTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.Table == "" {
		db.Table = DefaultDBTable
	}
}
