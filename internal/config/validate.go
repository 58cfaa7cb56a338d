package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Manager.TokensKey == "" {
		return errors.New("manager.tokens_key is required")
	}
	if c.Manager.TeamsKey == "" {
		return errors.New("manager.teams_key is required")
	}
	if c.Manager.TokensKey == c.Manager.TeamsKey {
		return errors.New("manager.tokens_key and manager.teams_key must differ")
	}
	if c.Manager.CheckInterval <= 0 {
		return errors.New("manager.check_interval must be > 0")
	}
	if c.Manager.PassTimeout <= 0 {
		return errors.New("manager.pass_timeout must be > 0")
	}
	if c.Manager.ReconnectBaseDelay < 0 {
		return errors.New("manager.reconnect_base_delay must be >= 0")
	}
	if c.Manager.ReconnectMaxDelay < c.Manager.ReconnectBaseDelay {
		return fmt.Errorf("manager.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.Manager.ReconnectMaxDelay, c.Manager.ReconnectBaseDelay)
	}

	if c.Slack.APIURL == "" {
		return errors.New("slack.api_url is required")
	}
	if c.Slack.Timeout <= 0 {
		return errors.New("slack.timeout must be > 0")
	}
	if c.Slack.MaxRetries < 0 {
		return errors.New("slack.max_retries must be >= 0")
	}
	if c.Slack.PingTimeout <= c.Slack.PingInterval {
		return fmt.Errorf("slack.ping_timeout (%s) must exceed ping_interval (%s)",
			c.Slack.PingTimeout, c.Slack.PingInterval)
	}

	switch c.Storage.Driver {
	case "memory":
	case "redis":
		if c.Storage.Redis.URL == "" {
			return errors.New("storage.redis.url is required")
		}
		if c.Storage.Redis.MaxActive < 0 || c.Storage.Redis.MaxIdle < 0 {
			return errors.New("storage.redis pool sizes must be >= 0")
		}
	case "postgres":
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	case "bolt":
		if c.Storage.Bolt.Path == "" {
			return errors.New("storage.bolt.path is required")
		}
	default:
		return fmt.Errorf("storage.driver %q is not one of redis, postgres, bolt, memory", c.Storage.Driver)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	if !tableNameRe.MatchString(db.Table) {
		return fmt.Errorf("%s.table %q is not a valid identifier", prefix, db.Table)
	}
	return nil
}
