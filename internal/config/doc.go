// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// which is how tokens, Redis URLs and database passwords are usually injected.
package config
