// Package database provides PostgreSQL connection pool setup for the
// Postgres storage backend.
package database
