package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/botmanager/internal/config"
	"github.com/rickgao/botmanager/internal/database"
)

// Postgres stores one row per (bucket, field).
type Postgres struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
	owned bool
}

// NewPostgres connects, creates the table if needed and returns the store.
func NewPostgres(ctx context.Context, cfg config.DBConfig) (*Postgres, error) {
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, unavailable("connect postgres", err)
	}

	p := NewPostgresWithPool(pool, cfg.Table)
	p.owned = true
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresWithPool uses an existing pool. The caller keeps ownership.
func NewPostgresWithPool(pool *pgxpool.Pool, table string) *Postgres {
	return &Postgres{
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// EnsureSchema creates the key-value table.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	bucket     TEXT NOT NULL,
	field      TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (bucket, field)
)`, p.table))
	if err != nil {
		return unavailable("create table", err)
	}
	return nil
}

func (p *Postgres) Set(ctx context.Context, bucket, field, value string) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (bucket, field, value) VALUES ($1, $2, $3)
ON CONFLICT (bucket, field) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, p.table),
		bucket, field, value)
	if err != nil {
		return unavailable("postgres set", err)
	}
	return nil
}

func (p *Postgres) GetAll(ctx context.Context, bucket string) (map[string]string, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT field, value FROM %s WHERE bucket = $1`, p.table), bucket)
	if err != nil {
		return nil, unavailable("postgres get all", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("postgres get all", err)
	}
	return out, nil
}

func (p *Postgres) Delete(ctx context.Context, bucket, field string) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE bucket = $1 AND field = $2`, p.table), bucket, field)
	if err != nil {
		return unavailable("postgres delete", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return unavailable("postgres ping", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}
