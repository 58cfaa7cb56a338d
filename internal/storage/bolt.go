package storage

import (
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/rickgao/botmanager/internal/config"
)

// Bolt persists buckets in a local bbolt file.
//
// bbolt locks the file for as long as it is open, so the file is opened
// per operation and released before returning. That lets producer commands
// and a running monitor on the same host take turns; each waits at most
// cfg.Timeout for the lock.
type Bolt struct {
	path string
	opts *bolt.Options
}

// NewBolt creates the bolt file at cfg.Path if needed and checks it opens.
func NewBolt(cfg config.BoltConfig) (*Bolt, error) {
	b := &Bolt{
		path: cfg.Path,
		opts: &bolt.Options{Timeout: cfg.Timeout},
	}
	if err := b.view(func(*bolt.Tx) error { return nil }); err != nil {
		return nil, unavailable("open bolt "+cfg.Path, err)
	}
	return b, nil
}

func (b *Bolt) open() (*bolt.DB, error) {
	return bolt.Open(b.path, 0600, b.opts)
}

func (b *Bolt) view(fn func(*bolt.Tx) error) error {
	db, err := b.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(fn)
}

func (b *Bolt) update(fn func(*bolt.Tx) error) error {
	db, err := b.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(fn)
}

func (b *Bolt) Set(ctx context.Context, bucket, field, value string) error {
	err := b.update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(field), []byte(value))
	})
	if err != nil {
		return unavailable("bolt set", err)
	}
	return nil
}

func (b *Bolt) GetAll(ctx context.Context, bucket string) (map[string]string, error) {
	out := make(map[string]string)
	err := b.view(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("bolt get all", err)
	}
	return out, nil
}

func (b *Bolt) Delete(ctx context.Context, bucket, field string) error {
	err := b.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucket))
		if bkt == nil {
			return nil
		}
		return bkt.Delete([]byte(field))
	})
	if err != nil {
		return unavailable("bolt delete", err)
	}
	return nil
}

func (b *Bolt) Ping(ctx context.Context) error {
	if err := b.view(func(*bolt.Tx) error { return nil }); err != nil {
		return unavailable("bolt ping", err)
	}
	return nil
}

// Close is a no-op; the file is never held between operations.
func (b *Bolt) Close() error {
	return nil
}
