// Package storage defines the shared key-value contract used to exchange
// desired state between producers and the monitor, plus its backends.
//
// The contract is a hash of hashes: named buckets holding field -> value
// pairs. Backends:
//   - Redis: HSET / HGETALL / HDEL on one hash per bucket
//   - Postgres: one row per (bucket, field)
//   - Bolt: one bolt bucket per bucket, in a local file opened per call
//   - Memory: process-local maps, for tests and single-process setups
//
// Only Redis and Postgres let producers and the monitor run on different
// hosts. Bolt shares a file between processes on one host. Memory loses
// everything on restart.
package storage
