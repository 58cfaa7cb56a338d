// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Desired, live and connected team counts
//   - Reconciliation pass results and latencies
//   - Connection open failures by stage
//   - Restart commands served
package metrics
