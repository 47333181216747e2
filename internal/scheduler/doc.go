// Package scheduler turns single segmentation requests into batched,
// deadline-bounded device calls.
//
// File index:
//   - config.go: Config, defaults, and pressure thresholds
//   - errors.go: error taxonomy and Is* predicates
//   - session.go: Session and SessionRegistry bookkeeping
//   - pool.go: bounded worker pool
//   - executor.go: Executor; per-call deadlines and pressure handling
//   - queue.go: BatchQueue; dynamic batching with adaptive sizing
//   - service.go: Service facade wired by the daemon
//   - prom.go: prometheus collectors
package scheduler
