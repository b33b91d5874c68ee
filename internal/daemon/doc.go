// Package daemon coordinates the long-running shelfarr process.
//
// It wires configuration, the job store, the workflow poll loop and the
// recheck scheduler into a single lifecycle with flock-based locking to
// prevent multiple instances. On start it writes a PID file, runs preflight
// checks (failures are logged, not fatal) and optionally serves a read-only
// HTTP status API alongside Prometheus metrics.
//
// Keep orchestration logic here: job steps live in workflow while the daemon
// focuses on startup, shutdown and high level coordination.
package daemon
