// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates queue jobs and workflow diagnostics into
// transport-friendly DTOs so the CLI and HTTP consumers never couple to
// internal types.
//
// # Key Types
//
// Job: transport representation of a queue job with lifecycle timestamps,
// torrent references and seed accounting.
//
// WorkflowStatus: poll loop state, queue counts, last job and health.
//
// DaemonStatus: aggregated runtime information including dependencies and
// the most recent preflight results.
//
// # Converters
//
// FromJob: queue.Job -> Job. FromStatusSummary: workflow.StatusSummary ->
// WorkflowStatus.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses and media kinds are exposed as
// lowercase strings. Timestamps use RFC3339 with milliseconds in UTC; unset
// timestamps are omitted.
package api
