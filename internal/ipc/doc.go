// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Job
// payloads reuse the api package types so the HTTP and socket surfaces stay
// identical. Errors returned by the workflow (validation, retry limits,
// path violations) travel to the client as RPC error strings.
package ipc
