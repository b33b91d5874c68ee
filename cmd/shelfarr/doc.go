// Package main hosts the shelfarr CLI.
//
// Commands either run the daemon in the foreground, drive a background daemon
// through daemonctl, or talk to a running daemon over its IPC socket. Job
// mutations always go through the daemon so the workflow's per-job locking
// applies; the status command falls back to reading the queue database when
// the daemon is down.
package main
