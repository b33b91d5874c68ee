// Package logs reads the daemon log file for `shelfarr logs`.
//
// Tail returns the last N lines or everything written after a byte offset,
// optionally waiting for new lines. The returned offset feeds the next call,
// so follow mode is a loop of Tail calls. A file that shrank below the offset
// was rotated and is read again from the start.
package logs
