// Package preflight provides readiness checks for external services and
// filesystem paths that shelfarr depends on.
//
// The daemon runs RunAll at startup and logs failures without refusing to
// start, since the backend or library server may come up later. The CLI
// "shelfarr status" command renders the same results.
//
// Each service check is gated by its config section; disabled features are
// skipped.
package preflight
