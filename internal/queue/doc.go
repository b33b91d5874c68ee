// Package queue persists acquisition jobs in SQLite and owns their lifecycle
// vocabulary.
//
// The Store manages database connections, schema initialization, stats
// queries and guarded status transitions. Status is a typed enum validated by
// ParseStatus; CanTransition is the single table of allowed edges, and
// UpdateTransition refuses to persist an edge that is not in it or whose
// starting status no longer matches the stored row.
//
// The database holds both in-flight jobs and the terminal history. Schema
// changes bump the version in schema.go; users clear the database to adopt
// the new schema.
package queue
