// Package notifications delivers job events to ntfy.
//
// The service publishes to the topic URL configured under [notifications]
// and degrades to a no-op when no topic is set. Completion and failure
// events can be switched off individually; every other event is informational
// and only sent when the caller asks for it explicitly.
package notifications
