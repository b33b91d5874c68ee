// Package config loads, normalizes, and validates shelfarr configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHELFARR_MAM_SESSION and SHELFARR_QBIT_PASSWORD. The Config type centralizes
// every knob the daemon and CLI need: download path mapping, library roots,
// indexer and backend credentials, and the retry policy.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
