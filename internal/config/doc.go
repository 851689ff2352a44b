// Package config provides configuration loading for personad.
//
// # Overview
//
// Configuration is assembled from three layers, highest precedence first:
//
//  1. Environment variables (PERSONAD_SERVER__PORT, PERSONAD_LOGGING__LEVEL, ...)
//  2. YAML config file (~/.config/personad/config.yaml)
//  3. Hardcoded defaults (NewDefaultConfig)
//
// Environment variables use the PERSONAD_ prefix with a double underscore
// between nesting levels, so single underscores survive inside field names:
//
//	PERSONAD_SERVER__PORT                       -> server.port
//	PERSONAD_STORE__CHROMEM__PATH               -> store.chromem.path
//	PERSONAD_TELEMETRY__METRICS__EXPORT_INTERVAL -> telemetry.metrics.export_interval
//
// # Security
//
// Config files must live under ~/.config/personad/ or /etc/personad/, carry
// 0600 or 0400 permissions, and stay under 1MB. Anything else is rejected
// before parsing.
//
// # Hot Reload
//
// Watcher re-reads the config file when it changes on disk and delivers the
// freshly loaded Config on a channel. Reload failures are reported on a
// separate error channel and leave the running configuration untouched.
//
// # Tuning Values
//
// Free-form tuning knobs (synthesis weights, adaptation increments) ride in
// the synthesis.tuning map and are read through the Values accessor, which
// falls back to compiled-in defaults for missing keys.
package config
