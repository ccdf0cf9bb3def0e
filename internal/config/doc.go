// Package config loads, normalizes, and validates readtrail server settings.
//
// Values come from repository defaults, then an optional TOML file, then a
// small set of environment overrides (PORT, READTRAIL_ADDR,
// READTRAIL_HISTORY_BACKEND, READTRAIL_LOG_LEVEL, READTRAIL_LOG_FORMAT).
package config
