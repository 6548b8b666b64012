// Package config loads, normalizes, and validates SERP Companion configuration.
//
// It supplies platform defaults for the install root, log and state
// directories, reads an optional TOML file, and honours environment overrides
// such as SERP_COMPANION_ROOT. The Config type centralizes every knob the
// native host, the pairing server, and the CLI need so paths are expanded and
// tunables are range-checked in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths and clear validation errors.
package config
